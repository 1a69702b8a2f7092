package fish

import (
	"fmt"

	"github.com/gonzalop/xfer"
)

// shellEncode backslash-escapes shell metacharacters, mirroring Fish.cc's
// shell_encode: reserved words, expansion/globbing characters, IFS
// whitespace, quoting characters and shell metacharacters are all escaped;
// a leading '~' or '#' is escaped only in the first position since those
// only trigger expansion/comment there.
func shellEncode(s string) string {
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\'', '(', ')', '!', '{', '}',
			'^',
			'$', '`',
			'*', '[', '?', ']',
			' ', '\t', '\n',
			'"', '\\',
			'|', '&', ';',
			'<', '>':
			out = append(out, '\\', c)
		case '~', '#':
			if i == 0 {
				out = append(out, '\\')
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// expectKind names what kind of reply a pending command expects, mirroring
// Fish.cc's expect_t response queue.
type expectKind int

const (
	expectFish expectKind = iota
	expectVer
	expectPWD
	expectCWD
	expectRetrInfo
	expectRetr
	expectDir
	expectInfo
	expectQuote
	expectDefault
	expectStorPreliminary
	expectStor
)

// command is one FISH request: the literal bytes to write, and the chain
// of expected replies it will produce (STORE and RETRIEVE each produce two
// reply markers; everything else produces exactly one).
type command struct {
	text    string
	expects []expectKind
}

func handshakeCommands(needHome bool) []command {
	cmds := []command{
		{
			text: "#FISH\n" +
				"echo;start_fish_server;" +
				"TZ=GMT;export TZ;LC_ALL=C;export LC_ALL;" +
				"echo '### 200'\n",
			expects: []expectKind{expectFish},
		},
		{
			text:    "#VER 0.0.2\necho '### 000'\n",
			expects: []expectKind{expectVer},
		},
	}
	if needHome {
		cmds = append(cmds, command{
			text:    "#PWD\npwd; echo '### 200'\n",
			expects: []expectKind{expectPWD},
		})
	}
	return cmds
}

func cwdCommand(path string) command {
	e := shellEncode(path)
	return command{
		text:    fmt.Sprintf("#CWD %s\ncd %s; echo '### 000'\n", e, e),
		expects: []expectKind{expectCWD},
	}
}

// buildCommand renders the shell conversation for one Session.Open call.
// size is the STORE payload length and must be known (a negative size is
// rejected); the other modes ignore it. FISH has no restart offset, so no
// mode takes a starting position.
func buildCommand(mode xfer.OpenMode, path, path2 string, chmodMode uint16, size int64) (command, error) {
	e := shellEncode(path)
	switch mode {
	case xfer.ChangeDir:
		return cwdCommand(path), nil
	case xfer.LongList:
		return command{
			text:    fmt.Sprintf("#LIST %s\nls -l %s; echo '### 200'\n", e, e),
			expects: []expectKind{expectDir},
		}, nil
	case xfer.List:
		return command{
			text:    fmt.Sprintf("#LIST %s\nls %s; echo '### 200'\n", e, e),
			expects: []expectKind{expectDir},
		}, nil
	case xfer.Retrieve:
		return command{
			text: fmt.Sprintf("#RETR %s\nls -lLd %s; "+
				"echo '### 100'; cat %s; echo '### 200'\n", e, e, e),
			expects: []expectKind{expectRetrInfo, expectRetr},
		}, nil
	case xfer.Store:
		if size < 0 {
			return command{}, xfer.NewError(xfer.NoFile, "STOR", "have to know file size before upload")
		}
		return command{
			text: fmt.Sprintf("#STOR %d %s\n"+
				">%s;echo '### 001';"+
				"dd ibs=1 count=%d 2>/dev/null"+
				"|(cat>%s;cat>/dev/null);echo '### 200'\n",
				size, e, e, size, e),
			expects: []expectKind{expectStorPreliminary, expectStor},
		}, nil
	case xfer.Remove:
		return command{
			text:    fmt.Sprintf("#DELE %s\nrm -f %s; echo '### 000'\n", e, e),
			expects: []expectKind{expectDefault},
		}, nil
	case xfer.RemoveDir:
		return command{
			text:    fmt.Sprintf("#RMD %s\nrmdir %s; echo '### 000'\n", e, e),
			expects: []expectKind{expectDefault},
		}, nil
	case xfer.MakeDir:
		return command{
			text:    fmt.Sprintf("#MKD %s\nmkdir %s; echo '### 000'\n", e, e),
			expects: []expectKind{expectDefault},
		}, nil
	case xfer.Rename:
		e1 := shellEncode(path2)
		return command{
			text:    fmt.Sprintf("#RENAME %s %s\nmv %s %s; echo '### 000'\n", e, e1, e, e1),
			expects: []expectKind{expectDefault},
		}, nil
	case xfer.ChangeMode:
		return command{
			text: fmt.Sprintf("#CHMOD %04o %s\nchmod %04o %s; echo '### 000'\n",
				chmodMode, e, chmodMode, e),
			expects: []expectKind{expectDefault},
		}, nil
	case xfer.QuoteCmd:
		return command{
			text:    fmt.Sprintf("#EXEC %s\n%s; echo '### 200'\n", path, path),
			expects: []expectKind{expectQuote},
		}, nil
	case xfer.ArrayInfo:
		return command{
			text:    fmt.Sprintf("#INFO %s\nls -lLd %s; echo '### 200'\n", e, e),
			expects: []expectKind{expectInfo},
		}, nil
	default:
		return command{}, fmt.Errorf("fish: unsupported open mode %v", mode)
	}
}

// parseMarker recognizes a "### NNN" status line, mirroring HandleReplies'
// check (line of at least 7 bytes, "### " prefix, a digit at offset 4).
func parseMarker(line string) (code int, ok bool) {
	if len(line) < 7 || line[:4] != "### " {
		return 0, false
	}
	if line[4] < '0' || line[4] > '9' {
		return 0, false
	}
	n := 0
	for i := 4; i < len(line) && i < 7 && line[i] >= '0' && line[i] <= '9'; i++ {
		n = n*10 + int(line[i]-'0')
	}
	return n, true
}
