package ftp

import (
	"fmt"
	"strconv"
	"strings"
)

// reply is one parsed FTP control response (spec.md §4.3). A response may
// span several lines: "NNN-text" opens a continuation that runs until a
// line begins with the same three digits followed by a space.
type reply struct {
	Code    int
	Message string
	Lines   []string
}

func (r *reply) Is1xx() bool { return r.Code >= 100 && r.Code < 200 }
func (r *reply) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }
func (r *reply) Is3xx() bool { return r.Code >= 300 && r.Code < 400 }
func (r *reply) Is4xx() bool { return r.Code >= 400 && r.Code < 500 }
func (r *reply) Is5xx() bool { return r.Code >= 500 && r.Code < 600 }

func (r *reply) String() string { return strings.Join(r.Lines, "\n") }

// replyError reports a reply code outside the range a command required.
type replyError struct {
	Command string
	Reply   *reply
}

func (e *replyError) Error() string {
	return fmt.Sprintf("ftp: %s: %d %s", e.Command, e.Reply.Code, e.Reply.Message)
}

// replyAssembler folds the raw lines a control-socket reader goroutine
// delivers into complete replies, one feed() call per line. It never reads
// from the network itself, so it never blocks: the expectation-queue engine
// in engine.go calls feed() only with lines a non-blocking channel drain
// already received (spec.md §4.3's reply-line accumulation).
type replyAssembler struct {
	code  int
	lines []string
}

// feed folds one CRLF-stripped line into the response under construction.
// It returns a *reply once a response completes, or (nil, nil) while a
// multi-line response is still open.
func (a *replyAssembler) feed(line string) (*reply, error) {
	if a.code == 0 {
		if len(line) < 4 {
			return nil, fmt.Errorf("ftp: malformed reply line %q", line)
		}
		code, err := strconv.Atoi(line[0:3])
		if err != nil {
			return nil, fmt.Errorf("ftp: malformed reply code %q", line[0:3])
		}
		switch line[3] {
		case ' ':
			return &reply{Code: code, Message: line[4:], Lines: []string{line}}, nil
		case '-':
			a.code = code
			a.lines = []string{line}
			return nil, nil
		default:
			return nil, fmt.Errorf("ftp: malformed reply %q", line)
		}
	}

	a.lines = append(a.lines, line)
	// RFC 2389 allows continuation lines that start with a space and carry
	// no repeated code; keep accumulating until the closing "NNN " line.
	if strings.HasPrefix(line, " ") {
		return nil, nil
	}
	codeStr := strconv.Itoa(a.code)
	if len(line) >= 4 && line[0:3] == codeStr && line[3] == ' ' {
		lines := a.lines
		code := a.code
		a.code, a.lines = 0, nil
		var msg []string
		for _, l := range lines {
			if len(l) > 4 {
				msg = append(msg, l[4:])
			}
		}
		return &reply{Code: code, Message: strings.Join(msg, "\n"), Lines: lines}, nil
	}
	// A continuation line that neither starts with a space nor closes the
	// response is still part of the message text (free-form server banners
	// routinely do this); keep waiting for the closing line.
	return nil, nil
}

// encodeCommand frames cmd the way spec.md §4.3 requires: CRLF-terminated,
// any literal CR in an argument escaped as CR NUL per RFC 2640, and any
// literal telnet IAC byte (0xFF) doubled so a raw 0xFF in a pathname isn't
// misread as a telnet command by the control channel.
func encodeCommand(cmd string) []byte {
	out := make([]byte, 0, len(cmd)+2)
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch c {
		case '\xff':
			out = append(out, '\xff', '\xff')
		case '\r':
			out = append(out, '\r', 0)
		default:
			out = append(out, c)
		}
	}
	return append(out, '\r', '\n')
}
