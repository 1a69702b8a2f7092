package ftp

import (
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/xfer"
)

// parseUnixListing turns a LIST data stream in the traditional "ls -l"
// format into a FileSet. Lines the parser can't make sense of become
// TypeUnknown entries named after the raw line rather than being dropped,
// so a caller still sees every name the server sent (spec.md §4.3's
// directory listing, §3's FileInfo).
func parseUnixListing(raw []byte) *xfer.FileSet {
	fs := xfer.NewFileSet()
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if fi := parseUnixListLine(line); fi != nil {
			fs.Add(fi)
		}
	}
	return fs
}

// parseUnixListLine parses one "ls -l"-style line. The classic layout is
// perms links owner group size month day time-or-year name, but many
// servers omit the group column; this is distinguished by checking which
// field parses as a size.
func parseUnixListLine(line string) *xfer.FileInfo {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return &xfer.FileInfo{Name: line, Type: xfer.TypeUnknown}
	}
	perms := fields[0]
	if len(perms) == 0 {
		return &xfer.FileInfo{Name: line, Type: xfer.TypeUnknown}
	}

	var typ xfer.FileType
	switch perms[0] {
	case 'd':
		typ = xfer.TypeDir
	case 'l':
		typ = xfer.TypeSymlink
	case '-':
		typ = xfer.TypeFile
	case 'b', 'c', 'p', 's':
		typ = xfer.TypeSpecial
	default:
		return &xfer.FileInfo{Name: line, Type: xfer.TypeUnknown}
	}

	sizeIdx, nameIdx := 4, 8
	if len(fields) <= nameIdx || !looksLikeSize(fields[sizeIdx]) {
		sizeIdx, nameIdx = 3, 7
		if len(fields) <= nameIdx || !looksLikeSize(fields[sizeIdx]) {
			return &xfer.FileInfo{Name: line, Type: xfer.TypeUnknown}
		}
	}

	size, err := strconv.ParseInt(fields[sizeIdx], 10, 64)
	if err != nil {
		return &xfer.FileInfo{Name: line, Type: xfer.TypeUnknown}
	}

	fi := &xfer.FileInfo{Type: typ}
	fi.SetSize(size)
	if t, prec, ok := parseUnixListDate(fields[sizeIdx+1 : nameIdx]); ok {
		fi.SetModTime(t, prec)
	}

	name := strings.Join(fields[nameIdx:], " ")
	if typ == xfer.TypeSymlink {
		if before, after, ok := strings.Cut(name, " -> "); ok {
			name = before
			fi.SetSymlinkTarget(after)
		}
	}
	fi.Name = name
	return fi
}

func looksLikeSize(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// parseUnixListDate reads the classic 3-field "Mon DD HH:MM" or "Mon DD
// YYYY" date, assuming the current year when no year is given (the
// traditional `ls` behavior every Unix FTP server's LISTing imitates).
func parseUnixListDate(fields []string) (time.Time, xfer.DatePrecision, bool) {
	if len(fields) != 3 {
		return time.Time{}, xfer.PrecisionUnknown, false
	}
	spec := fields[0] + " " + fields[1] + " " + fields[2]
	if t, err := time.Parse("Jan 2 2006", spec); err == nil {
		return t, xfer.PrecisionDay, true
	}
	if t, err := time.Parse("Jan 2 15:04", spec); err == nil {
		year := time.Now().Year()
		t = time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		return t, xfer.PrecisionMinute, true
	}
	return time.Time{}, xfer.PrecisionUnknown, false
}

// parseMLSDListing turns an MLSD data stream (RFC 3659 facts; each line
// "fact=value;fact=value; name") into a FileSet, skipping the "cdir"/"pdir"
// self/parent entries the protocol includes but a directory listing has no
// use for.
func parseMLSDListing(raw []byte) *xfer.FileSet {
	fs := xfer.NewFileSet()
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if fi, typ, ok := parseMLSDLine(line); ok && typ != "cdir" && typ != "pdir" {
			fs.Add(fi)
		}
	}
	return fs
}

func parseMLSDLine(line string) (*xfer.FileInfo, string, bool) {
	sep := strings.IndexByte(line, ' ')
	if sep < 0 {
		return nil, "", false
	}
	facts, name := line[:sep], line[sep+1:]
	fi := &xfer.FileInfo{Name: name, Type: xfer.TypeUnknown}
	var typ string
	for _, pair := range strings.Split(facts, ";") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "type":
			typ = strings.ToLower(v)
			fi.Type = mlsdFileType(typ)
		case "size":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				fi.SetSize(n)
			}
		case "modify":
			if t, ok := parseMLSDTime(v); ok {
				fi.SetModTime(t, xfer.PrecisionSecond)
			}
		case "unix.mode":
			if n, err := strconv.ParseUint(v, 8, 16); err == nil {
				fi.SetMode(uint16(n))
			}
		}
	}
	return fi, typ, true
}

func mlsdFileType(typ string) xfer.FileType {
	switch typ {
	case "dir", "cdir", "pdir":
		return xfer.TypeDir
	case "file":
		return xfer.TypeFile
	case "os.unix=symlink":
		return xfer.TypeSymlink
	default:
		return xfer.TypeUnknown
	}
}

// parseMLSDTime parses RFC 3659's "modify" fact, YYYYMMDDHHMMSS with an
// optional ".sss" fraction the engine doesn't need finer than a second.
func parseMLSDTime(v string) (time.Time, bool) {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	if len(v) != 14 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102150405", v)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
