package fish

import (
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/xfer"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parseLsLine parses one line of `ls -l` output the way Fish.cc's
// ls_to_FileInfo does: perms links owner [group] size month day time-or-year
// name[, " -> " target for symlinks]. Returns nil if the line isn't a
// recognizable listing entry (e.g. a "total N" header).
func parseLsLine(line string) *xfer.FileInfo {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil
	}
	perms := fields[0]
	if len(perms) < 1 {
		return nil
	}

	// 9-field (with group) vs 8-field (bsd-like, no group) layouts.
	var size int64
	var monthIdx int
	var err error
	nameStart := 0
	if len(fields) >= 8 {
		if size, err = strconv.ParseInt(fields[4], 10, 64); err == nil {
			monthIdx = 5
			nameStart = 8
		}
	}
	if nameStart == 0 && len(fields) >= 7 {
		if size, err = strconv.ParseInt(fields[3], 10, 64); err == nil {
			monthIdx = 4
			nameStart = 7
		}
	}
	if nameStart == 0 || nameStart > len(fields) {
		return nil
	}

	month, ok := months[strings.ToLower(fields[monthIdx])]
	if !ok {
		return nil
	}
	day, err := strconv.Atoi(fields[monthIdx+1])
	if err != nil || day < 1 || day > 31 {
		return nil
	}

	fi := &xfer.FileInfo{}
	switch perms[0] {
	case 'd':
		fi.Type = xfer.TypeDir
	case 'l':
		fi.Type = xfer.TypeSymlink
	case '-':
		fi.Type = xfer.TypeFile
	default:
		fi.Type = xfer.TypeSpecial
	}
	fi.SetSize(size)

	name := strings.Join(fields[nameStart:], " ")
	if fi.Type == xfer.TypeSymlink {
		if before, after, ok := strings.Cut(name, " -> "); ok {
			name = before
			fi.SetSymlinkTarget(after)
		}
	}
	fi.Name = name

	if t, precise, ok := parseYearOrTime(fields[monthIdx+2], month, day); ok {
		if precise {
			fi.SetModTime(t, xfer.PrecisionSecond)
		} else {
			fi.SetModTime(t, xfer.PrecisionDay)
		}
	}
	return fi
}

// parseYearOrTime handles the two shapes ls emits in the sixth/seventh
// fields: "HH:MM" (recent file, year guessed from the current date, same
// as Fish.cc's guess_year) or "YYYY" (older file, time unknown).
func parseYearOrTime(s string, month time.Month, day int) (t time.Time, precise bool, ok bool) {
	if hh, mm, found := strings.Cut(s, ":"); found {
		hour, err1 := strconv.Atoi(hh)
		min, err2 := strconv.Atoi(mm)
		if err1 != nil || err2 != nil || hour < 0 || hour > 23 || min < 0 || min > 59 {
			return time.Time{}, false, false
		}
		year := guessYear(month, day)
		return time.Date(year, month, day, hour, min, 0, 0, time.UTC), true, true
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return time.Time{}, false, false
	}
	if year < 37 {
		year += 2000
	} else if year < 100 {
		year += 1900
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), false, true
}

// guessYear picks the most recent past year whose (month,day) hasn't
// happened yet this year, mirroring ls's and Fish.cc's heuristic for
// timestamps that carry a time-of-day instead of a year.
func guessYear(month time.Month, day int) int {
	now := time.Now().UTC()
	candidate := time.Date(now.Year(), month, day, 0, 0, 0, 0, time.UTC)
	if candidate.After(now) {
		return now.Year() - 1
	}
	return now.Year()
}

// parseLsFileSet turns the body of an `ls`/`ls -l` reply into a FileSet,
// skipping blank lines and a leading "total N" header line.
func parseLsFileSet(body string, longForm bool) *xfer.FileSet {
	fs := xfer.NewFileSet()
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		if !longForm {
			fs.Add(&xfer.FileInfo{Name: strings.TrimSpace(line), Type: xfer.TypeUnknown})
			continue
		}
		if fi := parseLsLine(line); fi != nil {
			fs.Add(fi)
		}
	}
	return fs
}
