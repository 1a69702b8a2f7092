package xfer

import "strings"

// Path is an ordered sequence of path components plus the attributes needed
// to round-trip DOS/VMS-style device-prefixed roots (spec.md §3). A Path
// either names a directory (IsFile == false, no trailing slash kept in
// String) or a file (IsFile == true, non-empty final component).
type Path struct {
	// raw is the path exactly as given to us, forward-slash separated.
	raw string

	// IsFile is true when this Path names a file rather than a directory.
	IsFile bool

	// DevicePrefixLen is the length, in bytes of raw, of a device prefix
	// that Optimize must never climb above — e.g. "C:/" (len 3) or
	// "SYS$DISK:[" for a VMS rooted path. Zero means no device prefix.
	DevicePrefixLen int

	// URL, if non-empty, is the canonical percent-encoded URL form this
	// Path was parsed from (preserved so re-serialization is lossless).
	URL string
}

// NewPath builds a Path from a raw string, inferring IsFile from the
// absence of a trailing slash (directories keep one only implicitly; an
// empty path or one ending in "/" is a directory).
func NewPath(raw string) Path {
	isFile := raw != "" && !strings.HasSuffix(raw, "/")
	return Path{raw: strings.TrimSuffix(raw, "/"), IsFile: isFile}
}

// NewDir is NewPath with IsFile forced false, for callers that already know
// the path names a directory (NewPath("") would also work, but this reads
// better at call sites that pass a trailing-slash-stripped string).
func NewDir(raw string) Path {
	return Path{raw: strings.TrimSuffix(raw, "/"), IsFile: false}
}

// String renders the path as stored; a directory carries no trailing
// slash.
func (p Path) String() string {
	return p.raw
}

func (p Path) isAbsolute() bool {
	return strings.HasPrefix(p.raw, "/") || p.DevicePrefixLen > 0
}

// Change composes a new Path from p and a relative or absolute path rel,
// the way `cd` would: an absolute rel (or one with its own device prefix)
// replaces p outright; a relative one is joined onto p's directory.
//
// p.Change(x).Change(y) == p.Change(x+"/"+y) for any x, y that do not
// ascend above p's device prefix — composing two relative changes and
// composing their concatenation give the same optimized result because
// Optimize is only ever applied to the final joined component sequence,
// never to an intermediate one.
func (p Path) Change(rel string) Path {
	if rel == "" {
		return p
	}
	np := NewPath(rel)
	if np.isAbsolute() {
		return np.Optimize()
	}

	base := p.raw
	if p.IsFile {
		base = dirname(base)
	}
	joined := base
	if joined != "" && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	joined += np.raw

	out := Path{raw: joined, IsFile: np.IsFile, DevicePrefixLen: p.DevicePrefixLen, URL: ""}
	return out.Optimize()
}

func dirname(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// Optimize removes "." components and collapses ".." without ever crossing
// the device prefix (spec.md §8.1): Optimize("/a/./b/../c") == "/a/c";
// Optimize("~/../x") == "~/../x" (a leading "~" is never resolved here, so
// there is nothing below it to ascend past — ExpandTilde must run first if
// that's the intent); Optimize("//host/dir") == "//host/dir" (a UNC-style
// double leading slash is preserved, not collapsed to one).
// Optimize is idempotent: Optimize(Optimize(p)) == Optimize(p).
func (p Path) Optimize() Path {
	prefix := p.raw[:min(p.DevicePrefixLen, len(p.raw))]
	rest := p.raw[len(prefix):]

	uncDouble := strings.HasPrefix(rest, "//") && !strings.HasPrefix(rest, "///")
	leadingSlash := strings.HasPrefix(rest, "/")
	anchored := leadingSlash || prefix != ""

	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				last := out[len(out)-1]
				if last != ".." && last != "~" {
					out = out[:len(out)-1]
					continue
				}
				if last == "~" {
					// Never ascend past a tilde: keep it literal, like lftp
					// does, since what's above home isn't known here.
					out = append(out, "..")
					continue
				}
			}
			if anchored {
				// Never climb above an absolute root or the device prefix.
				continue
			}
			out = append(out, "..")
		default:
			out = append(out, part)
		}
	}

	joined := strings.Join(out, "/")
	switch {
	case uncDouble:
		joined = "//" + joined
	case leadingSlash:
		joined = "/" + joined
	}
	np := p
	np.raw = prefix + joined
	if !np.IsFile {
		np.raw = strings.TrimSuffix(np.raw, "/")
	}
	return np
}

// ExpandTilde replaces a leading "~" or "~/..." component with home,
// preserving whether the result denotes a directory (a bare "~" expands to
// home's own directory-ness; "~/x" always continues as a path under home).
func (p Path) ExpandTilde(home string) Path {
	if p.raw != "~" && !strings.HasPrefix(p.raw, "~/") {
		return p
	}
	home = strings.TrimSuffix(home, "/")
	rest := strings.TrimPrefix(p.raw, "~")
	rest = strings.TrimPrefix(rest, "/")

	raw := home
	if rest != "" {
		if raw != "" && !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		raw += rest
	}
	out := p
	out.raw = raw
	return out.Optimize()
}
