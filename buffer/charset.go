package buffer

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Charset looks up a named character encoding the way the FTP engine's
// `ftp:charset` setting and the server's FEAT/LANG advertisement name one
// (spec.md §4.3). It is activated at most once per Buffer direction
// (spec.md §4.2): when both telnet decoding and charset translation are
// needed on the same direction, two stacked layers are used rather than
// one combined translator, per spec.md §9.
func Charset(name string) (encoding.Encoding, bool) {
	switch name {
	case "", "utf-8", "UTF-8":
		return unicode.UTF8, true
	case "latin1", "iso-8859-1", "ISO-8859-1":
		return charmap.ISO8859_1, true
	case "cp1252", "windows-1252":
		return charmap.Windows1252, true
	case "koi8-r", "KOI8-R":
		return charmap.KOI8R, true
	default:
		return nil, false
	}
}

// CharsetTranslator transcodes a byte stream one direction at a time,
// holding whatever partial multi-byte sequence state the underlying
// transform.Transformer needs across chunk boundaries.
type CharsetTranslator struct {
	remote encoding.Encoding
	toUTF8 transform.Transformer // remote -> UTF-8, used decoding Get
	toWire transform.Transformer // UTF-8 -> remote, used encoding Put
}

// NewCharsetTranslator builds a translator between the named remote
// encoding and UTF-8.
func NewCharsetTranslator(remote encoding.Encoding) *CharsetTranslator {
	return &CharsetTranslator{
		remote: remote,
		toUTF8: remote.NewDecoder(),
		toWire: remote.NewEncoder(),
	}
}

// DecodeToUTF8 transcodes bytes just received in the remote encoding into
// UTF-8, for the Get direction.
func (c *CharsetTranslator) DecodeToUTF8(p []byte) ([]byte, error) {
	return transform.Bytes(c.toUTF8, p)
}

// EncodeFromUTF8 transcodes UTF-8 application bytes into the remote
// encoding, for the Put direction.
func (c *CharsetTranslator) EncodeFromUTF8(p []byte) ([]byte, error) {
	return transform.Bytes(c.toWire, p)
}
