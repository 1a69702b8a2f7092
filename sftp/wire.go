package sftp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// wireWriter accumulates a packet payload using SSH's basic wire types
// (encoding/binary is the only "third-party" choice here in the sense that
// no pack library in the corpus targets SSH framing; it is the stdlib tool
// every Go ssh implementation, including golang.org/x/crypto/ssh, reaches
// for on exactly this kind of length-prefixed binary format).
type wireWriter struct {
	buf []byte
}

func (w *wireWriter) PutByte(b byte)       { w.buf = append(w.buf, b) }
func (w *wireWriter) PutUint32(v uint32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *wireWriter) PutUint64(v uint64)   { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *wireWriter) PutBytes(p []byte)    { w.buf = append(w.buf, p...) }
func (w *wireWriter) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *wireWriter) Bytes() []byte { return w.buf }

// wireReader parses a packet payload in order, recording the first error
// seen so callers can chain calls and check once at the end.
type wireReader struct {
	data []byte
	pos  int
	err  error
}

func newWireReader(data []byte) *wireReader { return &wireReader{data: data} }

func (r *wireReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (r *wireReader) Byte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *wireReader) Uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *wireReader) Uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *wireReader) String() string {
	n := r.Uint32()
	if !r.need(int(n)) {
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

// Bytes reads a raw SSH "string" (length-prefixed byte blob) without
// assuming it is text, for ACLs and other opaque extension data.
func (r *wireReader) Bytes() []byte {
	n := r.Uint32()
	if !r.need(int(n)) {
		return nil
	}
	b := append([]byte(nil), r.data[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return b
}

// Remaining returns the bytes not yet consumed.
func (r *wireReader) Remaining() []byte { return r.data[r.pos:] }

func (r *wireReader) Err() error { return r.err }

// writePacket frames typ+payload (and, unless the type is INIT or VERSION,
// a request id) as a 4-byte big-endian length prefix followed by the body,
// matching Packet::Pack in original_source/src/SFtp.h.
func writePacket(w io.Writer, typ byte, id uint32, hasID bool, payload []byte) error {
	bodyLen := 1 + len(payload)
	if hasID {
		bodyLen += 4
	}
	out := make([]byte, 0, 4+bodyLen)
	out = binary.BigEndian.AppendUint32(out, uint32(bodyLen))
	out = append(out, typ)
	if hasID {
		out = binary.BigEndian.AppendUint32(out, id)
	}
	out = append(out, payload...)
	_, err := w.Write(out)
	return err
}

// packetHasID reports whether typ carries a request id: every packet type
// except INIT and VERSION does (original_source/src/SFtp.h's Packet::HasID).
func packetHasID(typ byte) bool {
	return typ != packetInit && typ != packetVersion
}

// readPacket reads one framed packet from r, blocking until it is fully
// available.
func readPacket(r io.Reader) (typ byte, id uint32, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, 0, nil, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	if bodyLen == 0 || bodyLen > 1<<26 {
		return 0, 0, nil, fmt.Errorf("sftp: implausible packet length %d", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, 0, nil, err
	}
	typ = body[0]
	rest := body[1:]
	if packetHasID(typ) {
		if len(rest) < 4 {
			return 0, 0, nil, fmt.Errorf("sftp: short packet id")
		}
		id = binary.BigEndian.Uint32(rest)
		rest = rest[4:]
	}
	return typ, id, rest, nil
}
