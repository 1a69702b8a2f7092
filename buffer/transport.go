package buffer

import (
	"errors"
	"io"
	"net"
	"time"
)

// chunk is one delivery from the background reader goroutine.
type chunk struct {
	data []byte
	err  error
}

// Transport drives a net.Conn non-blockingly: Send bytes queued by the
// application are drained to the socket a little at a time from Do(),
// using a near-zero write deadline so a full OS send buffer reports as
// "nothing happened" rather than blocking the scheduler thread; bytes
// arriving from the peer are relayed into Recv by one dedicated goroutine
// per connection that does a normal blocking Read loop and posts what it
// got down a channel — the channel *is* this engine's poll-like readiness
// primitive (spec.md §5: "I/O readiness is observed through poll-like
// primitives"), and since that goroutine never touches Recv, the pool,
// the cache, or any other shared state directly, the single-threaded
// ownership invariant in spec.md §5 still holds: only Transport.Do, run on
// the scheduler goroutine, ever mutates Recv/Send.
type Transport struct {
	conn net.Conn
	Recv *Buffer
	Send *Buffer

	incoming chan chunk
	closed   bool
}

// NewTransport starts relaying conn's incoming bytes in the background and
// returns a Transport ready to be stepped by a scheduler.
func NewTransport(conn net.Conn) *Transport {
	t := &Transport{
		conn:     conn,
		Recv:     New(Get),
		Send:     New(Put),
		incoming: make(chan chunk, 64),
	}
	go t.readLoop()
	return t
}

// Conn exposes the underlying connection, e.g. for a TLS upgrade (the
// caller dials tls.Client/tls.Server on it and builds a fresh Transport
// around the result — Transport itself has no TLS-specific logic, keeping
// the telnet layer, which operates on Recv/Send above this one, unaware of
// whether TLS is in the stack below it, per spec.md §9's ordering note).
func (t *Transport) Conn() net.Conn { return t.conn }

func (t *Transport) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			t.incoming <- chunk{data: cp}
		}
		if err != nil {
			t.incoming <- chunk{err: err}
			return
		}
	}
}

// Do steps the transport once: drains whatever arrived from the peer into
// Recv, and attempts to flush Send to the socket. It reports Moved if
// either direction made progress.
func (t *Transport) Do() bool {
	moved := false

	for {
		select {
		case c := <-t.incoming:
			if c.err != nil {
				t.Recv.PutEOF()
				if !errors.Is(c.err, io.EOF) {
					t.Recv.SetError(c.err, !isTransient(c.err))
				}
				moved = true
				continue
			}
			t.Recv.Put(c.data)
			moved = true
		default:
			goto drainedIncoming
		}
	}
drainedIncoming:

	if t.Send.Size() > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
		n, err := t.conn.Write(t.Send.Bytes())
		if n > 0 {
			t.Send.Skip(n)
			moved = true
		}
		if err != nil && !isTimeout(err) {
			t.Send.SetError(err, !isTransient(err))
			moved = true
		}
	}

	return moved
}

// Close shuts down the underlying connection; the reader goroutine exits
// on its next Read error.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isTransient(err error) bool {
	return isTimeout(err)
}
