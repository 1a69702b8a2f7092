package sshproc

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeRW models one end of the pty: toClient is what the filter reads (the
// simulated subprocess's output), fromClient records what the filter writes
// back (the simulated subprocess's input).
type pipeRW struct {
	toClient   *io.PipeReader
	fromClient *io.PipeWriter
	written    chan string
}

func newPipeRW() (*pipeRW, *io.PipeWriter) {
	pr, pw := io.Pipe()
	fr, fw := io.Pipe()
	written := make(chan string, 8)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := fr.Read(buf)
			if n > 0 {
				written <- string(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return &pipeRW{toClient: pr, fromClient: fw, written: written}, pw
}

func (p *pipeRW) Read(b []byte) (int, error)  { return p.toClient.Read(b) }
func (p *pipeRW) Write(b []byte) (int, error) { return p.fromClient.Write(b) }

func TestLoginFilterAnswersPasswordPrompt(t *testing.T) {
	rw, serverIn := newPipeRW()
	f := NewLoginFilter(rw, "s3cret", false)

	go func() {
		serverIn.Write([]byte("bob@example.com's password: "))
	}()

	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		f.Read(buf) // blocks until the prompt is answered and the pipe is closed
		close(readDone)
	}()

	select {
	case msg := <-rw.written:
		require.Equal(t, "s3cret\n", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("password was never sent")
	}
	serverIn.Close()
	<-readDone
}

func TestLoginFilterPassesThroughAfterLogin(t *testing.T) {
	rw, serverIn := newPipeRW()
	f := NewLoginFilter(rw, "", false)
	f.MarkLoggedIn()

	go func() {
		serverIn.Write([]byte("binary-protocol-bytes"))
	}()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "binary-protocol-bytes", string(buf[:n]))
}

func TestLoginFilterFailsWithoutPassword(t *testing.T) {
	rw, serverIn := newPipeRW()
	f := NewLoginFilter(rw, "", false)

	go func() {
		serverIn.Write([]byte("bob@example.com's password: "))
	}()

	buf := make([]byte, 64)
	_, err := f.Read(buf)
	require.ErrorIs(t, err, errPasswordRequired)
}
