package sshproc

import "os"

// PTY is the master side of the subprocess's pseudo-tty; it is the single
// bidirectional byte stream login prompts and (once logged in) the
// protocol's own framing both travel over.
type PTY struct {
	f *os.File
}

func (p *PTY) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *PTY) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *PTY) Close() error                { return p.f.Close() }
