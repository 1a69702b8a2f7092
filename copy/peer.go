package copy

import (
	"time"

	"github.com/gonzalop/xfer"
)

// Dir is which way a Peer moves bytes relative to the copy: Get reads from
// the remote session, Put writes to it.
type Dir int

const (
	DirGet Dir = iota
	DirPut
)

// Peer wraps one xfer.Session as one side of a FileCopy, carrying the
// copy-scoped state (range, line-buffering flag, removal bookkeeping) that
// doesn't belong on Session itself since a session can be reused across
// copies (spec.md §4.9's pool) while this state is per-transfer
// (original_source/src/FileCopy.h's FileCopyPeer).
type Peer struct {
	Session xfer.Session
	Dir     Dir
	Path    string

	RangeStart int64
	RangeLimit int64 // 0 means "no limit"

	doSetDate   bool
	fileRemoved bool
	opened      bool
}

// NewPeer wraps sess as one side of a copy. doSetDate defaults to true
// (DontCopyDate turns it off for a put peer whose destination timestamp
// should be left alone).
func NewPeer(sess xfer.Session, dir Dir, path string) *Peer {
	return &Peer{Session: sess, Dir: dir, Path: path, doSetDate: true}
}

// Open starts the underlying session operation at byte offset pos.
func (p *Peer) Open(pos int64) error {
	mode := xfer.Retrieve
	if p.Dir == DirPut {
		mode = xfer.Store
	}
	if err := p.Session.Open(p.Path, mode, pos); err != nil {
		return err
	}
	p.opened = true
	return nil
}

func (p *Peer) Close() error {
	if !p.opened {
		return nil
	}
	p.opened = false
	return p.Session.Close()
}

func (p *Peer) Read(buf []byte) (int, error)  { return p.Session.Read(buf) }
func (p *Peer) Write(buf []byte) (int, error) { return p.Session.Write(buf) }

func (p *Peer) CanSeek(pos int64) bool { return p.Session.CanSeek(pos) }
func (p *Peer) Seek(off int64) error   { return p.Session.Seek(off) }
func (p *Peer) SeekPos() int64         { return p.Session.SeekPos() }
func (p *Peer) RealPos() int64         { return p.Session.RealPos() }
func (p *Peer) Buffered() int          { return p.Session.Buffered() }

func (p *Peer) Done() xfer.Kind    { return p.Session.Done() }
func (p *Peer) Error() *xfer.Error { return p.Session.Error() }
func (p *Peer) IOReady() bool      { return p.Session.IOReady() }

func (p *Peer) PutEOF() error { return p.Session.PutEOF() }

func (p *Peer) RemoveFile() error {
	p.fileRemoved = true
	return p.Session.RemoveFile()
}
func (p *Peer) FileRemoved() bool { return p.fileRemoved }

func (p *Peer) NeedsSizeDateBeforehand() bool { return p.Session.NeedsSizeDateBeforehand() }

func (p *Peer) WantSize() { p.Session.WantSize() }
func (p *Peer) WantDate() { p.Session.WantDate() }

func (p *Peer) Size() (int64, bool)         { return p.Session.Size() }
func (p *Peer) ModTime() (time.Time, bool)  { return p.Session.ModTime() }
func (p *Peer) SetSize(n int64) error       { return p.Session.SetSize(n) }
func (p *Peer) SetDate(t time.Time) error   { return p.Session.SetDate(t) }

// DontCopyDate suppresses carrying the source's modification time onto the
// destination once the transfer completes.
func (p *Peer) DontCopyDate() { p.doSetDate = false }
func (p *Peer) NeedDate() bool { return p.doSetDate }

// SetRange configures the byte window this peer should operate within,
// seeking immediately if the session supports it.
func (p *Peer) SetRange(start, limit int64) {
	p.RangeStart = start
	p.RangeLimit = limit
	if start > 0 && p.Session.CanSeek(start) {
		p.Session.Seek(start)
	}
}

// Ascii requests newline translation on this peer's transfer, where the
// underlying protocol supports it (FTP's TYPE A; most others ignore it).
func (p *Peer) Ascii() { p.Session.SetAsciiTransfer(true) }
