package fish

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/scheduler"
)

// Engine adapts a blocking *Client onto the scheduler-driven xfer.Session
// interface, using the same goroutine-relay pattern as sftp.Engine and
// webdav.Engine: a background goroutine runs one Client conversation to
// completion while the scheduler-visible seam (Open/Read/Write/Done) stays
// non-blocking.
type Engine struct {
	scheduler.NoSignal

	cl  *Client
	id  xfer.Identity
	cwd string
	mu  sync.Mutex

	mode  xfer.OpenMode
	done  chan struct{}
	opErr *xfer.Error
	moved bool

	pw *io.PipeWriter
	pr *io.PipeReader

	listBuf []byte
	listPos int
	files   *xfer.FileSet

	size         int64
	sizeKnown    bool
	modTime      time.Time
	modTimeKnown bool

	limit    int64
	readPos  int64
	priority int
}

// NewEngine wraps an already-connected, logged-in *Client as a Session.
func NewEngine(cl *Client, id xfer.Identity) *Engine {
	return &Engine{cl: cl, id: id, cwd: cl.Cwd(), done: closedChan()}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (e *Engine) Do() scheduler.Status {
	e.mu.Lock()
	moved := e.moved
	e.moved = false
	e.mu.Unlock()
	if moved {
		return scheduler.Moved
	}
	return scheduler.Stall
}

func (e *Engine) Wait() scheduler.Waiter {
	e.mu.Lock()
	ch := e.done
	e.mu.Unlock()
	return scheduler.Waiter{Ready: ch}
}

func (e *Engine) markMoved() {
	e.mu.Lock()
	e.moved = true
	e.mu.Unlock()
}

func (e *Engine) finish(cmd string, err error) {
	e.mu.Lock()
	e.opErr = classifyErr(cmd, err)
	close(e.done)
	e.moved = true
	e.mu.Unlock()
}

// classifyErr maps a FISH NoFile error (the only Kind the shell-stub
// protocol can distinguish; everything else is SeeErrno/Fatal) onto
// spec.md §7's Kind taxonomy.
func classifyErr(cmd string, err error) *xfer.Error {
	if err == nil {
		return nil
	}
	var xe *xfer.Error
	if errors.As(err, &xe) {
		return xe
	}
	return xfer.WrapError(xfer.SeeErrno, cmd, err)
}

// Open begins mode on path at byte offset pos.
func (e *Engine) Open(path string, mode xfer.OpenMode, pos int64) error {
	e.mu.Lock()
	if !e.isDoneLocked() {
		e.mu.Unlock()
		return fmt.Errorf("fish: operation already in progress")
	}
	e.mode = mode
	e.done = make(chan struct{})
	e.opErr = nil
	e.pr, e.pw = nil, nil
	e.listBuf, e.listPos, e.files = nil, 0, nil
	e.readPos = pos
	e.mu.Unlock()

	switch mode {
	case xfer.Retrieve:
		pr, pw := io.Pipe()
		e.pr = pr
		go func() {
			r, fi, err := e.cl.Retrieve(path)
			if err == nil {
				if fi != nil {
					e.mu.Lock()
					if fi.HasSize() {
						e.size, e.sizeKnown = fi.Size(), true
					}
					if fi.HasModTime() {
						e.modTime, e.modTimeKnown = fi.ModTime(), true
					}
					e.mu.Unlock()
				}
				_, err = io.Copy(pw, r)
			}
			pw.CloseWithError(err)
			e.finish("RETR "+path, err)
		}()
	case xfer.Store:
		pr, pw := io.Pipe()
		e.pw = pw
		e.mu.Lock()
		size := e.size
		sizeKnown := e.sizeKnown
		e.mu.Unlock()
		go func() {
			var err error
			if !sizeKnown {
				err = xfer.NewError(xfer.NoFile, "STOR "+path, "have to know file size before upload")
			} else {
				err = e.cl.Store(path, size, pr)
			}
			pr.CloseWithError(err)
			e.finish("STOR "+path, err)
		}()
	case xfer.List, xfer.LongList:
		long := mode == xfer.LongList
		go func() {
			blob, fs, err := e.cl.List(path, long)
			if err == nil {
				e.mu.Lock()
				e.listBuf, e.files = blob, fs
				e.mu.Unlock()
			}
			e.finish("LIST "+path, err)
		}()
	case xfer.ChangeDir:
		go func() {
			err := e.cl.ChangeDir(path)
			if err == nil {
				e.mu.Lock()
				e.cwd = path
				e.mu.Unlock()
			}
			e.finish("CWD "+path, err)
		}()
	case xfer.MakeDir:
		go func() { e.finish("MKD "+path, e.cl.MakeDir(path)) }()
	case xfer.RemoveDir:
		go func() { e.finish("RMD "+path, e.cl.RemoveDir(path)) }()
	case xfer.Remove:
		go func() { e.finish("DELE "+path, e.cl.Remove(path)) }()
	case xfer.ArrayInfo:
		go func() {
			fi, err := e.cl.StatOne(path)
			if err == nil && fi != nil {
				e.mu.Lock()
				if fi.HasSize() {
					e.size, e.sizeKnown = fi.Size(), true
				}
				if fi.HasModTime() {
					e.modTime, e.modTimeKnown = fi.ModTime(), true
				}
				e.mu.Unlock()
			}
			e.finish("INFO "+path, err)
		}()
	case xfer.ConnectVerify:
		go func() { e.finish("", nil) }()
	case xfer.QuoteCmd:
		go func() { _, err := e.cl.Quote(path); e.finish("EXEC "+path, err) }()
	default:
		e.finish("", nil)
		return fmt.Errorf("fish: unsupported open mode %v", mode)
	}
	return nil
}

// Close ends the current operation, returning the session to logged-in.
func (e *Engine) Close() error {
	e.mu.Lock()
	pr, pw := e.pr, e.pw
	e.pr, e.pw = nil, nil
	e.mode = xfer.Closed
	e.mu.Unlock()
	if pr != nil {
		pr.Close()
	}
	if pw != nil {
		pw.Close()
	}
	return nil
}

// Read pulls bytes for a Retrieve/List open.
func (e *Engine) Read(buf []byte) (int, error) {
	e.mu.Lock()
	mode := e.mode
	e.mu.Unlock()

	switch mode {
	case xfer.Retrieve:
		if e.limit > 0 {
			if e.readPos >= e.limit {
				return 0, io.EOF
			}
			if remain := e.limit - e.readPos; int64(len(buf)) > remain {
				buf = buf[:remain]
			}
		}
		n, err := e.pr.Read(buf)
		e.readPos += int64(n)
		if n > 0 {
			e.markMoved()
		}
		return n, err
	case xfer.List, xfer.LongList:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.listPos >= len(e.listBuf) {
			if !e.isDoneLocked() {
				return 0, nil
			}
			return 0, io.EOF
		}
		n := copy(buf, e.listBuf[e.listPos:])
		e.listPos += n
		return n, nil
	default:
		return 0, fmt.Errorf("fish: Read called outside a readable open mode")
	}
}

// Write pushes bytes for a Store open.
func (e *Engine) Write(buf []byte) (int, error) {
	e.mu.Lock()
	mode := e.mode
	pw := e.pw
	e.mu.Unlock()
	if mode != xfer.Store || pw == nil {
		return 0, fmt.Errorf("fish: Write called outside a Store open")
	}
	n, err := pw.Write(buf)
	if n > 0 {
		e.markMoved()
	}
	return n, err
}

func (e *Engine) isDoneLocked() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *Engine) Done() xfer.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isDoneLocked() {
		return xfer.InProgress
	}
	if e.opErr == nil {
		return xfer.OK
	}
	return e.opErr.Kind
}

func (e *Engine) Rename(from, to string) error { return e.cl.Rename(from, to) }

// Mkdir creates path; FISH's "mkdir" takes one segment at a time just like
// FTP's MKD, so allParents isn't honored separately here.
func (e *Engine) Mkdir(path string, allParents bool) error { return e.cl.MakeDir(path) }

// Chdir changes the working directory. FISH's cd has no separate
// existence/verify round-trip beyond the cd itself, so verify is a no-op
// here (unlike ftp.Engine, which can round-trip PWD).
func (e *Engine) Chdir(path string, verify bool) error {
	if err := e.cl.ChangeDir(path); err != nil {
		return err
	}
	e.mu.Lock()
	e.cwd = path
	e.mu.Unlock()
	return nil
}

// Files returns the FileSet parsed from the most recently completed List
// open, or nil if the last open wasn't a listing.
func (e *Engine) Files() *xfer.FileSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files
}

func (e *Engine) Chmod(path string, mode uint16) error { return e.cl.Chmod(path, mode) }
func (e *Engine) Remove(path string) error             { return e.cl.Remove(path) }
func (e *Engine) RemoveDir(path string) error          { return e.cl.RemoveDir(path) }

// SetDate is a no-op: FISH has no remote touch/utime command (Fish.cc never
// sends one either).
func (e *Engine) SetDate(t time.Time) error { return nil }

// SetSize records the size STORE needs up front, since the shell stub's
// "dd count=N" can't be sent without knowing it beforehand.
func (e *Engine) SetSize(n int64) error {
	e.mu.Lock()
	e.size, e.sizeKnown = n, true
	e.mu.Unlock()
	return nil
}

func (e *Engine) WantSize() error { return nil }
func (e *Engine) WantDate() error { return nil }
func (e *Engine) Size() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size, e.sizeKnown
}
func (e *Engine) ModTime() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modTime, e.modTimeKnown
}

func (e *Engine) Cwd() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cwd
}
func (e *Engine) Home() string { return e.cl.Home() }

// SetAsciiTransfer is a no-op: FISH always moves raw bytes through `cat`/
// `dd`, there is no ASCII/binary type distinction to toggle.
func (e *Engine) SetAsciiTransfer(v bool) {}

func (e *Engine) SetLimit(end int64) {
	e.mu.Lock()
	e.limit = end
	e.mu.Unlock()
}
func (e *Engine) SetPriority(p int) { e.priority = p }
func (e *Engine) IsConnected() bool { return e.cl != nil }

// CanSeek is false: unlike FTP's REST, the shell command line is built once
// at Open time and can't be renegotiated mid-stream.
func (e *Engine) CanSeek(off int64) bool { return false }
func (e *Engine) Seek(off int64) error {
	if off != 0 {
		return fmt.Errorf("fish: seek not supported")
	}
	return nil
}
func (e *Engine) SeekPos() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readPos
}
func (e *Engine) RealPos() int64 { return e.SeekPos() }

func (e *Engine) Buffered() int { return 0 }

func (e *Engine) PutEOF() error {
	e.mu.Lock()
	pw := e.pw
	e.mu.Unlock()
	if pw == nil {
		return nil
	}
	return pw.Close()
}
func (e *Engine) RemoveFile() error { return nil }

func (e *Engine) IOReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.moved
	e.moved = false
	return r
}

// NeedsSizeDateBeforehand is true: STORE's "dd count=N" must be sized
// before the shell command is even sent, unlike FTP's STOR.
func (e *Engine) NeedsSizeDateBeforehand() bool { return true }

func (e *Engine) Error() *xfer.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opErr
}
func (e *Engine) Identity() xfer.Identity { return e.id }

var _ xfer.Session = (*Engine)(nil)
