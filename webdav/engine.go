package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/scheduler"
)

// Engine adapts a *Client onto the scheduler-driven xfer.Session interface,
// using the same goroutine-relay pattern as fish.Engine: a background
// goroutine runs one request (or PROPFIND-then-fallback pair) to completion
// while the scheduler-visible seam (Open/Read/Write/Done) stays
// non-blocking.
type Engine struct {
	scheduler.NoSignal

	cl  *Client
	id  xfer.Identity
	mu  sync.Mutex

	mode  xfer.OpenMode
	done  chan struct{}
	opErr *xfer.Error
	moved bool

	resp   *http.Response
	pw     *io.PipeWriter
	readPos int64

	files *xfer.FileSet

	size         int64
	sizeKnown    bool
	modTime      time.Time
	modTimeKnown bool

	limit    int64
	priority int
	ascii    bool
}

// NewEngine wraps an already-built *Client as a Session.
func NewEngine(cl *Client, id xfer.Identity) *Engine {
	return &Engine{cl: cl, id: id, done: closedChan()}
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

// classifyErr maps a transport/status error onto spec.md §7's Kind
// taxonomy: net/http's own CheckRedirect sentinel becomes FileMoved, a 4xx
// status (captured by callers as a plain error already carrying the right
// Kind via statusErr) passes through unchanged, anything else is SeeErrno.
func classifyErr(cmd string, err error) *xfer.Error {
	if err == nil {
		return nil
	}
	var xe *xfer.Error
	if errors.As(err, &xe) {
		return xe
	}
	if errors.Is(err, errTooManyRedirects) {
		return xfer.WrapError(xfer.FileMoved, cmd, err)
	}
	return xfer.WrapError(xfer.SeeErrno, cmd, err)
}

// statusErr turns a non-2xx HTTP response into a *xfer.Error classified by
// status code, the way ftp's classifyReply reads a three-digit FTP code
// (spec.md §4.6, §7).
func statusErr(cmd string, resp *http.Response) *xfer.Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := fmt.Sprintf("%d %s", resp.StatusCode, resp.Status)
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return xfer.NewError(xfer.NoFile, cmd, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return xfer.NewError(xfer.LoginFailed, cmd, msg)
	case resp.StatusCode == http.StatusNotImplemented || resp.StatusCode == http.StatusMethodNotAllowed:
		return xfer.NewError(xfer.NotSupported, cmd, msg)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return xfer.NewError(xfer.FileMoved, cmd, msg)
	case resp.StatusCode >= 500:
		e := xfer.NewError(xfer.SeeErrno, cmd, msg)
		e.Retryable = true
		return e
	default:
		return xfer.NewError(xfer.Fatal, cmd, msg)
	}
}

// Open begins mode on path at byte offset pos.
func (e *Engine) Open(p string, mode xfer.OpenMode, pos int64) error {
	e.mu.Lock()
	if !e.isDoneLocked() {
		e.mu.Unlock()
		return fmt.Errorf("webdav: operation already in progress")
	}
	e.mode = mode
	e.done = make(chan struct{})
	e.opErr = nil
	e.resp, e.pw = nil, nil
	e.files = nil
	e.readPos = pos
	e.mu.Unlock()

	full := e.cl.joinPath(p)
	ctx := context.Background()

	switch mode {
	case xfer.Retrieve:
		go func() {
			resp, err := e.cl.Get(ctx, full, pos)
			if err != nil {
				e.finish("GET "+full, err)
				return
			}
			if xe := statusErr("GET "+full, resp); xe != nil {
				drainAndClose(resp)
				e.finish("GET "+full, xe)
				return
			}
			if cl := resp.ContentLength; cl >= 0 {
				e.mu.Lock()
				e.size, e.sizeKnown = pos+cl, true
				e.mu.Unlock()
			}
			if lm := resp.Header.Get("Last-Modified"); lm != "" {
				if t, err := http1123OrRFC3339(lm); err == nil {
					e.mu.Lock()
					e.modTime, e.modTimeKnown = t, true
					e.mu.Unlock()
				}
			}
			e.mu.Lock()
			e.resp = resp
			e.mu.Unlock()
			e.markMoved()
			e.finish("GET "+full, nil)
		}()
	case xfer.Store:
		pr, pw := io.Pipe()
		e.mu.Lock()
		e.pw = pw
		size, sizeKnown := e.size, e.sizeKnown
		e.mu.Unlock()
		go func() {
			resp, err := e.cl.Put(ctx, full, pos, size, sizeKnown, pr)
			if err == nil {
				err = statusErr("PUT "+full, resp)
				if err == nil {
					drainAndClose(resp)
				}
			}
			pr.CloseWithError(err)
			e.finish("PUT "+full, err)
		}()
	case xfer.List, xfer.LongList:
		go func() {
			if !e.cl.UsePropfind() {
				e.finish("PROPFIND "+full, xfer.NewError(xfer.NotSupported, "PROPFIND "+full, "server does not speak WebDAV"))
				return
			}
			resp, err := e.cl.Propfind(ctx, full, "1")
			if err != nil {
				e.finish("PROPFIND "+full, err)
				return
			}
			defer drainAndClose(resp)
			if resp.StatusCode != http.StatusMultiStatus {
				e.finish("PROPFIND "+full, statusErr("PROPFIND "+full, resp))
				return
			}
			fs, err := parsePropfind(resp.Body, full)
			if err == nil {
				e.mu.Lock()
				e.files = fs
				e.mu.Unlock()
			}
			e.finish("PROPFIND "+full, err)
		}()
	case xfer.ChangeDir:
		go func() {
			fi, err := e.statOne(ctx, full)
			if err != nil {
				e.finish("CWD "+full, err)
				return
			}
			if fi != nil && fi.Type != xfer.TypeDir && fi.Type != xfer.TypeUnknown {
				e.finish("CWD "+full, xfer.NewError(xfer.NoFile, "CWD "+full, "not a collection"))
				return
			}
			e.cl.SetCwd(full)
			e.finish("CWD "+full, nil)
		}()
	case xfer.MakeDir:
		go func() {
			resp, err := e.cl.Mkcol(ctx, full)
			if err == nil {
				err = statusErr("MKCOL "+full, resp)
				drainAndClose(resp)
			}
			e.finish("MKCOL "+full, err)
		}()
	case xfer.RemoveDir, xfer.Remove:
		go func() {
			resp, err := e.cl.Delete(ctx, full)
			if err == nil {
				err = statusErr("DELETE "+full, resp)
				drainAndClose(resp)
			}
			e.finish("DELETE "+full, err)
		}()
	case xfer.ArrayInfo:
		go func() {
			fi, err := e.statOne(ctx, full)
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
			e.finish("PROPFIND "+full, err)
		}()
	case xfer.ConnectVerify:
		go func() { e.finish("", nil) }()
	case xfer.QuoteCmd:
		go func() {
			e.finish(p, xfer.NewError(xfer.NotSupported, p, "webdav has no raw command channel"))
		}()
	default:
		e.finish("", nil)
		return fmt.Errorf("webdav: unsupported open mode %v", mode)
	}
	return nil
}

// statOne resolves one entry's metadata via Depth:0 PROPFIND, falling back
// to HEAD once the host has been flagged as not speaking WebDAV
// (spec.md §4.6).
func (e *Engine) statOne(ctx context.Context, full string) (*xfer.FileInfo, error) {
	if e.cl.UsePropfind() {
		resp, err := e.cl.Propfind(ctx, full, "0")
		if err != nil {
			return nil, err
		}
		defer drainAndClose(resp)
		if resp.StatusCode == http.StatusMultiStatus {
			return parsePropfindOne(resp.Body)
		}
		if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotImplemented {
			return nil, statusErr("PROPFIND "+full, resp)
		}
	}
	resp, err := e.cl.Head(ctx, full)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)
	if xe := statusErr("HEAD "+full, resp); xe != nil {
		return nil, xe
	}
	fi := &xfer.FileInfo{Type: xfer.TypeUnknown}
	if resp.ContentLength >= 0 {
		fi.SetSize(resp.ContentLength)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http1123OrRFC3339(lm); err == nil {
			fi.SetModTime(t, xfer.PrecisionSecond)
		}
	}
	return fi, nil
}

// Close ends the current operation, returning the session to logged-in.
func (e *Engine) Close() error {
	e.mu.Lock()
	resp, pw := e.resp, e.pw
	e.resp, e.pw = nil, nil
	e.mode = xfer.Closed
	e.mu.Unlock()
	if resp != nil {
		drainAndClose(resp)
	}
	if pw != nil {
		pw.Close()
	}
	return nil
}

// Read pulls bytes for a Retrieve open.
func (e *Engine) Read(buf []byte) (int, error) {
	e.mu.Lock()
	mode := e.mode
	resp := e.resp
	e.mu.Unlock()

	if mode != xfer.Retrieve {
		return 0, fmt.Errorf("webdav: Read called outside a Retrieve open")
	}
	if resp == nil {
		if !e.isDone() {
			return 0, nil
		}
		return 0, io.EOF
	}
	if e.limit > 0 {
		if e.readPos >= e.limit {
			return 0, io.EOF
		}
		if remain := e.limit - e.readPos; int64(len(buf)) > remain {
			buf = buf[:remain]
		}
	}
	n, err := resp.Body.Read(buf)
	e.readPos += int64(n)
	if n > 0 {
		e.markMoved()
	}
	return n, err
}

func (e *Engine) isDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDoneLocked()
}

// Write pushes bytes for a Store open.
func (e *Engine) Write(buf []byte) (int, error) {
	e.mu.Lock()
	mode := e.mode
	pw := e.pw
	e.mu.Unlock()
	if mode != xfer.Store || pw == nil {
		return 0, fmt.Errorf("webdav: Write called outside a Store open")
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

// Rename issues a WebDAV MOVE; there is no asynchronous Open/Done round
// trip for it since every other Session implementation also treats Rename
// as a direct call (see ftp.Engine.Rename).
func (e *Engine) Rename(from, to string) error {
	resp, err := e.cl.Move(context.Background(), e.cl.joinPath(from), e.cl.joinPath(to))
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	return statusErrOrNil("MOVE "+from, resp)
}

func statusErrOrNil(cmd string, resp *http.Response) error {
	if xe := statusErr(cmd, resp); xe != nil {
		return xe
	}
	return nil
}

func (e *Engine) Mkdir(p string, allParents bool) error {
	resp, err := e.cl.Mkcol(context.Background(), e.cl.joinPath(p))
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	return statusErrOrNil("MKCOL "+p, resp)
}

// Chdir commits the new cwd; when verify is set it first checks that path
// is a collection via PROPFIND Depth:0 (or HEAD once usePropfind has been
// flipped off).
func (e *Engine) Chdir(p string, verify bool) error {
	full := e.cl.joinPath(p)
	if verify {
		fi, err := e.statOne(context.Background(), full)
		if err != nil {
			return err
		}
		if fi != nil && fi.Type != xfer.TypeDir && fi.Type != xfer.TypeUnknown {
			return xfer.NewError(xfer.NoFile, "CWD "+full, "not a collection")
		}
	}
	e.cl.SetCwd(full)
	return nil
}

// Files returns the FileSet parsed from the most recently completed List
// open, or nil if the last open wasn't a listing.
func (e *Engine) Files() *xfer.FileSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files
}

// Chmod has no WebDAV equivalent; plain HTTP/DAV servers don't expose POSIX
// permission bits.
func (e *Engine) Chmod(path string, mode uint16) error {
	return xfer.NewError(xfer.NotSupported, "CHMOD "+path, "webdav has no permission-bit operation")
}

func (e *Engine) Remove(p string) error {
	resp, err := e.cl.Delete(context.Background(), e.cl.joinPath(p))
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	return statusErrOrNil("DELETE "+p, resp)
}

func (e *Engine) RemoveDir(p string) error { return e.Remove(p) }

// SetDate has no effect: plain WebDAV (unlike some CalDAV/CardDAV
// extensions) has no standard setlastmodified write operation.
func (e *Engine) SetDate(t time.Time) error { return nil }

// SetSize records the size an upload will send; PUT doesn't strictly need
// it (Content-Length can be chunked away), but Content-Range on a resumed
// upload does.
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

func (e *Engine) Cwd() string  { return e.cl.Cwd() }
func (e *Engine) Home() string { return e.cl.Home() }

// SetAsciiTransfer is a no-op: HTTP bodies are always the exact bytes the
// server returned, there's no newline-translation mode to toggle.
func (e *Engine) SetAsciiTransfer(v bool) { e.ascii = v }

func (e *Engine) SetLimit(end int64) {
	e.mu.Lock()
	e.limit = end
	e.mu.Unlock()
}
func (e *Engine) SetPriority(p int) { e.priority = p }
func (e *Engine) IsConnected() bool { return e.cl != nil }

// CanSeek is true: a fresh Range GET can start at any offset, unlike FISH's
// fixed-at-Open-time shell command.
func (e *Engine) CanSeek(off int64) bool { return true }

func (e *Engine) Seek(off int64) error {
	e.mu.Lock()
	e.readPos = off
	e.mu.Unlock()
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

// NeedsSizeDateBeforehand is false: PUT can stream without a known
// Content-Length (chunked transfer encoding), unlike FISH's "dd count=N".
func (e *Engine) NeedsSizeDateBeforehand() bool { return false }

func (e *Engine) Error() *xfer.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opErr
}
func (e *Engine) Identity() xfer.Identity { return e.id }

var _ xfer.Session = (*Engine)(nil)
