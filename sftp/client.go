package sftp

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/internal/sshproc"
)

// Options configures a Dial call (spec.md §6.4's sftp:connect-program /
// sftp:server-program knobs).
type Options struct {
	User           string
	Port           string
	Password       string
	ConnectProgram string
	ServerProgram  string // default "sftp" (ssh subsystem request)
	AutoConfirm    bool
	MaxPacketsInFlight int // default 16, clamped to [1,64]
}

// Client drives the blocking SFTP request/reply conversation over an ssh
// subprocess, the way fish.Client drives the shell conversation.
type Client struct {
	proc  *sshproc.Proc
	login *sshproc.LoginFilter
	w     io.Writer
	r     io.Reader

	version     int
	nextID      uint32
	maxInFlight int

	home, cwd string

	mu sync.Mutex
}

// Dial launches the connect program, negotiates the protocol version, and
// fetches the home directory via REALPATH(".").
func Dial(host string, opts Options) (*Client, error) {
	server := opts.ServerProgram
	if server == "" {
		server = "sftp"
	}
	proc, err := sshproc.Launch(sshproc.Options{
		ConnectProgram: opts.ConnectProgram,
		ServerProgram:  server,
		User:           opts.User,
		Host:           host,
		Port:           opts.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("sftp: dial %s: %w", host, err)
	}
	login := sshproc.NewLoginFilter(proc.PTY, opts.Password, opts.AutoConfirm)

	maxInFlight := opts.MaxPacketsInFlight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	if maxInFlight > 64 {
		maxInFlight = 64
	}

	c := &Client{
		proc:        proc,
		login:       login,
		w:           login,
		r:           bufio.NewReaderSize(login, 32*1024),
		maxInFlight: maxInFlight,
	}

	if err := c.handshake(); err != nil {
		proc.Wait()
		return nil, err
	}
	login.MarkLoggedIn()

	home, err := c.Realpath(".")
	if err != nil {
		return nil, err
	}
	c.home = home
	c.cwd = home
	return c, nil
}

func (c *Client) handshake() error {
	w := &wireWriter{}
	w.PutUint32(maxVersion)
	if err := writePacket(c.w, packetInit, 0, false, w.Bytes()); err != nil {
		return fmt.Errorf("sftp: send INIT: %w", err)
	}
	typ, _, payload, err := readPacket(c.r)
	if err != nil {
		return fmt.Errorf("sftp: read VERSION: %w", err)
	}
	if typ != packetVersion {
		return fmt.Errorf("sftp: expected VERSION, got packet type %d", typ)
	}
	r := newWireReader(payload)
	c.version = int(r.Uint32())
	if c.version < minVersion {
		c.version = minVersion
	}
	if c.version > maxVersion {
		c.version = maxVersion
	}
	return nil
}

func (c *Client) allocID() uint32 { return atomic.AddUint32(&c.nextID, 1) }

// request sends a framed request and blocks for exactly the one reply that
// answers it (every Client method but Retrieve/Store is strictly
// synchronous one-request-one-reply, like a single FTP command with no
// pipelining).
func (c *Client) request(typ byte, payload []byte) (replyType byte, replyPayload []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.allocID()
	if err := writePacket(c.w, typ, id, true, payload); err != nil {
		return 0, nil, err
	}
	rt, rid, rp, err := readPacket(c.r)
	if err != nil {
		return 0, nil, err
	}
	if rid != id {
		return 0, nil, fmt.Errorf("sftp: reply id %d does not match request id %d", rid, id)
	}
	return rt, rp, nil
}

func (c *Client) statusErr(cmd string, payload []byte) error {
	r := newWireReader(payload)
	code := r.Uint32()
	if code == statusOK {
		return nil
	}
	msg := r.String()
	return xfer.NewError(statusToKind(code), cmd, msg)
}

func protocolError(cmd string, got byte) error {
	return xfer.NewError(xfer.Fatal, cmd, fmt.Sprintf("unexpected reply packet type %d", got))
}

// Realpath resolves path (which may be relative, "~", or ".") to an
// absolute path, the way Request_REALPATH does.
func (c *Client) Realpath(path string) (string, error) {
	w := &wireWriter{}
	w.PutString(path)
	rt, rp, err := c.request(packetRealpath, w.Bytes())
	if err != nil {
		return "", err
	}
	switch rt {
	case packetName:
		r := newWireReader(rp)
		count := r.Uint32()
		if count == 0 {
			return "", xfer.NewError(xfer.NoFile, "REALPATH "+path, "no such file")
		}
		name := r.String()
		return name, nil
	case packetStatus:
		return "", c.statusErr("REALPATH "+path, rp)
	default:
		return "", protocolError("REALPATH", rt)
	}
}

// Stat issues SSH_FXP_STAT (follows symlinks); LStat (not exposed
// separately, since nothing in xfer.Session distinguishes them) would be
// SSH_FXP_LSTAT with the same wire shape.
func (c *Client) Stat(path string) (*xfer.FileInfo, error) {
	w := &wireWriter{}
	w.PutString(path)
	rt, rp, err := c.request(packetStat, w.Bytes())
	if err != nil {
		return nil, err
	}
	switch rt {
	case packetAttrs:
		a := unpackAttrs(newWireReader(rp), c.version)
		name := path
		if i := lastSlash(path); i >= 0 {
			name = path[i+1:]
		}
		return a.toFileInfo(name), nil
	case packetStatus:
		return nil, c.statusErr("STAT "+path, rp)
	default:
		return nil, protocolError("STAT", rt)
	}
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// List performs OPENDIR+READDIR* (+CLOSE), returning every entry the server
// sends across as many READDIR round-trips as needed.
func (c *Client) List(path string) (*xfer.FileSet, error) {
	handle, err := c.opendir(path)
	if err != nil {
		return nil, err
	}
	defer c.closeHandle(handle)

	fs := xfer.NewFileSet()
	for {
		w := &wireWriter{}
		w.PutString(handle)
		rt, rp, err := c.request(packetReaddir, w.Bytes())
		if err != nil {
			return nil, err
		}
		if rt == packetStatus {
			r := newWireReader(rp)
			code := r.Uint32()
			if code == statusEOF {
				return fs, nil
			}
			msg := r.String()
			return nil, xfer.NewError(statusToKind(code), "READDIR "+path, msg)
		}
		if rt != packetName {
			return nil, protocolError("READDIR", rt)
		}
		r := newWireReader(rp)
		count := r.Uint32()
		for i := uint32(0); i < count; i++ {
			name := r.String()
			if c.version < 4 {
				r.String() // longname, redundant with attrs below v4 too
			}
			a := unpackAttrs(r, c.version)
			if name == "." || name == ".." {
				continue
			}
			fs.Add(a.toFileInfo(name))
		}
	}
}

func (c *Client) opendir(path string) (string, error) {
	w := &wireWriter{}
	w.PutString(path)
	rt, rp, err := c.request(packetOpendir, w.Bytes())
	if err != nil {
		return "", err
	}
	switch rt {
	case packetHandle:
		r := newWireReader(rp)
		return r.String(), nil
	case packetStatus:
		return "", c.statusErr("OPENDIR "+path, rp)
	default:
		return "", protocolError("OPENDIR", rt)
	}
}

func (c *Client) closeHandle(handle string) error {
	w := &wireWriter{}
	w.PutString(handle)
	rt, rp, err := c.request(packetClose, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("CLOSE", rt)
	}
	return c.statusErr("CLOSE", rp)
}

func (c *Client) open(path string, pflags uint32, a *attrs) (string, error) {
	if a == nil {
		a = &attrs{}
	}
	w := &wireWriter{}
	w.PutString(path)
	w.PutUint32(pflags)
	a.pack(w, c.version)
	rt, rp, err := c.request(packetOpen, w.Bytes())
	if err != nil {
		return "", err
	}
	switch rt {
	case packetHandle:
		r := newWireReader(rp)
		return r.String(), nil
	case packetStatus:
		return "", c.statusErr("OPEN "+path, rp)
	default:
		return "", protocolError("OPEN", rt)
	}
}

func (c *Client) Remove(path string) error {
	w := &wireWriter{}
	w.PutString(path)
	rt, rp, err := c.request(packetRemove, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("REMOVE", rt)
	}
	return c.statusErr("REMOVE "+path, rp)
}

func (c *Client) Mkdir(path string) error {
	w := &wireWriter{}
	w.PutString(path)
	(&attrs{}).pack(w, c.version)
	rt, rp, err := c.request(packetMkdir, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("MKDIR", rt)
	}
	return c.statusErr("MKDIR "+path, rp)
}

func (c *Client) Rmdir(path string) error {
	w := &wireWriter{}
	w.PutString(path)
	rt, rp, err := c.request(packetRmdir, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("RMDIR", rt)
	}
	return c.statusErr("RMDIR "+path, rp)
}

func (c *Client) Rename(from, to string) error {
	w := &wireWriter{}
	w.PutString(from)
	w.PutString(to)
	rt, rp, err := c.request(packetRename, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("RENAME", rt)
	}
	return c.statusErr("RENAME "+from+" "+to, rp)
}

// Chmod issues SETSTAT with only the permissions bit set, matching
// SFtp.cc's CHMOD implementation.
func (c *Client) Chmod(path string, mode uint16) error {
	w := &wireWriter{}
	w.PutString(path)
	a := &attrs{havePerms: true, perms: uint32(mode & 07777)}
	a.pack(w, c.version)
	rt, rp, err := c.request(packetSetstat, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("SETSTAT", rt)
	}
	return c.statusErr("CHMOD "+path, rp)
}

// SetStatTime applies mtime to path with a standalone SETSTAT. Engine does
// not call it; a Store sends its mtime in the OPEN request's attributes.
func (c *Client) SetStatTime(path string, mtime time.Time) error {
	w := &wireWriter{}
	w.PutString(path)
	a := &attrs{haveACmodTime: true, haveModifyTime: true, atime: mtime, mtime: mtime}
	a.pack(w, c.version)
	rt, rp, err := c.request(packetSetstat, w.Bytes())
	if err != nil {
		return err
	}
	if rt != packetStatus {
		return protocolError("SETSTAT", rt)
	}
	return c.statusErr("SETSTAT "+path, rp)
}

const defaultChunkSize = 32 * 1024

// Retrieve opens path for reading and returns an io.Reader that internally
// pipelines READ requests using a sliding window: at most MaxPacketsInFlight
// outstanding reads, halved to start (slow start) and grown by one per
// completed read up to the cap, with replies reassembled in order even when
// they arrive out of sequence (spec.md §4.4).
func (c *Client) Retrieve(path string, pos int64) (io.Reader, *xfer.FileInfo, error) {
	fi, err := c.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	handle, err := c.open(path, pflagRead, nil)
	if err != nil {
		return nil, nil, err
	}
	window := c.maxInFlight
	rs := &retrieveStream{
		c:              c,
		handle:         handle,
		chunkSize:      defaultChunkSize,
		maxInFlight:    window,
		window:         max1(window / 2),
		nextSendOffset: pos,
		expectedOffset: pos,
		inFlight:       make(map[uint32]int64),
		pending:        make(map[int64][]byte),
	}
	if fi.HasSize() {
		rs.haveSize = true
		rs.fileSize = fi.Size()
	}
	return rs, fi, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// retrieveStream is the io.Reader returned by Retrieve. It is not safe for
// concurrent use, matching every other Session's single-operation-at-a-time
// contract.
type retrieveStream struct {
	c      *Client
	handle string

	chunkSize   int
	maxInFlight int
	window      int

	nextSendOffset int64
	expectedOffset int64

	inFlight map[uint32]int64
	pending  map[int64][]byte

	haveSize bool
	fileSize int64

	sawEOF  bool // a READ at the tail has reported SSH_FX_EOF
	eofAt   int64
	closed  bool
	err     error
	buf     []byte
}

func (rs *retrieveStream) Read(p []byte) (int, error) {
	if rs.err != nil {
		return 0, rs.err
	}
	for len(rs.buf) == 0 {
		if rs.sawEOF && rs.expectedOffset >= rs.eofAt && len(rs.inFlight) == 0 {
			rs.closeOnce()
			return 0, io.EOF
		}
		rs.fill()
		if len(rs.inFlight) == 0 && !rs.sawEOF {
			// Nothing in flight and not done: shouldn't happen, but avoid a
			// busy spin if it does.
			rs.closeOnce()
			rs.err = io.ErrUnexpectedEOF
			return 0, rs.err
		}
		if err := rs.recvOne(); err != nil {
			rs.closeOnce()
			rs.err = err
			return 0, err
		}
		rs.drain()
	}
	n := copy(p, rs.buf)
	rs.buf = rs.buf[n:]
	return n, nil
}

func (rs *retrieveStream) closeOnce() {
	if rs.closed {
		return
	}
	rs.closed = true
	rs.c.closeHandle(rs.handle)
}

// fill tops up the in-flight window with new READ requests until it is full
// or the known file size has been entirely requested.
func (rs *retrieveStream) fill() {
	for len(rs.inFlight) < rs.window {
		if rs.sawEOF {
			return
		}
		if rs.haveSize && rs.nextSendOffset >= rs.fileSize {
			return
		}
		w := &wireWriter{}
		w.PutString(rs.handle)
		w.PutUint64(uint64(rs.nextSendOffset))
		w.PutUint32(uint32(rs.chunkSize))

		rs.c.mu.Lock()
		id := rs.c.allocID()
		err := writePacket(rs.c.w, packetRead, id, true, w.Bytes())
		rs.c.mu.Unlock()
		if err != nil {
			rs.err = err
			return
		}
		rs.inFlight[id] = rs.nextSendOffset
		rs.nextSendOffset += int64(rs.chunkSize)
	}
}

// recvOne reads exactly one packet belonging to this stream's in-flight
// requests and files its data (or EOF/error) away for drain to reassemble.
func (rs *retrieveStream) recvOne() error {
	rs.c.mu.Lock()
	typ, id, payload, err := readPacket(rs.c.r)
	rs.c.mu.Unlock()
	if err != nil {
		return err
	}
	offset, ok := rs.inFlight[id]
	if !ok {
		return fmt.Errorf("sftp: reply for unknown request id %d", id)
	}
	delete(rs.inFlight, id)

	switch typ {
	case packetData:
		r := newWireReader(payload)
		data := r.Bytes()
		rs.pending[offset] = data
		if rs.window < rs.maxInFlight {
			rs.window++
		}
	case packetStatus:
		r := newWireReader(payload)
		code := r.Uint32()
		if code == statusEOF {
			if !rs.sawEOF || offset < rs.eofAt {
				rs.eofAt = offset
			}
			rs.sawEOF = true
			return nil
		}
		msg := r.String()
		return xfer.NewError(statusToKind(code), "READ", msg)
	default:
		return protocolError("READ", typ)
	}
	return nil
}

// drain moves any pending chunks that are now at the front of the stream
// into buf, in order.
func (rs *retrieveStream) drain() {
	for {
		chunk, ok := rs.pending[rs.expectedOffset]
		if !ok {
			return
		}
		delete(rs.pending, rs.expectedOffset)
		rs.buf = append(rs.buf, chunk...)
		rs.expectedOffset += int64(len(chunk))
		if len(chunk) == 0 {
			rs.sawEOF = true
			rs.eofAt = rs.expectedOffset
			return
		}
	}
}

// Store opens path for writing and streams bytes from r starting at pos
// using the same sliding-window pipelining as Retrieve, in the other
// direction; pos==0 truncates the remote file first, pos>0 overwrites (or
// extends) it in place to support resumed uploads.
func (c *Client) Store(path string, pos int64, size int64, haveSize bool, mtime time.Time, haveMTime bool, r io.Reader) error {
	a := fileInfoToAttrs(size, haveSize, mtime, haveMTime)
	pflags := pflagWrite | pflagCreat
	if pos == 0 {
		pflags |= pflagTrunc
	}
	handle, err := c.open(path, pflags, a)
	if err != nil {
		return err
	}

	const chunk = defaultChunkSize
	window := max1(c.maxInFlight / 2)
	inFlight := make(map[uint32]struct{})
	sent := pos
	buf := make([]byte, chunk)

	var eof bool
	for !eof || len(inFlight) > 0 {
		for len(inFlight) < window && !eof {
			n, rerr := io.ReadFull(r, buf)
			if n > 0 {
				w := &wireWriter{}
				w.PutString(handle)
				w.PutUint64(uint64(sent))
				w.PutString(string(buf[:n]))
				c.mu.Lock()
				id := c.allocID()
				werr := writePacket(c.w, packetWrite, id, true, w.Bytes())
				c.mu.Unlock()
				if werr != nil {
					c.closeHandle(handle)
					return werr
				}
				inFlight[id] = struct{}{}
				sent += int64(n)
				if window < c.maxInFlight {
					window++
				}
			}
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				eof = true
			} else if rerr != nil {
				c.closeHandle(handle)
				return rerr
			}
		}
		if len(inFlight) > 0 {
			c.mu.Lock()
			_, id, payload, err := readPacket(c.r)
			c.mu.Unlock()
			if err != nil {
				return err
			}
			if _, ok := inFlight[id]; !ok {
				return fmt.Errorf("sftp: WRITE reply for unknown id %d", id)
			}
			delete(inFlight, id)
			if serr := c.statusErr("WRITE "+path, payload); serr != nil {
				c.closeHandle(handle)
				return serr
			}
		}
	}
	return c.closeHandle(handle)
}

func (c *Client) Cwd() string  { return c.cwd }
func (c *Client) Home() string { return c.home }

// ChangeDir resolves path against the server (so a relative path or "~" is
// normalized) and updates Cwd.
func (c *Client) ChangeDir(path string) error {
	abs, err := c.Realpath(path)
	if err != nil {
		return err
	}
	fi, err := c.Stat(abs)
	if err != nil {
		return err
	}
	if fi.Type != xfer.TypeDir && fi.Type != xfer.TypeUnknown {
		return xfer.NewError(xfer.NoFile, "CWD "+path, "not a directory")
	}
	c.cwd = abs
	return nil
}

func (c *Client) Close() error {
	return c.proc.Wait()
}
