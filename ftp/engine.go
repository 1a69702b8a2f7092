package ftp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/internal/netutil"
	"github.com/gonzalop/xfer/internal/retry"
	"github.com/gonzalop/xfer/scheduler"
)

// Credentials is the plaintext login the engine sends with USER/PASS. It is
// kept separate from xfer.Identity, which only ever carries a PassHash (the
// cache/pool equivalence key must not retain the real password).
type Credentials struct {
	User     string
	Password string
}

// engineState is the connection-lifetime half of spec.md §4.3's state
// machine: CONNECTING through CONNECTED/USER_RESP_WAITING up to the idle,
// logged-in state every operation starts and ends at.
type engineState int

const (
	stConnecting engineState = iota
	stBanner
	stUser
	stPass
	stFeat
	stReady // idle, logged in
	stFailed
)

// opPhase is the per-operation half of the state machine: preamble commands
// (TYPE/REST/PASV-EPSV-PORT-EPRT), the DATASOCKET_CONNECTING/ACCEPTING data
// dial, the transfer command's WAITING_150, DATA_OPEN, and the closing
// WAITING for 226.
type opPhase int

const (
	phasePreamble opPhase = iota
	phaseDialData
	phaseTransferCmd
	phaseDataOpen
	phaseSimple
	phaseDone
)

// preambleCmd is one command sent before the transfer command itself: these
// may be pipelined ahead of their replies unless sync-mode restricts the
// engine to one outstanding command.
type preambleCmd struct {
	kind expectKind
	cmd  string
}

// asyncResult is what a one-shot helper goroutine (dialing a data address,
// accepting a PORT connection, copying transfer bytes) reports back through
// a channel Do polls without blocking. None of these goroutines make
// protocol decisions; they only move bytes or hand back a net.Conn, the
// same concession every engine in this module makes at its Read/Write seam.
type asyncResult struct {
	conn net.Conn
	err  error
}

// operation is the Session's current Open'd request, stepped forward one
// reply or one async event at a time by Engine.Do.
type operation struct {
	mode xfer.OpenMode
	path string
	pos  int64

	done chan struct{}
	err  *xfer.Error

	phase opPhase

	preamble     []preambleCmd
	preambleSent int
	preambleDone int
	triedPASV    bool
	triedActive  bool

	transferCmd  string
	transferSent bool

	useActive bool
	listener  net.Listener
	dataAddr  string
	dataConn  net.Conn
	asyncCh   chan asyncResult
	asyncBusy bool

	simpleKind expectKind
	simpleCmd  string
	simpleSent bool

	pw      *io.PipeWriter
	pr      *io.PipeReader
	listing bool
	listBuf bytes.Buffer
	listPos int
	files   *xfer.FileSet
}

// Engine is the expectation-queue-driven, non-blocking FTP session
// (spec.md §4.3): Do is the only place the control conversation advances,
// draining replies a background line-reader goroutine relays and sending
// the next queued command according to sync-mode, without ever blocking on
// the network itself.
type Engine struct {
	scheduler.NoSignal

	id     xfer.Identity
	creds  Credentials
	addr   string
	dialer *netutil.Dialer

	settings settings
	backoff  *retry.Backoff

	mu sync.Mutex

	conn    net.Conn
	lines   <-chan string
	lineErr <-chan error
	connCh  chan asyncResult

	asm   replyAssembler
	state engineState
	queue expectQueue

	cwd      string
	features map[string]string
	restOK   bool
	mlstOK   bool
	epsvOK   bool

	op *operation

	ascii        bool
	limit        int64
	readPos      int64
	priority     int
	size         int64
	sizeKnown    bool
	modTime      time.Time
	modTimeKnown bool
	ioReady      bool
}

// Dial starts connecting to addr; the connect, banner, and login exchange
// all happen on later Do calls rather than inside Dial itself, so Dial
// never blocks.
func Dial(addr string, dialer *netutil.Dialer, id xfer.Identity, creds Credentials, opts ...Option) *Engine {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	e := &Engine{
		id:       id,
		creds:    creds,
		addr:     addr,
		dialer:   dialer,
		settings: s,
		epsvOK:   !s.disableEPSV,
		restOK:   true,
		connCh:   make(chan asyncResult, 1),
		features: make(map[string]string),
	}
	if s.store != nil {
		e.backoff = s.store.Backoff(s.closure)
	} else {
		e.backoff = retry.New(retry.DefaultPolicy)
	}
	go e.connect()
	return e
}

func (e *Engine) connect() {
	ctx := context.Background()
	if e.settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.timeout)
		defer cancel()
	}
	conn, err := e.dialer.DialContext(ctx, "tcp", e.addr)
	e.connCh <- asyncResult{conn: conn, err: err}
}

func startLineReader(r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string, 64)
	errc := make(chan error, 1)
	go func() {
		br := bufio.NewReaderSize(r, 4096)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				errc <- err
				close(lines)
				return
			}
		}
	}()
	return lines, errc
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func toErr(xe *xfer.Error) error {
	if xe == nil {
		return nil
	}
	return xe
}

// Do advances the control conversation by exactly as much as is available
// without blocking: one drain of already-arrived reply lines, one step of
// whichever command sequence is in flight, one drain of any async data
// helper's result.
func (e *Engine) Do() scheduler.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	moved := false

	if e.state == stConnecting {
		select {
		case res := <-e.connCh:
			if res.err != nil {
				e.failConnect(res.err)
			} else {
				e.conn = res.conn
				e.lines, e.lineErr = startLineReader(e.conn)
				e.state = stBanner
				e.queue.push(expectation{kind: expectReady, cmd: "(connect)"})
			}
			moved = true
		default:
		}
		return status(moved)
	}

drain:
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				var err error
				select {
				case err = <-e.lineErr:
				default:
					err = io.ErrUnexpectedEOF
				}
				e.onControlDropped(err)
				return status(true)
			}
			r, err := e.asm.feed(line)
			if err != nil {
				e.onControlDropped(err)
				return status(true)
			}
			if r != nil {
				e.dispatchReply(r)
				moved = true
			}
		default:
			break drain
		}
	}

	if e.advanceOp() {
		moved = true
	}
	if e.pollAsync() {
		moved = true
	}
	return status(moved)
}

func status(moved bool) scheduler.Status {
	if moved {
		return scheduler.Moved
	}
	return scheduler.Stall
}

// Wait reports the current operation's completion channel so a Scheduler
// can sleep instead of polling.
func (e *Engine) Wait() scheduler.Waiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return scheduler.Waiter{}
	}
	return scheduler.Waiter{Ready: e.op.done}
}

func (e *Engine) canSendNext() bool {
	return !e.settings.syncMode || e.queue.len() == 0
}

func (e *Engine) writeRaw(kind expectKind, cmd string) {
	e.queue.push(expectation{kind: kind, cmd: cmd})
	e.conn.SetWriteDeadline(time.Now().Add(e.settings.timeout))
	e.conn.Write(encodeCommand(cmd))
}

func (e *Engine) failConnect(err error) {
	e.state = stFailed
	if e.op != nil {
		e.finishOpLocked(xfer.WrapError(xfer.NoHost, "(connect)", err))
	}
}

// onControlDropped handles the control socket ending unexpectedly, either
// during login or mid-operation.
func (e *Engine) onControlDropped(err error) {
	e.state = stFailed
	if e.op != nil {
		xe := xfer.WrapError(xfer.NoHost, "(control)", err)
		e.finishOpLocked(xe)
	}
}

// dispatchReply matches r against the queue head. Login-phase kinds are
// handled here directly (login isn't operation-scoped); everything else is
// handed to the current operation.
func (e *Engine) dispatchReply(r *reply) {
	exp, ok := e.queue.pop()
	if !ok {
		return
	}
	switch exp.kind {
	case expectReady:
		e.onBanner(r)
		return
	case expectUser:
		e.onUser(r)
		return
	case expectPass:
		e.onPass(r)
		return
	case expectFeat:
		e.onFeat(r)
		return
	case expectIgnore:
		return
	}
	if e.op != nil {
		e.handleOpReply(exp, r)
	}
}

func (e *Engine) onBanner(r *reply) {
	if !r.Is2xx() {
		e.state = stFailed
		if e.op != nil {
			e.finishOpLocked(classifyReply("(connect)", r))
		}
		return
	}
	e.state = stUser
	e.writeRaw(expectUser, "USER "+e.creds.User)
}

func (e *Engine) onUser(r *reply) {
	if r.Code == 230 {
		e.onLoggedIn()
		return
	}
	if !r.Is3xx() {
		e.state = stFailed
		if e.op != nil {
			e.finishOpLocked(classifyReply("USER", r))
		}
		return
	}
	e.state = stPass
	e.writeRaw(expectPass, "PASS "+e.creds.Password)
}

func (e *Engine) onPass(r *reply) {
	if !r.Is2xx() {
		e.state = stFailed
		if e.op != nil {
			e.finishOpLocked(classifyReply("PASS", r))
		}
		return
	}
	e.onLoggedIn()
}

func (e *Engine) onLoggedIn() {
	e.backoff.Reset()
	if e.settings.useFeat {
		e.state = stFeat
		e.writeRaw(expectFEAT, "FEAT")
		return
	}
	e.state = stReady
	if e.op != nil && e.op.mode == xfer.ConnectVerify {
		e.finishOpLocked(nil)
	}
}

// onFeat records the advertised capability set: RFC 3659's REST/MLST gate
// an optimization the engine otherwise has to assume the server lacks.
func (e *Engine) onFeat(r *reply) {
	if r.Is2xx() && len(r.Lines) > 2 {
		for _, line := range r.Lines[1 : len(r.Lines)-1] {
			feat := strings.ToUpper(strings.TrimSpace(line))
			name, _, _ := strings.Cut(feat, " ")
			e.features[name] = feat
		}
		_, e.restOK = e.features["REST"]
		_, e.mlstOK = e.features["MLST"]
	}
	// A server that rejects FEAT outright keeps the defaults: REST is still
	// assumed (restOK starts true) and MLSD stays off.
	e.state = stReady
	if e.op != nil && e.op.mode == xfer.ConnectVerify {
		e.finishOpLocked(nil)
	}
}

// Open begins mode on path at byte offset pos. Only one operation may be
// open at a time.
func (e *Engine) Open(path string, mode xfer.OpenMode, pos int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op != nil && !isClosed(e.op.done) {
		return fmt.Errorf("ftp: operation already in progress")
	}

	op := &operation{mode: mode, path: path, pos: pos, done: make(chan struct{})}

	switch mode {
	case xfer.Retrieve, xfer.Store:
		typ := "I"
		if e.ascii {
			typ = "A"
		}
		op.preamble = append(op.preamble, preambleCmd{expectTYPE, "TYPE " + typ})
		if mode == xfer.Retrieve && pos > 0 {
			op.preamble = append(op.preamble, preambleCmd{expectREST, "REST " + strconv.FormatInt(pos, 10)})
		}
		op.useActive = e.settings.activeMode
		e.appendDataNegotiation(op)
		pr, pw := io.Pipe()
		op.pr, op.pw = pr, pw
		if mode == xfer.Retrieve {
			op.transferCmd = "RETR " + path
		} else {
			cmd := "STOR"
			if pos > 0 {
				cmd = "APPE"
			}
			op.transferCmd = cmd + " " + path
		}
		op.phase = phasePreamble
	case xfer.List, xfer.LongList:
		op.listing = true
		op.preamble = append(op.preamble, preambleCmd{expectTYPE, "TYPE A"})
		op.useActive = e.settings.activeMode
		e.appendDataNegotiation(op)
		if mode == xfer.List {
			op.transferCmd = "NLST " + path
		} else {
			op.transferCmd = "LIST " + path
		}
		op.phase = phasePreamble
	case xfer.MPList:
		if !e.mlstOK {
			e.op = op
			e.finishOpLocked(xfer.NewError(xfer.NotSupported, "MLSD", "server does not advertise MLST"))
			return nil
		}
		op.listing = true
		op.preamble = append(op.preamble, preambleCmd{expectTYPE, "TYPE A"})
		op.useActive = e.settings.activeMode
		e.appendDataNegotiation(op)
		op.transferCmd = "MLSD " + path
		op.phase = phasePreamble
	case xfer.ChangeDir:
		op.simpleKind, op.simpleCmd, op.phase = expectCWD, "CWD "+path, phaseSimple
	case xfer.MakeDir:
		op.simpleKind, op.simpleCmd, op.phase = expectMKD, "MKD "+path, phaseSimple
	case xfer.RemoveDir:
		op.simpleKind, op.simpleCmd, op.phase = expectRMD, "RMD "+path, phaseSimple
	case xfer.Remove:
		op.simpleKind, op.simpleCmd, op.phase = expectDELE, "DELE "+path, phaseSimple
	case xfer.QuoteCmd:
		op.simpleKind, op.simpleCmd, op.phase = expectQuoted, path, phaseSimple
	case xfer.ConnectVerify:
		op.phase = phaseDone
		if e.state == stReady {
			close(op.done)
		}
	default:
		return fmt.Errorf("ftp: unsupported open mode %v", mode)
	}

	e.op = op
	return nil
}

// appendDataNegotiation queues the PASV/EPSV or PORT/EPRT exchange that
// must complete before the transfer command can be sent. The PORT/EPRT
// command text is filled in lazily once the listener exists (its port
// isn't known yet).
func (e *Engine) appendDataNegotiation(op *operation) {
	if op.useActive {
		op.preamble = append(op.preamble, preambleCmd{expectPORT, ""})
	} else if e.epsvOK {
		op.preamble = append(op.preamble, preambleCmd{expectEPSV, "EPSV"})
	} else {
		op.preamble = append(op.preamble, preambleCmd{expectPASV, "PASV"})
	}
}

// advanceOp sends the next queued preamble command (as many as sync-mode
// allows), starts the data dial once the preamble is done, and sends the
// transfer command once the data channel is ready.
func (e *Engine) advanceOp() bool {
	op := e.op
	if op == nil || (e.state != stReady && op.mode != xfer.ConnectVerify) {
		return false
	}
	moved := false
	switch op.phase {
	case phasePreamble:
		for op.preambleSent < len(op.preamble) {
			if !e.canSendNext() {
				break
			}
			pc := op.preamble[op.preambleSent]
			if pc.kind == expectPORT && pc.cmd == "" {
				if !e.startActiveListener(op) {
					return true
				}
				pc = op.preamble[op.preambleSent]
			}
			e.writeRaw(pc.kind, pc.cmd)
			op.preambleSent++
			moved = true
		}
	case phaseDialData:
		if !op.asyncBusy {
			e.startDataDial(op)
			moved = true
		}
	case phaseTransferCmd:
		if !op.transferSent {
			e.writeRaw(expectTRANSFER, op.transferCmd)
			op.transferSent = true
			moved = true
		}
	case phaseSimple:
		if !op.simpleSent {
			e.writeRaw(op.simpleKind, op.simpleCmd)
			op.simpleSent = true
			moved = true
		}
	}
	return moved
}

// startActiveListener opens the local listener PORT/EPRT advertises, filling
// in the pending preamble command now that its address is known.
func (e *Engine) startActiveListener(op *operation) bool {
	host, _, err := net.SplitHostPort(e.conn.LocalAddr().String())
	if err != nil {
		host = "0.0.0.0"
	}
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		e.finishOpLocked(xfer.WrapError(xfer.SeeErrno, "PORT", err))
		return false
	}
	op.listener = l
	addr := l.Addr().String()
	ip := net.ParseIP(host)
	if ip != nil && ip.To4() == nil {
		arg, ferr := formatEPRT(addr)
		if ferr != nil {
			e.finishOpLocked(xfer.WrapError(xfer.Fatal, "EPRT", ferr))
			return false
		}
		op.preamble[op.preambleSent] = preambleCmd{expectEPRT, "EPRT " + arg}
	} else {
		arg, ferr := formatPORT(addr)
		if ferr != nil {
			e.finishOpLocked(xfer.WrapError(xfer.Fatal, "PORT", ferr))
			return false
		}
		op.preamble[op.preambleSent] = preambleCmd{expectPORT, "PORT " + arg}
	}
	return true
}

// handleOpReply applies one operation-scoped reply (preamble ack, transfer
// 1xx, or the closing 226) to the current operation's state.
func (e *Engine) handleOpReply(exp expectation, r *reply) {
	op := e.op
	switch exp.kind {
	case expectTYPE:
		if xe := classifyReply(exp.cmd, r); xe != nil {
			e.finishOpLocked(xe)
			return
		}
		op.preambleDone++
	case expectREST:
		if !r.Is2xx() && !r.Is3xx() {
			// A rejected REST clears rest-supported and starts the transfer
			// from byte 0 instead of failing the whole operation.
			e.restOK = false
			op.pos = 0
		}
		op.preambleDone++
	case expectEPSV:
		if !r.Is2xx() {
			if !op.triedPASV {
				e.epsvOK = false
				op.triedPASV = true
				op.preamble[op.preambleSent-1] = preambleCmd{expectPASV, "PASV"}
				op.preambleSent--
				return
			}
			e.finishOpLocked(classifyReply("EPSV", r))
			return
		}
		port, err := parseEPSV(r.Message)
		if err != nil {
			e.finishOpLocked(xfer.WrapError(xfer.Fatal, "EPSV", err))
			return
		}
		host, _, _ := net.SplitHostPort(e.conn.RemoteAddr().String())
		op.dataAddr = net.JoinHostPort(host, port)
		op.preambleDone++
		op.phase = phaseDialData
	case expectPASV:
		if !r.Is2xx() {
			e.finishOpLocked(classifyReply("PASV", r))
			return
		}
		addr, err := parsePASV(r.Message)
		if err != nil {
			e.finishOpLocked(xfer.WrapError(xfer.Fatal, "PASV", err))
			return
		}
		host, _, _ := net.SplitHostPort(e.conn.RemoteAddr().String())
		op.dataAddr = substitutePasvAddress(addr, host, e.settings.ignorePasvAddr)
		op.preambleDone++
		op.phase = phaseDialData
	case expectPORT, expectEPRT:
		if !r.Is2xx() {
			e.finishOpLocked(classifyReply(exp.cmd, r))
			return
		}
		op.preambleDone++
		op.phase = phaseDialData
	case expectTRANSFER:
		if op.listing && emptyListingIsOK(r) {
			op.files = xfer.NewFileSet()
			e.finishOpLocked(nil)
			return
		}
		if !r.Is1xx() && !r.Is2xx() {
			e.finishOpLocked(classifyReply(exp.cmd, r))
			return
		}
		op.phase = phaseDataOpen
		e.startDataPump(op)
	case expectFinal:
		if !r.Is2xx() {
			e.finishOpLocked(classifyReply("(transfer)", r))
			return
		}
		if op.listing {
			if op.mode == xfer.MPList {
				op.files = parseMLSDListing(op.listBuf.Bytes())
			} else {
				op.files = parseUnixListing(op.listBuf.Bytes())
			}
		}
		e.finishOpLocked(nil)
	case expectCWD:
		if xe := classifyReply(exp.cmd, r); xe != nil {
			e.finishOpLocked(xe)
			return
		}
		e.cwd = op.path
		e.finishOpLocked(nil)
	case expectMKD, expectRMD, expectDELE, expectQuoted, expectSYST:
		e.finishOpLocked(classifyReply(exp.cmd, r))
	}
}

// startDataDial connects to a PASV/EPSV address; an active-mode listener
// instead waits to Accept.
func (e *Engine) startDataDial(op *operation) {
	op.asyncBusy = true
	op.asyncCh = make(chan asyncResult, 1)
	if op.useActive {
		l := op.listener
		go func() {
			l.(interface{ SetDeadline(time.Time) error }).SetDeadline(time.Now().Add(e.settings.timeout))
			c, err := l.Accept()
			op.asyncCh <- asyncResult{conn: c, err: err}
		}()
		return
	}
	addr := op.dataAddr
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.settings.timeout)
		defer cancel()
		c, err := e.dialer.DialContext(ctx, "tcp", addr)
		op.asyncCh <- asyncResult{conn: c, err: err}
	}()
}

// startDataPump launches the pure byte-copy goroutine once the data
// connection exists and the 1xx reply has arrived. This goroutine makes no
// protocol decisions: it only shuttles bytes between the data socket and
// the pipe Read/Write use, the same seam every engine in this module needs
// a helper goroutine for.
func (e *Engine) startDataPump(op *operation) {
	op.asyncBusy = true
	op.asyncCh = make(chan asyncResult, 1)
	conn := op.dataConn
	listing := op.listing
	mode := op.mode
	pr, pw := op.pr, op.pw
	go func() {
		var err error
		switch {
		case listing:
			_, err = io.Copy(&op.listBuf, conn)
		case mode == xfer.Retrieve:
			_, err = io.Copy(pw, conn)
			pw.CloseWithError(err)
		case mode == xfer.Store:
			_, err = io.Copy(conn, pr)
		}
		conn.Close()
		op.asyncCh <- asyncResult{err: err}
	}()
}

// pollAsync drains whichever async helper (data dial, PORT accept, or the
// byte-copy pump) is currently in flight for the operation.
func (e *Engine) pollAsync() bool {
	op := e.op
	if op == nil || !op.asyncBusy {
		return false
	}
	select {
	case res := <-op.asyncCh:
		op.asyncBusy = false
		switch op.phase {
		case phaseDialData:
			if res.err != nil {
				if e.tryModeFallback(op) {
					return true
				}
				e.finishOpLocked(xfer.WrapError(xfer.SeeErrno, "(data connect)", res.err))
				return true
			}
			op.dataConn = res.conn
			op.phase = phaseTransferCmd
			return true
		case phaseDataOpen:
			if op.listener != nil {
				op.listener.Close()
				op.listener = nil
			}
			e.queue.push(expectation{kind: expectFinal, cmd: "(transfer)"})
			if res.err != nil && res.err != io.EOF {
				e.finishOpLocked(xfer.WrapError(xfer.StoreFailed, "(transfer)", res.err))
				return true
			}
			e.ioReady = true
		}
		return true
	default:
		return false
	}
}

// tryModeFallback switches a failed data connection from passive to active
// (or vice versa) once per operation, matching the automatic active↔passive
// fallback spec.md §4.3 describes.
func (e *Engine) tryModeFallback(op *operation) bool {
	if op.triedActive {
		return false
	}
	op.triedActive = true
	op.useActive = !op.useActive
	op.preamble = op.preamble[:0]
	e.appendDataNegotiation(op)
	op.preambleSent, op.preambleDone = 0, 0
	op.transferSent = false
	op.phase = phasePreamble
	return true
}

// finishOpLocked records err as the terminal status of the current
// operation and wakes anything waiting on Wait()/Done(). Callers hold e.mu.
func (e *Engine) finishOpLocked(err error) {
	op := e.op
	if op == nil {
		return
	}
	var xe *xfer.Error
	switch v := err.(type) {
	case nil:
	case *xfer.Error:
		xe = v
	default:
		xe = xfer.WrapError(xfer.SeeErrno, "", err)
	}
	op.err = xe
	op.phase = phaseDone
	if op.listener != nil {
		op.listener.Close()
		op.listener = nil
	}
	if !isClosed(op.done) {
		close(op.done)
	}
}

// sendSyncLocked writes cmd and blocks for its single reply, for the
// Session methods the interface itself declares synchronous (Rename,
// Mkdir, Chdir, Chmod, Remove, RemoveDir, WantSize, WantDate). Callers hold
// e.mu; since the scheduler is cooperative and single-threaded, nothing
// else runs while this blocks.
func (e *Engine) sendSyncLocked(cmd string) (*reply, error) {
	if e.conn == nil {
		return nil, fmt.Errorf("ftp: not connected")
	}
	e.conn.SetWriteDeadline(time.Now().Add(e.settings.timeout))
	if _, err := e.conn.Write(encodeCommand(cmd)); err != nil {
		return nil, err
	}
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				select {
				case err := <-e.lineErr:
					return nil, err
				default:
					return nil, io.ErrUnexpectedEOF
				}
			}
			r, err := e.asm.feed(line)
			if err != nil {
				return nil, err
			}
			if r != nil {
				return r, nil
			}
		case err := <-e.lineErr:
			return nil, err
		}
	}
}

func parsePWD(msg string) (string, bool) {
	i := strings.IndexByte(msg, '"')
	if i < 0 {
		return "", false
	}
	j := strings.IndexByte(msg[i+1:], '"')
	if j < 0 {
		return "", false
	}
	return msg[i+1 : i+1+j], true
}

// Close ends the current operation, returning the session to logged-in.
func (e *Engine) Close() error {
	e.mu.Lock()
	op := e.op
	e.op = nil
	e.mu.Unlock()
	if op == nil {
		return nil
	}
	if op.listener != nil {
		op.listener.Close()
	}
	if op.dataConn != nil {
		op.dataConn.Close()
	}
	if op.pw != nil {
		op.pw.Close()
	}
	if op.pr != nil {
		op.pr.Close()
	}
	return nil
}

// Read pulls bytes for a Retrieve/List-family open.
func (e *Engine) Read(buf []byte) (int, error) {
	e.mu.Lock()
	op := e.op
	e.mu.Unlock()
	if op == nil {
		return 0, fmt.Errorf("ftp: Read called outside a readable open mode")
	}

	switch op.mode {
	case xfer.Retrieve:
		e.mu.Lock()
		limit := e.limit
		pos := e.readPos
		e.mu.Unlock()
		if limit > 0 {
			if pos >= limit {
				return 0, io.EOF
			}
			if remain := limit - pos; int64(len(buf)) > remain {
				buf = buf[:remain]
			}
		}
		n, err := op.pr.Read(buf)
		e.mu.Lock()
		e.readPos += int64(n)
		if n > 0 {
			e.ioReady = true
		}
		e.mu.Unlock()
		return n, err
	case xfer.List, xfer.LongList, xfer.MPList:
		e.mu.Lock()
		defer e.mu.Unlock()
		if op.listPos >= op.listBuf.Len() {
			if !isClosed(op.done) {
				return 0, nil // caller should poll Done() again
			}
			return 0, io.EOF
		}
		n := copy(buf, op.listBuf.Bytes()[op.listPos:])
		op.listPos += n
		return n, nil
	default:
		return 0, fmt.Errorf("ftp: Read called outside a readable open mode")
	}
}

// Write pushes bytes for a Store open.
func (e *Engine) Write(buf []byte) (int, error) {
	e.mu.Lock()
	op := e.op
	e.mu.Unlock()
	if op == nil || op.mode != xfer.Store || op.pw == nil {
		return 0, fmt.Errorf("ftp: Write called outside a Store open")
	}
	n, err := op.pw.Write(buf)
	if n > 0 {
		e.mu.Lock()
		e.ioReady = true
		e.mu.Unlock()
	}
	return n, err
}

// Done reports InProgress until the current operation finishes, then the
// terminal Kind.
func (e *Engine) Done() xfer.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return xfer.OK
	}
	if !isClosed(e.op.done) {
		return xfer.InProgress
	}
	if e.op.err == nil {
		return xfer.OK
	}
	return e.op.err.Kind
}

// Files returns the FileSet parsed from the most recently completed
// List/LongList/MPList open, or nil if the last open wasn't a listing.
func (e *Engine) Files() *xfer.FileSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return nil
	}
	return e.op.files
}

func (e *Engine) Rename(from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.sendSyncLocked("RNFR " + from)
	if err != nil {
		return err
	}
	if xe := classifyReply("RNFR "+from, r); xe != nil {
		return xe
	}
	r, err = e.sendSyncLocked("RNTO " + to)
	if err != nil {
		return err
	}
	return toErr(classifyReply("RNTO "+to, r))
}

// Mkdir creates path. allParents walks each path segment with its own MKD,
// since FTP's MKD takes one segment at a time and tolerates a segment that
// already exists.
func (e *Engine) Mkdir(path string, allParents bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !allParents {
		r, err := e.sendSyncLocked("MKD " + path)
		if err != nil {
			return err
		}
		return toErr(classifyReply("MKD "+path, r))
	}
	abs := strings.HasPrefix(path, "/")
	cur := ""
	if abs {
		cur = "/"
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if cur == "" || cur == "/" {
			cur += seg
		} else {
			cur += "/" + seg
		}
		if _, err := e.sendSyncLocked("MKD " + cur); err != nil {
			return err
		}
	}
	return nil
}

// Chdir changes the working directory. verify additionally confirms it by
// round-tripping PWD, since some servers accept a CWD to a nonexistent
// directory silently outside strict mode.
func (e *Engine) Chdir(path string, verify bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.sendSyncLocked("CWD " + path)
	if err != nil {
		return err
	}
	if xe := classifyReply("CWD "+path, r); xe != nil {
		return xe
	}
	if verify {
		if r2, err := e.sendSyncLocked("PWD"); err == nil && r2.Is2xx() {
			if p, ok := parsePWD(r2.Message); ok {
				path = p
			}
		}
	}
	e.cwd = path
	return nil
}

func (e *Engine) Chmod(path string, mode uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmd := fmt.Sprintf("SITE CHMOD %03o %s", mode&07777, path)
	r, err := e.sendSyncLocked(cmd)
	if err != nil {
		return err
	}
	return toErr(classifyReply(cmd, r))
}

func (e *Engine) Remove(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.sendSyncLocked("DELE " + path)
	if err != nil {
		return err
	}
	return toErr(classifyReply("DELE "+path, r))
}

func (e *Engine) RemoveDir(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.sendSyncLocked("RMD " + path)
	if err != nil {
		return err
	}
	return toErr(classifyReply("RMD "+path, r))
}

// SetDate applies t to the path of the current open via MFMT (widely
// implemented though never standardized as an RFC).
func (e *Engine) SetDate(t time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return fmt.Errorf("ftp: SetDate called outside an open operation")
	}
	cmd := "MFMT " + t.UTC().Format("20060102150405") + " " + e.op.path
	r, err := e.sendSyncLocked(cmd)
	if err != nil {
		return err
	}
	return toErr(classifyReply(cmd, r))
}

func (e *Engine) SetSize(n int64) error {
	e.mu.Lock()
	e.size, e.sizeKnown = n, true
	e.mu.Unlock()
	return nil
}

// WantSize resolves the remote size of the current open's path via SIZE.
func (e *Engine) WantSize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return fmt.Errorf("ftp: WantSize called outside an open operation")
	}
	cmd := "SIZE " + e.op.path
	r, err := e.sendSyncLocked(cmd)
	if err != nil {
		return err
	}
	if xe := classifyReply(cmd, r); xe != nil {
		return xe
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(r.Message), 10, 64)
	if perr != nil {
		return fmt.Errorf("ftp: malformed SIZE reply %q", r.Message)
	}
	e.size, e.sizeKnown = n, true
	return nil
}

// WantDate resolves the remote modification time of the current open's
// path via MDTM.
func (e *Engine) WantDate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return fmt.Errorf("ftp: WantDate called outside an open operation")
	}
	cmd := "MDTM " + e.op.path
	r, err := e.sendSyncLocked(cmd)
	if err != nil {
		return err
	}
	if xe := classifyReply(cmd, r); xe != nil {
		return xe
	}
	t, ok := parseMLSDTime(strings.TrimSpace(r.Message))
	if !ok {
		return fmt.Errorf("ftp: malformed MDTM reply %q", r.Message)
	}
	e.modTime, e.modTimeKnown = t, true
	return nil
}

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

func (e *Engine) Home() string { return e.id.Home }

func (e *Engine) SetAsciiTransfer(v bool) {
	e.mu.Lock()
	e.ascii = v
	e.mu.Unlock()
}

func (e *Engine) SetLimit(end int64) {
	e.mu.Lock()
	e.limit = end
	e.mu.Unlock()
}

func (e *Engine) SetPriority(p int) {
	e.mu.Lock()
	e.priority = p
	e.mu.Unlock()
}

func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil && e.state != stFailed
}

// CanSeek reports whether REST is known to be supported; before FEAT
// completes this optimistically reports true, matching servers that simply
// never reject REST rather than advertising it.
func (e *Engine) CanSeek(off int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restOK
}

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
	op := e.op
	e.mu.Unlock()
	if op == nil || op.pw == nil {
		return nil
	}
	return op.pw.Close()
}

func (e *Engine) RemoveFile() error { return nil }

// IOReady reports whether new bytes arrived (or a pending write drained)
// since the last call.
func (e *Engine) IOReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.ioReady
	e.ioReady = false
	return r
}

func (e *Engine) NeedsSizeDateBeforehand() bool { return false }

func (e *Engine) Error() *xfer.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.op == nil {
		return nil
	}
	return e.op.err
}

func (e *Engine) Identity() xfer.Identity { return e.id }

var _ xfer.Session = (*Engine)(nil)
var _ scheduler.Task = (*Engine)(nil)
var _ scheduler.Waitable = (*Engine)(nil)
