package xfer

import "time"

// OpenMode is the operation a Session is currently open for (spec.md §3).
type OpenMode int

const (
	Closed OpenMode = iota
	Retrieve
	Store
	LongList
	List
	MPList
	ChangeDir
	MakeDir
	RemoveDir
	Remove
	QuoteCmd
	Rename
	ArrayInfo
	ConnectVerify
	ChangeMode
)

// ConnState is the connection half of a session's lifecycle (spec.md §3
// Lifecycle): sessions are created, connected (resolving -> connecting ->
// connected -> logged-in), opened for one operation at a time, closed back
// to logged-in, and eventually destroyed or pooled.
type ConnState int

const (
	StateInitial ConnState = iota
	StateResolving
	StateConnecting
	StateConnected
	StateLoggedIn
	StateDisconnected
)

// Identity is the (protocol, host, port, user, password-hash, home) tuple
// used by the pool and cache as an equivalence key (spec.md §3). Password
// is hashed (not stored plain) so Identity can be copied into cache keys
// and logs freely.
type Identity struct {
	Proto    string
	Host     string
	Port     string
	User     string
	PassHash string
	Home     string
}

// SameSite reports whether two identities share (protocol, host, port,
// user, password) — they may reuse the same pooled connection.
func (a Identity) SameSite(b Identity) bool {
	return a.Proto == b.Proto && a.Host == b.Host && a.Port == b.Port &&
		a.User == b.User && a.PassHash == b.PassHash
}

// CacheKey is the (session-identity-minus-password, path, mode) tuple the
// response cache indexes on (spec.md §3).
type CacheKey struct {
	Proto, Host, Port, User, Home string
	Path                          string
	Mode                          OpenMode
}

// cacheIdentity drops the password from id to build a CacheKey's identity
// portion; two same-site sessions with different passwords must still
// share a cache entry only if lftp's own semantics intended that — spec.md
// is explicit the key is "session-identity-minus-password", so we drop it
// unconditionally here.
func (id Identity) cacheIdentity() (proto, host, port, user, home string) {
	return id.Proto, id.Host, id.Port, id.User, id.Home
}

func (id Identity) CacheKey(path string, mode OpenMode) CacheKey {
	proto, host, port, user, home := id.cacheIdentity()
	return CacheKey{Proto: proto, Host: host, Port: port, User: user, Home: home, Path: path, Mode: mode}
}

// Session is the uniform interface every protocol engine (ftp, sftp, fish,
// webdav) implements (spec.md §6.3). All operations are non-blocking: the
// caller steps its scheduler until Done() stops returning InProgress.
type Session interface {
	// Open begins mode on path, starting at byte offset pos (0 unless
	// resuming). A session may have only one open operation at a time;
	// calling Open while already open returns an error.
	Open(path string, mode OpenMode, pos int64) error

	// Close ends the current operation, returning the session to
	// logged-in (or to Closed if not yet connected).
	Close() error

	// Read pulls up to len(buf) bytes for a Retrieve/List-family open.
	// Returns (0, io.EOF) once the transfer is complete.
	Read(buf []byte) (int, error)

	// Write pushes bytes for a Store open.
	Write(buf []byte) (int, error)

	// Done reports the terminal status of the current operation: OK,
	// InProgress, or an error Kind.
	Done() Kind

	Rename(from, to string) error
	Mkdir(path string, allParents bool) error
	Chdir(path string, verify bool) error
	Chmod(path string, mode uint16) error
	Remove(path string) error
	RemoveDir(path string) error

	// SetDate/SetSize tell a Store session the final size/date to apply
	// (used by protocols that need them before the transfer, per
	// NeedsSizeDateBeforehand).
	SetDate(t time.Time) error
	SetSize(n int64) error
	// WantSize/WantDate request the engine resolve the remote size/date of
	// the currently open path; Size()/ModTime() return them once known.
	WantSize() error
	WantDate() error
	Size() (int64, bool)
	ModTime() (time.Time, bool)

	Cwd() string
	Home() string

	// AsciiTransfer selects text-mode (line-ending translating) transfer
	// for the current open; SetLimit caps Read at a byte offset.
	SetAsciiTransfer(bool)
	SetLimit(end int64)

	SetPriority(p int)
	IsConnected() bool

	// CanSeek reports whether the session can reposition its stream to
	// off without restarting the whole transfer (REST for FTP, a new
	// byte-range for HTTP, a new read/write offset for SFTP; FISH always
	// reports false).
	CanSeek(off int64) bool
	Seek(off int64) error

	// SeekPos is the logical position the caller has requested (may be
	// ahead of what the peer has acknowledged); RealPos is what the peer
	// has actually confirmed, or -1 if unknown.
	SeekPos() int64
	RealPos() int64

	// Buffered is the number of bytes queued locally but not yet
	// delivered to/from the peer.
	Buffered() int

	PutEOF() error
	RemoveFile() error

	// IOReady reports whether the session's underlying transport has
	// become ready since the last call (new data arrived, or a pending
	// write drained) — used by the copy pipeline to decide whether to
	// step again this scheduler pass.
	IOReady() bool

	// NeedsSizeDateBeforehand reports whether this Session's protocol
	// must know the final size/date before it will accept any bytes
	// (e.g. some HTTP PUT targets via Content-Length).
	NeedsSizeDateBeforehand() bool

	Error() *Error
	Identity() Identity
}
