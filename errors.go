package xfer

import "fmt"

// Kind is the small, exhaustive error taxonomy every engine and the copy
// pipeline report through (spec.md §7). There are no exceptions: every
// state-machine step checks Error() before doing work, and an error raised
// inside a child task (buffer, resolver) is lifted unchanged to the owning
// session.
type Kind int

const (
	// OK is the zero value: no error.
	OK Kind = iota
	// InProgress means the operation has not finished a step yet; the
	// caller should step the scheduler again.
	InProgress
	// SeeErrno wraps an underlying syscall failure; Err holds the errno.
	SeeErrno
	// LookupError is a DNS failure.
	LookupError
	// NoHost means not connected and unable to connect.
	NoHost
	// NoFile means the remote path is missing or access was denied.
	NoFile
	// FileMoved is an HTTP 3xx redirect not (yet) followed.
	FileMoved
	// Fatal is a protocol violation, certificate failure, or other
	// unrecoverable condition; it is surfaced and never retried.
	Fatal
	// StoreFailed means an upload did not confirm.
	StoreFailed
	// LoginFailed means authentication was refused.
	LoginFailed
	// NotSupported means the server rejected a command as unknown; the
	// session should clear the associated capability flag and, where
	// possible, downgrade to an alternate operation.
	NotSupported
	// DoAgain is the would-block sentinel from a non-blocking read/write;
	// the caller reschedules.
	DoAgain
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case InProgress:
		return "in progress"
	case SeeErrno:
		return "see errno"
	case LookupError:
		return "lookup error"
	case NoHost:
		return "no host"
	case NoFile:
		return "no such file"
	case FileMoved:
		return "file moved"
	case Fatal:
		return "fatal"
	case StoreFailed:
		return "store failed"
	case LoginFailed:
		return "login failed"
	case NotSupported:
		return "not supported"
	case DoAgain:
		return "try again"
	default:
		return "unknown error"
	}
}

// Error is the uniform error value every Session operation returns. It
// carries enough of the protocol conversation to build the single-line,
// display-ready message spec.md §7 requires, without needing the caller to
// re-derive it.
type Error struct {
	Kind Kind

	// Command is the request that produced this error, if any (e.g. "RETR
	// file.txt", a JSON-ish SFTP packet summary, or an HTTP request line).
	Command string

	// Message is the server- or transport-level text. Multi-line server
	// replies are already joined with "; " and any repeated numeric prefix
	// elided by the producing engine.
	Message string

	// Retryable is set by the producing engine according to the table in
	// spec.md §7 (e.g. ECONNRESET is retryable, a certificate Fatal is
	// not).
	Retryable bool

	// Err, if non-nil, is the underlying Go error (a *net.OpError, an
	// os.SyscallError, ...). Error.Unwrap exposes it so callers can use
	// errors.Is/As with net/os sentinel errors.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Command != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s (%s)", e.Command, e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Command, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the operation that produced e may be retried
// (after reconnect/backoff where applicable), per the policy table in
// spec.md §7.
func (e *Error) IsRetryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case SeeErrno, StoreFailed, LookupError:
		return e.Retryable
	case LoginFailed:
		return e.Retryable // only when a retry-530-style pattern matched
	default:
		return false
	}
}

// NewError builds an *Error, defaulting Retryable from Kind's usual policy;
// callers that need the exception (e.g. an SeeErrno that is NOT one of the
// transient errnos) should set Retryable explicitly afterward.
func NewError(kind Kind, command, message string) *Error {
	e := &Error{Kind: kind, Command: command, Message: message}
	switch kind {
	case SeeErrno, StoreFailed:
		e.Retryable = true
	}
	return e
}

// WrapError attaches an underlying Go error to a new *Error of the given
// kind, classifying common transient syscall errors automatically (EINTR,
// EAGAIN, EPIPE, ECONNRESET, ECONNREFUSED, ENETUNREACH, EHOSTUNREACH,
// EHOSTDOWN, ENETDOWN, ECONNABORTED per spec.md §7's SEE_ERRNO table).
func WrapError(kind Kind, command string, err error) *Error {
	e := &Error{Kind: kind, Command: command, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	if kind == SeeErrno {
		e.Retryable = isTransientErrno(err)
	}
	return e
}
