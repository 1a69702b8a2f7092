package xfer

import (
	"errors"
	"net"
	"syscall"
)

// isTransientErrno reports whether err looks like one of the transient
// network conditions spec.md §7 lists as retryable (EINTR, EAGAIN, EPIPE,
// ECONNRESET, ECONNREFUSED, ENETUNREACH, EHOSTUNREACH, EHOSTDOWN,
// ENETDOWN, ECONNABORTED) or a net.Error marked Timeout.
func isTransientErrno(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, sentinel := range []error{
		syscall.EINTR, syscall.EAGAIN, syscall.EPIPE,
		syscall.ECONNRESET, syscall.ECONNREFUSED,
		syscall.ENETUNREACH, syscall.EHOSTUNREACH,
		syscall.EHOSTDOWN, syscall.ENETDOWN, syscall.ECONNABORTED,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
