package ftp

import (
	"regexp"

	"github.com/gonzalop/xfer"
)

// retry530Pattern matches the class of 530 login-refusal messages that mean
// "come back later", distinct from a genuine bad-credentials rejection
// (spec.md §4.3's 530-vs-retry-530 failure taxonomy). A server's wording
// for "too many users" varies, so this matches the phrasing lftp itself
// treats as transient.
var retry530Pattern = regexp.MustCompile(`(?i)(try again|too many (users|connections)|maximum number of connections|please wait)`)

// networkDropPattern matches 4xx/5xx message text that indicates the
// underlying connection is failing rather than the command itself being
// rejected, so the engine treats it as reconnect-worthy instead of a
// command-level error.
var networkDropPattern = regexp.MustCompile(`(?i)(broken pipe|connection reset|timed? ?out|service not available|going away)`)

// classifyReply maps a completed FTP reply onto spec.md §7's Kind taxonomy
// for the command that produced it.
func classifyReply(cmd string, r *reply) *xfer.Error {
	if r == nil {
		return nil
	}
	if r.Is2xx() || r.Is3xx() {
		return nil
	}
	switch {
	case r.Code == 530:
		if retry530Pattern.MatchString(r.Message) {
			e := xfer.NewError(xfer.LoginFailed, cmd, r.Message)
			e.Retryable = true
			return e
		}
		return xfer.NewError(xfer.LoginFailed, cmd, r.Message)
	case r.Code == 550 || r.Code == 551 || r.Code == 553 || r.Code == 450:
		return xfer.NewError(xfer.NoFile, cmd, r.Message)
	case r.Code == 502 || r.Code == 500 || r.Code == 501:
		return xfer.NewError(xfer.NotSupported, cmd, r.Message)
	case r.Is4xx():
		// Every 4xx is transient by definition (RFC 959 §4.2).
		e := xfer.NewError(xfer.SeeErrno, cmd, r.Message)
		e.Retryable = true
		return e
	default:
		e := xfer.NewError(xfer.Fatal, cmd, r.Message)
		e.Retryable = networkDropPattern.MatchString(r.Message)
		return e
	}
}

// classifyConnErr maps a transport-level error (dial failure, reset control
// socket) the way every other engine's classifyErr does.
func classifyConnErr(cmd string, err error) *xfer.Error {
	if err == nil {
		return nil
	}
	return xfer.WrapError(xfer.SeeErrno, cmd, err)
}

// emptyListingIsOK reports whether a LIST/NLST 550/450 should be treated as
// "zero entries" rather than a hard failure, matching spec.md §4.3's
// "550/450-no-files on LIST → empty not error" edge case.
func emptyListingIsOK(r *reply) bool {
	return r != nil && (r.Code == 550 || r.Code == 450)
}
