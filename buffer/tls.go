package buffer

import (
	"crypto/tls"
	"net"
)

// UpgradeClientTLS wraps conn in a TLS client connection and returns a
// fresh Transport around it. Per spec.md §4.10, the handshake itself is
// non-blocking from the scheduler's point of view: tls.Conn performs it
// lazily inside the first Read/Write, which here happens inside the
// Transport's dedicated reader goroutine (for Read) or inside Do's
// deadline-bounded Write — so a stalled handshake simply looks like "no
// bytes yet" to the scheduler, exactly like a stalled plaintext socket
// would.
//
// Callers that need session resumption across the control and data
// connections (spec.md §4.10's "sharing the control session's resumption
// id") should set ClientSessionCache on cfg once and reuse cfg for both.
func UpgradeClientTLS(conn net.Conn, cfg *tls.Config) *Transport {
	tc := tls.Client(conn, cfg)
	return NewTransport(tc)
}

// UpgradeServerTLS is the server-role equivalent, used by the FTP engine's
// SSCN-driven role reversal for FXP (spec.md §4.10) where the session
// advertising PROT data sockets may need to play the TLS server role.
func UpgradeServerTLS(conn net.Conn, cfg *tls.Config) *Transport {
	tc := tls.Server(conn, cfg)
	return NewTransport(tc)
}
