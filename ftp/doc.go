// Package ftp implements a client for the FTP protocol (RFC 959 plus the
// common extensions: PASV/EPSV/EPRT, REST, SIZE/MDTM, MFMT, MLST/MLSD, and
// FEAT capability discovery).
//
// Engine is the whole client: an expectation-queue-driven state machine
// that owns the control connection directly rather than wrapping a
// separate blocking client. Do is the only place the control conversation
// advances — it drains whatever reply lines a background line-reader
// goroutine has relayed so far, matches each completed reply against the
// head of the expectation queue, and decides the next command according to
// sync-mode and the current operation's phase, all without blocking on the
// network itself. The only goroutines besides the line reader are the
// one-shot control-connection dial started by Dial, the one-shot
// data-connection dial/accept and the byte-copy pump once a data socket is
// open; none makes a protocol decision, matching the seam
// every engine in this module needs a helper goroutine for.
//
// A handful of Session methods (Rename, Mkdir, Chdir, Chmod, Remove,
// RemoveDir, WantSize, WantDate) are declared synchronous by the interface
// itself; Engine answers them with a blocking round-trip on the control
// connection rather than threading them through the queue, safe because
// nothing else drives the same Engine concurrently.
package ftp
