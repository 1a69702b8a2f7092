// Package sftp implements a client for the SFTP protocol (versions 3
// through 6) spoken over an ssh subsystem: a binary request/reply
// protocol framed as a 4-byte big-endian length, a 1-byte packet type,
// and (for every type but INIT/VERSION) a 4-byte request id that
// correlates replies to requests out of order.
//
// Client drives the blocking request/reply conversation, including the
// sliding-window READ pipelining used by Retrieve; Engine adapts a Client
// to xfer.Session the same way fish.Engine and webdav.Engine do.
package sftp
