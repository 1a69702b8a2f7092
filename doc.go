// Package xfer is the core of a multi-protocol file-transfer engine: a
// uniform session abstraction over FTP/FTPS, SFTP, FISH and HTTP/WebDAV
// remote-storage clients, a two-peer copy pipeline that moves bytes between
// any two such sessions (including server-to-server FXP), a response cache
// with invalidation, and the connection-lifecycle machinery (pooling,
// takeover, reconnect with backoff, rate limiting).
//
// The package itself holds the pieces every protocol engine shares: Path,
// FileInfo/FileSet, the Session interface, and the error Kind enum. The
// protocol engines live in their own subpackages (ftp, sftp, fish, webdav);
// the scheduler, directed byte buffer, resolver, rate limiter, cache,
// connection pool and copy pipeline each live in their own package too. See
// SPEC_FULL.md for the full module map.
package xfer
