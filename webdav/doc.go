// Package webdav implements the HTTP/HTTPS/WebDAV client engine: a
// request/response session built on net/http with the extra behaviors a
// plain http.Client doesn't give you for free — resumable Range GET/PUT,
// a redirect policy with an explicit cap and POST→GET downgrade rules,
// and WebDAV directory operations (PROPFIND/MKCOL/MOVE) with a fallback to
// HEAD-only change-dir when a server doesn't speak DAV.
//
// Client drives one logical session the way fish.Client drives a shell
// conversation; Engine adapts it to xfer.Session the same way fish.Engine
// does, except there is no background conversation to relay through a
// goroutine for most operations — net/http's RoundTripper is itself
// non-blocking-safe to call from a background goroutine, so Engine reuses
// the exact same goroutine-relay shape anyway for uniformity with its
// sibling engines.
package webdav
