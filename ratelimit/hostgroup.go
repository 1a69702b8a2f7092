package ratelimit

import "sync"

// Pair holds the independent send and receive buckets for one host, since
// `net:limit-rate` is expressed as up/down speeds that throttle
// independently (spec.md §4.1.D).
type Pair struct {
	Send    *Limiter
	Receive *Limiter
}

// Group is a registry of per-host Pairs plus one global Pair applied on
// top of every host (the combination lftp calls "limit-total-rate" plus
// per-host "limit-rate"). It's safe for concurrent use since multiple
// engines' background transport goroutines may look up limiters at once.
type Group struct {
	mu      sync.Mutex
	global  Pair
	perHost map[string]Pair
	sendBPS, recvBPS int64 // per-host default rate; no method of Group sets or applies it
}

// NewGroup creates a Group with the given global up/down rate (0 meaning
// unlimited) applied across all hosts in addition to any per-host limit.
func NewGroup(globalSendBPS, globalRecvBPS int64) *Group {
	return &Group{
		global: Pair{
			Send:    New(globalSendBPS),
			Receive: New(globalRecvBPS),
		},
		perHost: make(map[string]Pair),
	}
}

// SetHostLimit installs (or replaces) the per-host rate for host, in
// bytes/sec for each direction. A zero value means unlimited for that
// direction.
func (g *Group) SetHostLimit(host string, sendBPS, recvBPS int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perHost[host] = Pair{Send: New(sendBPS), Receive: New(recvBPS)}
}

// Host returns the global Pair combined with host's own Pair, if any. The
// caller (the transport layer) is expected to apply both: wrap the reader/
// writer with the host limiter, then with the global one.
func (g *Group) Host(host string) (global, perHost Pair) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.global, g.perHost[host]
}
