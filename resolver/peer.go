package resolver

// PeerCursor walks a resolved address list one peer at a time, the way
// `original_source/src/NetAccess.cc`'s ClearPeer/NextPeer do: a connect
// failure advances to the next address rather than failing the whole
// lookup, and LookupError is only surfaced once every peer has been tried
// (spec.md §7's LOOKUP_ERROR policy: "retry next peer; surface after
// exhausting").
type PeerCursor struct {
	r   *Resolver
	cur int
}

// NewPeerCursor wraps a finished Resolver. Calling it before the Resolver
// is Ready is a programmer error; callers should step the scheduler until
// Ready() first.
func NewPeerCursor(r *Resolver) *PeerCursor {
	return &PeerCursor{r: r, cur: -1}
}

// Next advances to (and returns) the next candidate address, or "" once
// every peer has been exhausted.
func (p *PeerCursor) Next() string {
	p.cur++
	return p.r.Addr(p.cur)
}

// Reset rewinds to try the whole list again (used after a full round of
// connect failures when the caller decides to retry from the top rather
// than re-resolve).
func (p *PeerCursor) Reset() { p.cur = -1 }

// Exhausted reports whether every resolved address has been tried.
func (p *PeerCursor) Exhausted() bool {
	addrs, _ := p.r.Result()
	return p.cur >= len(addrs)-1
}
