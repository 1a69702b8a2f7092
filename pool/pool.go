// Package pool implements the connection pool (spec.md §4.9): a
// fixed-capacity holding area for idle, logged-in sessions, reused by
// identity on open and evicted by an LRU-ish "best session wins" rule when
// full. It also implements connection takeover (moving an idle connection
// from a lower-priority sibling job) and named slots, the supplemented
// `ConnectionSlot`-style pinning described in SPEC_FULL.md.
package pool

import (
	"sync"
	"time"

	"github.com/gonzalop/xfer"
)

// entry is one idle, pooled session plus the bookkeeping needed to decide
// whether it should survive eviction or be handed over on takeover.
type entry struct {
	sess     xfer.Session
	id       xfer.Identity
	cwd      string
	slot     string
	priority int
	lastUsed time.Time
}

// cwdValid reports whether this entry's cwd is known (a session that never
// successfully Chdir'd, or whose cwd was invalidated, is weaker than one
// that has a known location, per spec.md §4.9 "longest valid cwd").
func (e *entry) cwdValid() bool { return e.cwd != "" }

// Pool holds up to Capacity idle sessions (spec.md §4.9). It is a
// process-global resource (spec.md §5); the scheduler's single-threaded
// ownership means the mutex here only guards against non-scheduler
// callers (tests, startup/shutdown code).
type Pool struct {
	mu       sync.Mutex
	capacity int
	idle     []*entry
}

// New returns an empty Pool that holds at most capacity idle sessions.
func New(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Put returns sess to the pool as idle, associating it with id, its
// current cwd (possibly "" if unknown), a job priority, and an optional
// named slot (spec.md §4.9, SPEC_FULL.md's ConnectionSlot supplement). If
// the pool is already at capacity, the weakest of (the new entry, the
// current weakest idle entry) is destroyed instead of pooled.
func (p *Pool) Put(sess xfer.Session, id xfer.Identity, cwd string, priority int, slot string) {
	e := &entry{sess: sess, id: id, cwd: cwd, slot: slot, priority: priority, lastUsed: time.Now()}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) < p.capacity || p.capacity <= 0 {
		p.idle = append(p.idle, e)
		return
	}

	weakestIdx := p.weakestLocked()
	if weakestIdx < 0 || better(e, p.idle[weakestIdx]) {
		if weakestIdx >= 0 {
			p.idle[weakestIdx].sess.Close()
			p.idle[weakestIdx] = e
		}
		return
	}
	// The incoming session loses to every existing idle entry.
	e.sess.Close()
}

// better reports whether a is a "better" entry to keep than b, per
// spec.md §4.9: longest valid cwd first, then most recently used.
func better(a, b *entry) bool {
	if a.cwdValid() != b.cwdValid() {
		return a.cwdValid()
	}
	if len(a.cwd) != len(b.cwd) {
		return len(a.cwd) > len(b.cwd)
	}
	return a.lastUsed.After(b.lastUsed)
}

// weakestLocked finds the index of the least valuable idle entry. Must be
// called with mu held.
func (p *Pool) weakestLocked() int {
	if len(p.idle) == 0 {
		return -1
	}
	worst := 0
	for i := 1; i < len(p.idle); i++ {
		if better(p.idle[i], p.idle[worst]) {
			continue
		}
		worst = i
	}
	return worst
}

// Take removes and returns an idle session matching id (same-site), if
// any. Preference is given to an entry whose cwd already equals wantCwd
// (spec.md §4.9 "same-location" reuse avoids a redundant CWD), falling
// back to any same-site entry.
func (p *Pool) Take(id xfer.Identity, wantCwd string) (xfer.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bestIdx := -1
	for i, e := range p.idle {
		if !e.id.SameSite(id) {
			continue
		}
		if e.cwd == wantCwd {
			bestIdx = i
			break
		}
		if bestIdx < 0 {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, false
	}
	e := p.idle[bestIdx]
	p.idle = append(p.idle[:bestIdx], p.idle[bestIdx+1:]...)
	return e.sess, true
}

// TakeSlot removes and returns the session pinned under the named slot,
// if any (spec.md §6.1 `slot:NAME`, SPEC_FULL.md's ConnectionSlot
// supplement).
func (p *Pool) TakeSlot(name string) (xfer.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.idle {
		if e.slot == name {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return e.sess, true
		}
	}
	return nil, false
}

// Takeover looks for an idle session owned by a job of lower priority than
// requesterPriority that has been idle for at least priorityDiff, and
// removes it from the pool for the caller to adopt (spec.md §4.9
// "Connection takeover"). The caller is responsible for transitioning the
// returned session's owning job; this pool has no notion of "jobs", only
// the priority and idle-since timestamp recorded at Put time.
func (p *Pool) Takeover(requesterPriority int, priorityDiff time.Duration) (xfer.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i, e := range p.idle {
		if e.priority >= requesterPriority {
			continue
		}
		if now.Sub(e.lastUsed) < priorityDiff {
			continue
		}
		p.idle = append(p.idle[:i], p.idle[i+1:]...)
		return e.sess, true
	}
	return nil, false
}

// Len returns the number of idle sessions currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close destroys every idle session and empties the pool (process
// shutdown).
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.idle {
		e.sess.Close()
	}
	p.idle = nil
}
