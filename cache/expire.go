package cache

import (
	"github.com/gonzalop/xfer/scheduler"
)

// ExpireHelper is the scheduler.Task that wakes at the earliest TTL across
// the Cache and removes expired entries (spec.md §4.8's "ExpireHelper task
// wakes at the earliest TTL"). It never dies on its own; spawn one per
// process and let it run for the Cache's lifetime.
type ExpireHelper struct {
	scheduler.NoSignal
	c *Cache
}

// NewExpireHelper returns a Task that sweeps c whenever an entry's TTL
// elapses.
func NewExpireHelper(c *Cache) *ExpireHelper {
	return &ExpireHelper{c: c}
}

// Do sweeps expired entries, reporting Moved when it removed any and Stall
// otherwise. It never returns WantDie — there is no notion of this task
// "finishing".
func (h *ExpireHelper) Do() scheduler.Status {
	if h.c.sweepExpired() > 0 {
		return scheduler.Moved
	}
	return scheduler.Stall
}

// Wait reports the Cache's earliest expiry as the deadline to wake at; a
// Cache with no TTL-bearing entries has nothing to wait for.
func (h *ExpireHelper) Wait() scheduler.Waiter {
	deadline := h.c.earliestExpiry()
	if deadline.IsZero() {
		return scheduler.Waiter{}
	}
	return scheduler.Waiter{Deadline: deadline}
}
