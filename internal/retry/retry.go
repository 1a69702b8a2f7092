// Package retry implements the exponential reconnect backoff every engine
// and the connection pool use between failed connection attempts (spec.md
// §4.3, §6.4's net:reconnect-interval-base/multiplier/max).
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures one site's reconnect backoff. Zero value is a sane
// default matching lftp's own net:reconnect-interval-* defaults.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	MaxRetries int // 0 means unlimited
}

// DefaultPolicy mirrors original_source/src/NetAccess.cc's ResMgr defaults.
var DefaultPolicy = Policy{
	Base:       30 * time.Second,
	Multiplier: 1.5,
	Max:        10 * time.Minute,
}

// Backoff is a stateful reconnect timer for one session. It is not
// goroutine-driven: a Task calls Next() to learn how long to wait, then
// records its own Timer/Waiter the way buffer.Transport and resolver.Resolver
// already do, so Backoff itself never blocks or spawns anything.
type Backoff struct {
	eb      *backoff.ExponentialBackOff
	retries int
	policy  Policy
}

// New returns a Backoff under p. A zero Policy is replaced with
// DefaultPolicy.
func New(p Policy) *Backoff {
	if p.Base == 0 {
		p = DefaultPolicy
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Base
	eb.Multiplier = p.Multiplier
	if eb.Multiplier <= 1 {
		eb.Multiplier = 1.5
	}
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0 // the caller owns MaxRetries, not elapsed wall time
	eb.Reset()
	return &Backoff{eb: eb, policy: p}
}

// Next returns how long to wait before the next attempt, and false once
// MaxRetries has been exhausted (0 means never exhausted).
func (b *Backoff) Next() (time.Duration, bool) {
	if b.policy.MaxRetries > 0 && b.retries >= b.policy.MaxRetries {
		return 0, false
	}
	b.retries++
	d := b.eb.NextBackOff()
	if d == backoff.Stop || (b.policy.Max > 0 && d > b.policy.Max) {
		return b.policy.Max, true
	}
	return d, true
}

// Reset clears accumulated backoff after a successful connection, matching
// lftp's own reconnect_interval_current reset on successful login.
func (b *Backoff) Reset() {
	b.retries = 0
	b.eb.Reset()
}

// Retries reports how many attempts have been made since the last Reset.
func (b *Backoff) Retries() int { return b.retries }
