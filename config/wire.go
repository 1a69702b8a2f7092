package config

import (
	"time"

	"github.com/gonzalop/xfer/cache"
	"github.com/gonzalop/xfer/internal/retry"
)

// Keys with no natural Go-side zero value get a built-in default here,
// applied once by Defaults. Everything else simply returns Go's zero value
// (false, 0, "") when unset, which is already the right behavior for most
// of spec.md §6.4's boolean toggles (e.g. ftp:use-site-idle defaults off).
const (
	keyRatePeriod      = "xfer:rate-period"
	keyETAPeriod       = "xfer:eta-period"
	keyMaxRedirections = "xfer:max-redirections"
	keyUsePropfind     = "http:use-propfind"
	keyCacheEnable     = "cache:enable"
	keyCacheSize       = "cache:size"
	keyCacheExpire     = "cache:expire"
	keyConnectionLimit = "net:connection-limit"
	keyReconnectBase   = "net:reconnect-interval-base"
	keyReconnectMult   = "net:reconnect-interval-multiplier"
	keyReconnectMax    = "net:reconnect-interval-max"
	keyMaxRetries      = "net:max-retries"
)

// Defaults installs the built-in fallback for every key this package wires
// into a concrete component, so a Store used with no config file at all
// still produces the same defaults the teacher's own packages already
// chose for their zero-value behavior.
func (s *Store) Defaults() {
	s.SetDefault(keyRatePeriod, "1s")
	s.SetDefault(keyETAPeriod, "30s")
	s.SetDefault(keyMaxRedirections, 5)
	s.SetDefault(keyUsePropfind, true)
	s.SetDefault(keyCacheEnable, true)
	s.SetDefault(keyCacheSize, int64(16<<20)) // 16MiB, spec.md's ls-cache-size default order of magnitude
	s.SetDefault(keyCacheExpire, "60s")
	s.SetDefault(keyConnectionLimit, 0) // 0 means unlimited, matching net:connection-limit's own default
	s.SetDefault(keyReconnectBase, retry.DefaultPolicy.Base)
	s.SetDefault(keyReconnectMult, retry.DefaultPolicy.Multiplier)
	s.SetDefault(keyReconnectMax, retry.DefaultPolicy.Max)
	s.SetDefault(keyMaxRetries, 0)
}

// RetryPolicy builds a retry.Policy from net:reconnect-interval-{base,
// multiplier,max} and net:max-retries, scoped to closure.
func (s *Store) RetryPolicy(closure string) retry.Policy {
	return retry.Policy{
		Base:       s.GetDuration(keyReconnectBase, closure),
		Multiplier: s.GetFloat64(keyReconnectMult, closure),
		Max:        s.GetDuration(keyReconnectMax, closure),
		MaxRetries: s.GetInt(keyMaxRetries, closure),
	}
}

// Backoff is a convenience wrapper around RetryPolicy+retry.New.
func (s *Store) Backoff(closure string) *retry.Backoff {
	return retry.New(s.RetryPolicy(closure))
}

// RatePeriods returns the display-rate and ETA smoothing periods for the
// copy pipeline's two RateMeters (spec.md §6.4's xfer:rate-period and
// xfer:eta-period).
func (s *Store) RatePeriods(closure string) (rate, eta time.Duration) {
	return s.GetDuration(keyRatePeriod, closure), s.GetDuration(keyETAPeriod, closure)
}

// MaxRedirections returns xfer:max-redirections for the HTTP/WebDAV
// engine's redirect cap.
func (s *Store) MaxRedirections(closure string) int {
	return s.GetInt(keyMaxRedirections, closure)
}

// UsePropfind returns http:use-propfind's starting value for a new WebDAV
// client; the client itself flips its own per-connection copy off on a
// 400/501 response, independent of this setting.
func (s *Store) UsePropfind(closure string) bool {
	return s.GetBool(keyUsePropfind, closure)
}

// ConnectionLimit returns net:connection-limit, the capacity a pool.Pool
// for this closure should be built with. 0 means unlimited, and can be
// passed to pool.New as-is: a capacity of 0 or less puts no cap on the pool.
func (s *Store) ConnectionLimit(closure string) int {
	return s.GetInt(keyConnectionLimit, closure)
}

// Cache builds a *cache.Cache from cache:enable/size/expire, or returns
// (nil, false) when caching is disabled for closure — the caller skips
// cache lookups/stores entirely rather than using a zero-capacity Cache.
func (s *Store) Cache(closure string) (*cache.Cache, bool) {
	if !s.GetBool(keyCacheEnable, closure) {
		return nil, false
	}
	budget := s.GetInt64(keyCacheSize, closure)
	ttl := s.GetDuration(keyCacheExpire, closure)
	return cache.New(budget, ttl), true
}
