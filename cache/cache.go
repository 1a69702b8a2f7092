// Package cache implements the response cache (spec.md §4.8): a bounded
// map from (session-identity-sans-password, path, mode) to either a raw
// listing (plus an optionally-parsed FileSet) or a cached error, with
// path-based invalidation and LRU-plus-TTL eviction.
package cache

import (
	"path"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/gonzalop/xfer"
)

// Entry is one cached response: either a blob (optionally with a parsed
// FileSet) or a cached error, never both.
type Entry struct {
	Blob    []byte
	Files   *xfer.FileSet
	ErrKind xfer.Kind
	ErrMsg  string

	createdAt time.Time
	expiresAt time.Time
}

// IsError reports whether this entry holds a cached error rather than data.
func (e *Entry) IsError() bool { return e.ErrKind != xfer.OK }

// Cache is the process-global response cache (spec.md §5 "shared
// resources... writes are safe because the scheduler is single-threaded").
// The mutex here is defense against a caller that bypasses the scheduler
// (tests, or a future multi-process-safe mode, per spec.md §9's door left
// open); the scheduler itself never contends on it.
type Cache struct {
	mu         sync.Mutex
	store      *lru.Cache
	budget     int64
	used       int64
	defaultTTL time.Duration
}

const unboundedSlots = 1 << 20 // slot count cap; byte budget does the real eviction

// New creates a Cache bounded by budgetBytes (spec.md's `ls-cache-size`)
// with defaultTTL applied to entries that don't specify their own.
func New(budgetBytes int64, defaultTTL time.Duration) *Cache {
	c := &Cache{budget: budgetBytes, defaultTTL: defaultTTL}
	store, err := lru.NewWithEvict(unboundedSlots, c.onEvicted)
	if err != nil {
		// Only returns an error for a non-positive size, which unboundedSlots
		// never is.
		panic(err)
	}
	c.store = store
	return c
}

func (c *Cache) onEvicted(key, value interface{}) {
	if e, ok := value.(*Entry); ok {
		c.used -= entrySize(e)
	}
}

func entrySize(e *Entry) int64 {
	return int64(len(e.Blob) + len(e.ErrMsg) + 64)
}

// Store records a successful listing/response. ttl of 0 uses the Cache's
// default.
func (c *Cache) Store(key xfer.CacheKey, blob []byte, files *xfer.FileSet, ttl time.Duration) {
	c.put(key, &Entry{Blob: blob, Files: files}, ttl)
}

// StoreError records a cached failure (spec.md §4.8 "entry...(error-code,
// error-message)").
func (c *Cache) StoreError(key xfer.CacheKey, kind xfer.Kind, msg string, ttl time.Duration) {
	c.put(key, &Entry{ErrKind: kind, ErrMsg: msg}, ttl)
}

func (c *Cache) put(key xfer.CacheKey, e *Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	e.createdAt = now
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.store.Peek(key); ok {
		c.used -= entrySize(old.(*Entry))
	}
	c.store.Add(key, e)
	c.used += entrySize(e)
	c.evictToBudget()
}

// evictToBudget drops the oldest entries (Keys() is returned oldest-first
// by the underlying LRU) until the cache is back under its byte budget.
// Must be called with mu held.
func (c *Cache) evictToBudget() {
	if c.budget <= 0 {
		return
	}
	for c.used > c.budget {
		keys := c.store.Keys()
		if len(keys) == 0 {
			return
		}
		c.store.Remove(keys[0])
	}
}

// Lookup returns the cached entry for key, if present and unexpired. A
// expired entry is evicted and treated as a miss.
func (c *Cache) Lookup(key xfer.CacheKey) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.store.Remove(key)
		return nil, false
	}
	return e, true
}

// siteMatches reports whether key belongs to the same site as the
// identity-derived fields of other (proto/host/port/user/home), ignoring
// path and mode.
func siteMatches(key xfer.CacheKey, proto, host, port, user, home string) bool {
	return key.Proto == proto && key.Host == host && key.Port == port &&
		key.User == user && key.Home == home
}

// FileChanged invalidates any cached entry for path itself or for its
// parent directory's listing, on the given site (spec.md §4.8).
func (c *Cache) FileChanged(id xfer.Identity, p string) {
	dir := path.Dir(p)
	c.removeMatching(id, func(key xfer.CacheKey) bool {
		return key.Path == p || key.Path == dir
	})
}

// TreeChanged invalidates every cached entry whose path is under subtree,
// on the given site (spec.md §4.8).
func (c *Cache) TreeChanged(id xfer.Identity, subtree string) {
	prefix := subtree
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	c.removeMatching(id, func(key xfer.CacheKey) bool {
		return key.Path == subtree || strings.HasPrefix(key.Path, prefix)
	})
}

func (c *Cache) removeMatching(id xfer.Identity, match func(xfer.CacheKey) bool) {
	proto, host, port, user, home := id.Proto, id.Host, id.Port, id.User, id.Home
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.store.Keys() {
		key := k.(xfer.CacheKey)
		if siteMatches(key, proto, host, port, user, home) && match(key) {
			c.store.Remove(key)
		}
	}
}

// Len returns the number of entries currently cached (for tests/metrics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// earliestExpiry returns the soonest expiresAt across all entries, or the
// zero Time if nothing carries a TTL.
func (c *Cache) earliestExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var min time.Time
	for _, k := range c.store.Keys() {
		v, ok := c.store.Peek(k)
		if !ok {
			continue
		}
		e := v.(*Entry)
		if e.expiresAt.IsZero() {
			continue
		}
		if min.IsZero() || e.expiresAt.Before(min) {
			min = e.expiresAt
		}
	}
	return min
}

// sweepExpired removes every entry whose TTL has passed, returning how
// many were removed.
func (c *Cache) sweepExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, k := range c.store.Keys() {
		v, ok := c.store.Peek(k)
		if !ok {
			continue
		}
		e := v.(*Entry)
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			c.store.Remove(k)
			removed++
		}
	}
	return removed
}
