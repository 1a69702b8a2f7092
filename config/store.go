package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Store is the hierarchical (key, closure) settings store of spec.md §6.4.
// Keys are written "proto:name" (e.g. "ftp:passive-mode", "net:timeout"),
// matching the spec's own notation exactly so a lookup key never needs
// translating between documentation and code.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	over map[string]map[string]any // closure -> "proto:name" -> value
}

// New returns an empty Store: no config file loaded, no closure overrides,
// viper's automatic-env layer bound under the XFER_ prefix (so "net:timeout"
// can be set via XFER_NET_TIMEOUT without a file on disk).
func New() *Store {
	v := viper.New()
	v.SetEnvPrefix("xfer")
	v.SetEnvKeyReplacer(strings.NewReplacer(":", "_", "-", "_"))
	v.AutomaticEnv()
	return &Store{v: v, over: make(map[string]map[string]any)}
}

// LoadFile reads settings from path (any format viper supports — YAML,
// JSON, TOML, ...). A top-level "closures" map, keyed by closure name, is
// pulled out into the Store's own override table rather than left in
// viper's nested-key space, since a hostname closure's dots would otherwise
// collide with viper's '.' key delimiter.
func (s *Store) LoadFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.SetConfigFile(path)
	if err := s.v.ReadInConfig(); err != nil {
		return err
	}
	s.loadClosuresLocked()
	return nil
}

func (s *Store) loadClosuresLocked() {
	raw := s.v.GetStringMap("closures")
	over := make(map[string]map[string]any, len(raw))
	for closure, val := range raw {
		m, ok := val.(map[string]any)
		if !ok {
			continue
		}
		over[closure] = m
	}
	s.over = over
}

// SetDefault registers val as the fallback for key when no config file,
// env var, or closure override supplies one. Packages that wire themselves
// to a Store (see wire.go) call this for the handful of keys spec.md
// enumerates that have no natural Go-side zero value.
func (s *Store) SetDefault(key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.SetDefault(key, val)
}

// Set overrides key globally at runtime, above the config file and env
// layers — the "global" rung of spec.md §6.4's override chain.
func (s *Store) Set(key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, val)
}

// SetForClosure overrides key for one closure only, the most specific rung
// of the chain. Used both for user-supplied per-host settings and for the
// engine's own write-back (spec.md §9's use-stat-for-list heuristic
// disabling itself for a server that misreports STAT support).
func (s *Store) SetForClosure(key, closure string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.over[closure]
	if !ok {
		m = make(map[string]any)
		s.over[closure] = m
	}
	m[key] = val
}

// get resolves key following the override chain: closure-specific, then
// the global viper layer (runtime Set, config file, env, SetDefault, in
// viper's own precedence order).
func (s *Store) get(key, closure string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if closure != "" {
		if m, ok := s.over[closure]; ok {
			if val, ok := m[key]; ok {
				return val, true
			}
		}
	}
	if s.v.IsSet(key) {
		return s.v.Get(key), true
	}
	return nil, false
}

// GetString returns key's value as a string, or "" if unset.
func (s *Store) GetString(key, closure string) string {
	v, ok := s.get(key, closure)
	if !ok {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// GetBool returns key's value as a bool, or false if unset or unparseable.
func (s *Store) GetBool(key, closure string) bool {
	v, ok := s.get(key, closure)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

// GetInt returns key's value as an int, or 0 if unset or unparseable.
func (s *Store) GetInt(key, closure string) int {
	return int(s.GetInt64(key, closure))
}

// GetInt64 returns key's value as an int64, or 0 if unset or unparseable.
func (s *Store) GetInt64(key, closure string) int64 {
	v, ok := s.get(key, closure)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// GetFloat64 returns key's value as a float64, or 0 if unset or unparseable.
func (s *Store) GetFloat64(key, closure string) float64 {
	v, ok := s.get(key, closure)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// GetDuration returns key's value as a time.Duration. A bare number is
// interpreted as whole seconds (matching lftp's own ResMgr time values);
// a string is parsed with time.ParseDuration first, falling back to
// whole-seconds on failure.
func (s *Store) GetDuration(key, closure string) time.Duration {
	v, ok := s.get(key, closure)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case time.Duration:
		return t
	case int:
		return time.Duration(t) * time.Second
	case int64:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
		return 0
	default:
		return 0
	}
}
