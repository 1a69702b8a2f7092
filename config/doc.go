// Package config implements the hierarchical (key, closure) settings store
// spec.md §6.4 describes: every knob the engines, copy pipeline, cache, and
// connection pool consult is looked up by a "proto:name" key, optionally
// narrowed by a closure (typically a host or user@host). A closure-specific
// override wins over the global value; the chain is resolved on every
// lookup rather than flattened once at load time, so a runtime
// SetForClosure call (e.g. one that turns a setting off for a single
// misbehaving server) takes effect immediately.
//
// github.com/spf13/viper supplies the file/env/defaults substrate for the
// global layer; closure overrides are a plain nested map Store manages
// itself, since viper's own key delimiter ('.') would collide with dots in
// a hostname closure if closures were encoded as dotted viper keys.
package config
