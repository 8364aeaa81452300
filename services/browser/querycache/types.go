// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querycache

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxEntries is the default number of cached keys before
// unobserved entries are evicted.
const DefaultMaxEntries = 64

// keySeparator joins hierarchical key parts.
const keySeparator = ":"

// Key is an opaque semantic identifier for a cacheable view, e.g.
// "statistics" or "entities:status=active:type=".
//
// Keys are hierarchical: a key matches itself and every key that extends
// it with a ":"-separated suffix.
type Key string

// NewKey joins parts into a hierarchical key.
func NewKey(parts ...string) Key {
	return Key(strings.Join(parts, keySeparator))
}

// Matches reports whether k is prefix itself or a descendant of prefix.
func (k Key) Matches(prefix Key) bool {
	if k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+keySeparator)
}

// FetchState is the lifecycle state of a cache entry.
type FetchState int

const (
	// StateIdle means no value and no fetch in flight.
	StateIdle FetchState = iota

	// StateFetching means a fetch is in flight. A value may still be
	// present (background revalidation).
	StateFetching

	// StateFresh means the value reflects the latest generation.
	StateFresh

	// StateStale means the value is known outdated and no fetch is in
	// flight (the entry has no observers).
	StateStale

	// StateFailed means the last fetch failed. The previous value, if
	// any, is retained.
	StateFailed
)

// String returns the lowercase state name.
func (s FetchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher loads the value for a key from the remote service.
//
// The context is cancelled when the fetch is superseded by an
// invalidation or the manager is closed.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is a read-only view of an entry at one point in time.
type Snapshot struct {
	// Key identifies the entry.
	Key Key

	// Value is the last successfully fetched payload. Valid when HasValue.
	Value any

	// HasValue distinguishes "no data yet" from a nil payload.
	HasValue bool

	// State is the entry's fetch state.
	State FetchState

	// Stale is true when Value is known to be outdated (invalidated and
	// not yet replaced), including while a revalidation is in flight.
	Stale bool

	// Err is the error from the most recent failed fetch.
	Err error

	// Generation is the entry's invalidation generation.
	Generation uint64

	// Observers is the number of live subscriptions.
	Observers int

	// UpdatedAt is when Value was last replaced.
	UpdatedAt time.Time

	// Version increases on every change to the entry.
	Version uint64
}

// Loading reports whether there is nothing to show yet.
func (s Snapshot) Loading() bool {
	return !s.HasValue && (s.State == StateFetching || s.State == StateIdle)
}

// Refreshing reports whether a fetch is in flight behind a displayed value.
func (s Snapshot) Refreshing() bool {
	return s.HasValue && s.State == StateFetching
}

// Result is a fetch outcome tagged with the generation it was fetched under.
type Result struct {
	Key        Key
	Generation uint64
	Value      any
	Err        error
}

// Stats contains cache counters.
type Stats struct {
	// Entries is the number of cached keys.
	Entries int

	// Observed is the number of keys with at least one observer.
	Observed int

	// Fetches is the number of fetches started.
	Fetches int64

	// Hits counts reads served from a fresh entry without fetching.
	Hits int64

	// Discarded counts responses dropped as out of generation.
	Discarded int64

	// Failures counts failed fetches.
	Failures int64

	// Evictions counts entries removed by the LRU policy.
	Evictions int64
}

// Options configures a Manager.
type Options struct {
	// MaxEntries bounds the number of cached keys. Only unobserved,
	// non-fetching entries are evicted, so the cache may exceed the bound
	// while everything is in use.
	MaxEntries int

	// Logger receives fetch and discard events. Default: slog.Default().
	Logger *slog.Logger

	// Now supplies timestamps. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries: DefaultMaxEntries,
		Logger:     slog.Default(),
		Now:        time.Now,
	}
}

// Option is a functional option for configuring a Manager.
type Option func(*Options)

// WithMaxEntries sets the eviction bound. Non-positive values are ignored.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithClock sets the timestamp source. Nil is ignored.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}
