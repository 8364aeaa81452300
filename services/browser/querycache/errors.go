// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querycache keeps independently fetched views consistent with a
// remote service.
//
// The cache maps a semantic query key to its last known value, its fetch
// state, and the number of live observers. It provides:
//   - Stale-while-revalidate reads through Subscribe
//   - Shared in-flight fetches (one network call per key at a time)
//   - Invalidation by exact key or hierarchical prefix
//   - Generation tagging so superseded responses are dropped
//   - LRU eviction of unobserved entries
//
// # Design Principles
//
// The cache is the only writer of its entries. Other components (the live
// update channel, the mutation dispatcher) only call Invalidate; they never
// write a value. Both paths therefore converge: mark stale, then refetch.
//
// # Thread Safety
//
// Manager is safe for concurrent use. Every public operation runs under a
// single mutex so state transitions never interleave. Fetchers run outside
// the lock and subscribers are notified after it is released.
package querycache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNilFetcher is returned when a key is first used without a fetcher.
	ErrNilFetcher = errors.New("querycache: no fetcher registered for key")

	// ErrSuperseded is returned to Load waiters whose fetch was overtaken
	// by an invalidation. Load retries internally; callers only see it if
	// their context ends first.
	ErrSuperseded = errors.New("querycache: fetch superseded by invalidation")

	// ErrClosed is returned after Manager.Close.
	ErrClosed = errors.New("querycache: manager closed")
)
