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
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is the internal record for one key. Guarded by Manager.mu.
type entry struct {
	key        Key
	value      any
	hasValue   bool
	state      FetchState
	stale      bool
	err        error
	generation uint64
	version    uint64
	updatedAt  time.Time

	// fetcher is the most recently registered fetcher for the key.
	fetcher Fetcher

	// fetchSeq identifies the current fetch attempt. Sequence numbers are
	// drawn from Manager.seq so a finished attempt is never joined by a
	// later one, even for a re-created key.
	fetchSeq uint64
	cancel   context.CancelFunc

	subs    map[*Subscription]struct{}
	element *list.Element
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:        e.key,
		Value:      e.value,
		HasValue:   e.hasValue,
		State:      e.state,
		Stale:      e.stale,
		Err:        e.err,
		Generation: e.generation,
		Observers:  len(e.subs),
		UpdatedAt:  e.updatedAt,
		Version:    e.version,
	}
}

func (e *entry) matchesAny(prefixes []Key) bool {
	for _, p := range prefixes {
		if e.key.Matches(p) {
			return true
		}
	}
	return false
}

// delivery is a snapshot bound for a set of subscribers, sent after the
// manager lock is released.
type delivery struct {
	subs []*Subscription
	snap Snapshot
}

func (d delivery) send() {
	for _, s := range d.subs {
		s.deliver(d.snap)
	}
}

// Manager is the query cache.
//
// Description:
//
//	Manager owns every cache entry. Views Subscribe to a key and receive
//	snapshots as the entry moves through its states. Invalidate marks
//	entries stale; observed entries refetch immediately, unobserved ones
//	wait for their next observer.
//
// Thread Safety:
//
//	Safe for concurrent use. All state transitions happen under mu.
//	Fetchers run in their own goroutines with no lock held.
type Manager struct {
	mu      sync.Mutex
	entries map[Key]*entry
	lru     *list.List
	flight  singleflight.Group
	options Options
	logger  *slog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	closed    bool
	seq       uint64

	fetches   int64
	hits      int64
	discarded int64
	failures  int64
	evictions int64
}

// NewManager creates an empty cache.
//
// Inputs:
//
//	opts - Optional configuration (WithMaxEntries, WithLogger, WithClock).
//
// Outputs:
//
//	*Manager - Ready to use. Call Close to cancel in-flight fetches.
func NewManager(opts ...Option) *Manager {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		entries:   make(map[Key]*entry),
		lru:       list.New(),
		options:   options,
		logger:    options.Logger.With("component", "querycache"),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// Subscribe registers an observer for key.
//
// Description:
//
//	Returns the entry's current snapshot and a handle delivering later
//	snapshots. If the entry is not fresh and not already fetching, a fetch
//	starts. A fresh entry is returned without any fetch.
//
// Inputs:
//
//	key - The query key.
//	fetcher - Loads the value. May be nil if the key already has one.
//
// Outputs:
//
//	Snapshot - The state at subscription time. Loading() is true when
//	           there is nothing to show yet.
//	*Subscription - Must be closed when the view goes away.
//	error - ErrNilFetcher or ErrClosed.
func (m *Manager) Subscribe(key Key, fetcher Fetcher) (Snapshot, *Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, nil, ErrClosed
	}

	e, err := m.entryLocked(key, fetcher)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, nil, err
	}
	m.lru.MoveToFront(e.element)

	hit := false
	var d delivery
	switch e.state {
	case StateFresh:
		m.hits++
		hit = true
	case StateFetching:
		// Join the in-flight fetch.
	default:
		m.startFetchLocked(e)
		d = m.deliveryLocked(e)
	}

	snap := e.snapshot()
	sub := newSubscription(m, key, snap.Version)
	e.subs[sub] = struct{}{}
	snap.Observers = len(e.subs)
	m.evictLocked()
	m.mu.Unlock()

	d.send()
	if hit {
		recordHit(context.Background(), key)
	}
	return snap, sub, nil
}

// Load returns a fresh value for key, fetching if needed.
//
// Description:
//
//	Load does not register an observer. Callers that arrive while a fetch
//	is in flight share it. If the fetch is superseded by an invalidation,
//	Load retries until ctx ends.
//
// Inputs:
//
//	ctx - Bounds the wait. Cancelling it does not cancel the shared fetch.
//	key - The query key.
//	fetcher - Loads the value. May be nil if the key already has one.
//
// Outputs:
//
//	any - The fetched value.
//	error - The fetch error, ctx.Err(), ErrNilFetcher, or ErrClosed.
func (m *Manager) Load(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}

		e, err := m.entryLocked(key, fetcher)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.lru.MoveToFront(e.element)

		var d delivery
		switch e.state {
		case StateFresh:
			m.hits++
			value := e.value
			m.mu.Unlock()
			recordHit(ctx, key)
			return value, nil
		case StateFetching:
		default:
			m.startFetchLocked(e)
			d = m.deliveryLocked(e)
		}

		// The attempt registered by startFetchLocked stays in flight until
		// it completes under mu, so this always joins it.
		ch := m.flight.DoChan(flightKey(key, e.fetchSeq), func() (any, error) {
			return nil, ErrSuperseded
		})
		m.evictLocked()
		m.mu.Unlock()
		d.send()

		select {
		case res := <-ch:
			if errors.Is(res.Err, ErrSuperseded) {
				continue
			}
			return res.Val, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Invalidate marks every entry matching one of keys as stale.
//
// Description:
//
//	A key matches itself and its hierarchical descendants. Each matching
//	entry's generation is bumped so responses fetched earlier are dropped.
//	Observed entries refetch immediately (one fetch per entry, cancelling
//	any superseded one); unobserved entries become stale, or idle if they
//	never had a value.
//
// Outputs:
//
//	int - Number of entries invalidated.
func (m *Manager) Invalidate(keys ...Key) int {
	if len(keys) == 0 {
		return 0
	}
	return m.invalidateWhere(func(e *entry) bool { return e.matchesAny(keys) })
}

// InvalidateAll marks every entry stale.
func (m *Manager) InvalidateAll() int {
	return m.invalidateWhere(func(*entry) bool { return true })
}

func (m *Manager) invalidateWhere(match func(*entry) bool) int {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0
	}

	var ds []delivery
	n := 0
	for _, e := range m.entries {
		if !match(e) {
			continue
		}
		m.invalidateLocked(e)
		ds = append(ds, m.deliveryLocked(e))
		n++
	}
	m.mu.Unlock()

	for _, d := range ds {
		d.send()
	}
	recordInvalidations(context.Background(), n)
	if n > 0 {
		m.logger.Debug("invalidated", "entries", n)
	}
	return n
}

// DispatchResult applies a fetch outcome produced outside the manager.
//
// Description:
//
//	The result is applied only if r.Generation equals the entry's current
//	generation; older results are counted as discarded. Applying a result
//	cancels any in-flight fetch for the same generation.
//
// Outputs:
//
//	bool - True if the result was applied.
func (m *Manager) DispatchResult(r Result) bool {
	m.mu.Lock()
	e, ok := m.entries[r.Key]
	if !ok || m.closed {
		m.mu.Unlock()
		return false
	}
	if r.Generation != e.generation {
		m.discarded++
		m.mu.Unlock()
		recordDiscard(context.Background(), r.Key)
		return false
	}

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	m.applyLocked(e, r.Value, r.Err)
	d := m.deliveryLocked(e)
	m.evictLocked()
	m.mu.Unlock()

	d.send()
	return true
}

// Peek returns the current snapshot without registering an observer or
// starting a fetch.
func (m *Manager) Peek(key Key) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Keys returns every cached key in sorted order.
func (m *Manager) Keys() []Key {
	m.mu.Lock()
	keys := make([]Key, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Stats returns cache counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	observed := 0
	for _, e := range m.entries {
		if len(e.subs) > 0 {
			observed++
		}
	}
	return Stats{
		Entries:   len(m.entries),
		Observed:  observed,
		Fetches:   m.fetches,
		Hits:      m.hits,
		Discarded: m.discarded,
		Failures:  m.failures,
		Evictions: m.evictions,
	}
}

// Close cancels in-flight fetches and closes every subscription.
// Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelAll()

	var subs []*Subscription
	for _, e := range m.entries {
		for s := range e.subs {
			subs = append(subs, s)
		}
		e.subs = make(map[*Subscription]struct{})
		e.cancel = nil
		if e.state == StateFetching {
			if e.hasValue {
				e.state = StateStale
			} else {
				e.state = StateIdle
			}
		}
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

// entryLocked returns the entry for key, creating it if needed.
func (m *Manager) entryLocked(key Key, fetcher Fetcher) (*entry, error) {
	e, ok := m.entries[key]
	if !ok {
		if fetcher == nil {
			return nil, ErrNilFetcher
		}
		e = &entry{
			key:     key,
			state:   StateIdle,
			fetcher: fetcher,
			subs:    make(map[*Subscription]struct{}),
		}
		e.element = m.lru.PushFront(e)
		m.entries[key] = e
		return e, nil
	}
	if fetcher != nil {
		e.fetcher = fetcher
	}
	return e, nil
}

// startFetchLocked launches a fetch for e's current generation,
// cancelling any attempt it supersedes.
func (m *Manager) startFetchLocked(e *entry) {
	if e.cancel != nil {
		e.cancel()
	}
	m.seq++
	e.fetchSeq = m.seq
	e.state = StateFetching
	e.version++
	m.fetches++

	key, gen, seq, fetcher := e.key, e.generation, e.fetchSeq, e.fetcher
	ctx, cancel := context.WithCancel(m.baseCtx)
	e.cancel = cancel

	m.logger.Debug("fetch started", "key", key, "generation", gen)

	// DoChan registers the call before returning, which is what lets Load
	// join by (key, seq) under the same lock.
	m.flight.DoChan(flightKey(key, seq), func() (any, error) {
		defer cancel()
		return m.runFetch(ctx, key, gen, seq, fetcher)
	})
}

func (m *Manager) runFetch(ctx context.Context, key Key, gen, seq uint64, fetcher Fetcher) (any, error) {
	ctx, span := startFetchSpan(ctx, key, gen)
	defer span.End()
	recordFetch(ctx, key)

	start := time.Now()
	value, err := fetcher(ctx)
	recordFetchLatency(ctx, key, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
	}

	return m.complete(key, gen, seq, value, err)
}

// complete applies a finished fetch if it is still the entry's current
// attempt at the current generation.
func (m *Manager) complete(key Key, gen, seq uint64, value any, err error) (any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok || e.fetchSeq != seq || e.state != StateFetching || e.generation != gen {
		m.discarded++
		m.mu.Unlock()
		recordDiscard(context.Background(), key)
		m.logger.Debug("discarded superseded response", "key", key, "generation", gen)
		return nil, ErrSuperseded
	}

	e.cancel = nil
	m.applyLocked(e, value, err)
	d := m.deliveryLocked(e)
	m.evictLocked()
	m.mu.Unlock()

	d.send()
	if err != nil {
		m.logger.Warn("fetch failed", "key", key, "error", err)
		return nil, err
	}
	return value, nil
}

func (m *Manager) applyLocked(e *entry, value any, err error) {
	if err != nil {
		e.state = StateFailed
		e.err = err
		m.failures++
	} else {
		e.value = value
		e.hasValue = true
		e.state = StateFresh
		e.stale = false
		e.err = nil
		e.updatedAt = m.options.Now()
	}
	e.version++
}

func (m *Manager) invalidateLocked(e *entry) {
	e.generation++
	if e.hasValue {
		e.stale = true
	}

	if len(e.subs) > 0 {
		m.startFetchLocked(e)
		return
	}

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.hasValue {
		e.state = StateStale
	} else {
		e.state = StateIdle
	}
	e.version++
}

func (m *Manager) deliveryLocked(e *entry) delivery {
	if len(e.subs) == 0 {
		return delivery{}
	}
	subs := make([]*Subscription, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	return delivery{subs: subs, snap: e.snapshot()}
}

// unsubscribe drops s from its entry. Any in-flight fetch continues and
// its result is cached.
func (m *Manager) unsubscribe(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[s.key]; ok {
		delete(e.subs, s)
	}
	m.evictLocked()
}

// evictLocked removes least recently used entries that are neither
// observed nor fetching until the cache fits MaxEntries.
func (m *Manager) evictLocked() {
	if m.options.MaxEntries <= 0 {
		return
	}
	for el := m.lru.Back(); el != nil && len(m.entries) > m.options.MaxEntries; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if len(e.subs) == 0 && e.state != StateFetching {
			m.lru.Remove(el)
			delete(m.entries, e.key)
			m.evictions++
			recordEviction(context.Background())
			m.logger.Debug("evicted", "key", e.key)
		}
		el = prev
	}
}

func flightKey(key Key, seq uint64) string {
	return string(key) + "#" + strconv.FormatUint(seq, 10)
}
