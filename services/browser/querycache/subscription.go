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

import "sync"

// Subscription is an observer handle returned by Manager.Subscribe.
//
// Updates delivers snapshots as the entry changes. The channel holds at
// most one pending snapshot; a newer snapshot replaces an unread older one,
// so a slow reader always sees the latest state and never blocks the
// cache. Snapshots arrive in the order the transitions happened.
//
// Thread Safety: Safe for concurrent use.
type Subscription struct {
	m       *Manager
	key     Key
	updates chan Snapshot

	mu          sync.Mutex
	closed      bool
	lastVersion uint64
}

func newSubscription(m *Manager, key Key, version uint64) *Subscription {
	return &Subscription{
		m:           m,
		key:         key,
		updates:     make(chan Snapshot, 1),
		lastVersion: version,
	}
}

// Key returns the observed key.
func (s *Subscription) Key() Key {
	return s.key
}

// Updates returns the snapshot channel. It is closed by Close.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close releases the observer. Idempotent. A closed subscription is never
// notified again; a fetch it started still completes and is cached.
func (s *Subscription) Close() {
	if s.shutdown() {
		s.m.unsubscribe(s)
	}
}

// shutdown closes the channel. Returns false if already closed.
func (s *Subscription) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.updates)
	return true
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || snap.Version <= s.lastVersion {
		return
	}
	s.lastVersion = snap.Version

	// Replace any unread snapshot. Only one producer holds mu, so the send
	// below cannot block.
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
