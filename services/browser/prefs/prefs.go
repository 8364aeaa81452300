// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prefs stores the client's local preferences: dark mode, auto
// refresh, and whether onboarding was dismissed.
//
// Values are plain booleans stored as "true"/"false". Auto refresh is on
// unless explicitly stored as "false"; the other two default to off.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("prefs: store closed")

	// ErrUnknown is returned for a preference name that does not exist.
	ErrUnknown = errors.New("prefs: unknown preference")
)

// Name identifies a preference.
type Name string

const (
	DarkMode            Name = "dark_mode"
	AutoRefresh         Name = "auto_refresh"
	OnboardingDismissed Name = "onboarding_dismissed"
)

// Names lists every preference.
var Names = []Name{DarkMode, AutoRefresh, OnboardingDismissed}

// ParseName validates a preference name.
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

// Default returns the value used when nothing is stored.
func (n Name) Default() bool {
	return n == AutoRefresh
}

// Preferences is the full set.
type Preferences struct {
	DarkMode            bool `json:"dark_mode" yaml:"dark_mode"`
	AutoRefresh         bool `json:"auto_refresh" yaml:"auto_refresh"`
	OnboardingDismissed bool `json:"onboarding_dismissed" yaml:"onboarding_dismissed"`
}

// Defaults returns the preferences of a fresh install.
func Defaults() Preferences {
	return Preferences{AutoRefresh: true}
}

// Get returns the named field.
func (p Preferences) Get(n Name) bool {
	switch n {
	case DarkMode:
		return p.DarkMode
	case AutoRefresh:
		return p.AutoRefresh
	case OnboardingDismissed:
		return p.OnboardingDismissed
	default:
		return false
	}
}

func (p *Preferences) set(n Name, v bool) {
	switch n {
	case DarkMode:
		p.DarkMode = v
	case AutoRefresh:
		p.AutoRefresh = v
	case OnboardingDismissed:
		p.OnboardingDismissed = v
	}
}

// Store persists preferences.
type Store interface {
	Get(ctx context.Context, n Name) (bool, error)
	Set(ctx context.Context, n Name, v bool) error
	Load(ctx context.Context) (Preferences, error)
	Close() error
}

// decode applies the stored-string rule: auto refresh is off only for an
// explicit "false", the others are on only for an explicit "true".
func decode(n Name, raw []byte, found bool) bool {
	if !found {
		return n.Default()
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return n.Default()
	}
	return v
}

func encode(v bool) []byte {
	return []byte(strconv.FormatBool(v))
}

// loadAll reads every preference through get.
func loadAll(ctx context.Context, get func(context.Context, Name) (bool, error)) (Preferences, error) {
	var p Preferences
	for _, n := range Names {
		v, err := get(ctx, n)
		if err != nil {
			return Preferences{}, err
		}
		p.set(n, v)
	}
	return p, nil
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore keeps preferences in memory. Used in tests and when no data
// directory is configured.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Name][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Name][]byte)}
}

// Get returns the stored value or the default.
func (s *MemoryStore) Get(_ context.Context, n Name) (bool, error) {
	if _, err := ParseName(string(n)); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	raw, ok := s.values[n]
	return decode(n, raw, ok), nil
}

// Set stores v.
func (s *MemoryStore) Set(_ context.Context, n Name, v bool) error {
	if _, err := ParseName(string(n)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.values[n] = encode(v)
	return nil
}

// Load returns all preferences.
func (s *MemoryStore) Load(ctx context.Context) (Preferences, error) {
	return loadAll(ctx, s.Get)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stored returns the names that have an explicit value, sorted.
func (s *MemoryStore) Stored() []Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Name, 0, len(s.values))
	for n := range s.values {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
