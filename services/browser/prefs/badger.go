// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prefs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/specsync/services/browser/storage/badger"
)

const keyPrefix = "prefs/"

// BadgerStore persists preferences in the local BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerStore wraps an open database. Close does not close db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) the preference database under
// dataDir/prefs. An empty dataDir opens an in-memory database.
func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	cfg := badger.InMemoryConfig()
	if dataDir != "" {
		cfg = badger.DefaultConfig(filepath.Join(dataDir, "prefs"))
	}
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open preference store: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// Get returns the stored value or the default.
func (s *BadgerStore) Get(ctx context.Context, n Name) (bool, error) {
	if _, err := ParseName(string(n)); err != nil {
		return false, err
	}
	raw, found, err := s.db.Get(ctx, keyPrefix+string(n))
	if err != nil {
		return false, translate(err)
	}
	return decode(n, raw, found), nil
}

// Set stores v.
func (s *BadgerStore) Set(ctx context.Context, n Name, v bool) error {
	if _, err := ParseName(string(n)); err != nil {
		return err
	}
	return translate(s.db.Set(ctx, keyPrefix+string(n), encode(v)))
}

// Load returns all preferences.
func (s *BadgerStore) Load(ctx context.Context) (Preferences, error) {
	return loadAll(ctx, s.Get)
}

// Close closes the database if the store opened it.
func (s *BadgerStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func translate(err error) error {
	if errors.Is(err, badger.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
