// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestGetSetDelete(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()

	_, found, err := db.Get(ctx, "prefs/dark_mode")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.Set(ctx, "prefs/dark_mode", []byte("true")))
	v, found, err := db.Get(ctx, "prefs/dark_mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("true"), v)

	require.NoError(t, db.Delete(ctx, "prefs/dark_mode"))
	require.NoError(t, db.Delete(ctx, "prefs/never_set"))
	_, found, err = db.Get(ctx, "prefs/dark_mode")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScan_Prefix(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, "prefs/a", []byte("1")))
	require.NoError(t, db.Set(ctx, "prefs/b", []byte("2")))
	require.NoError(t, db.Set(ctx, "other/c", []byte("3")))

	got, err := db.Scan(ctx, "prefs/")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"prefs/a": []byte("1"), "prefs/b": []byte("2")}, got)
}

func TestContextCancelled(t *testing.T) {
	db := openMem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, db.Set(ctx, "k", nil), context.Canceled)
	_, _, err := db.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_IdempotentAndErrClosed(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	err = db.Set(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = time.Hour

	db, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())
	require.NoError(t, db.Set(context.Background(), "prefs/auto_refresh", []byte("false")))
	require.NoError(t, db.Close())

	db2, err := Open(cfg)
	require.NoError(t, err)
	defer db2.Close()

	v, found, err := db2.Get(context.Background(), "prefs/auto_refresh")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("false"), v)
}
