// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/specsync/services/devserver"
)

func TestRootCmd_Defaults(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags()

	addr, err := f.GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8765", addr)

	base, err := f.GetString("base-path")
	require.NoError(t, err)
	assert.Equal(t, devserver.DefaultBasePath, base)

	debounce, err := f.GetDuration("debounce")
	require.NoError(t, err)
	assert.Equal(t, devserver.DefaultDebounce, debounce)
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}

func TestLoadFixtures(t *testing.T) {
	builtin, err := loadFixtures("")
	require.NoError(t, err)
	assert.NotEmpty(t, builtin.Entities)

	path := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities: [{id: only}]\n"), 0o644))
	f, err := loadFixtures(path)
	require.NoError(t, err)
	require.Len(t, f.Entities, 1)
	assert.Equal(t, "only", f.Entities[0].ID)

	_, err = loadFixtures(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRun_RejectsBadLogLevel(t *testing.T) {
	err := run(t.Context(), &options{logLevel: "loud"}, nil)
	assert.Error(t, err)
}
