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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/specsync/pkg/ux"
	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/querycache"
	"github.com/AleutianAI/specsync/services/devserver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncBuffer is a bytes.Buffer safe to read while a command writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// env is a devserver plus a config file pointing at it.
type env struct {
	server *devserver.Server
	config string
}

func newEnv(t *testing.T, f devserver.Fixtures) *env {
	t.Helper()
	t.Setenv("SPECSYNC_SERVER", "")

	s := devserver.New(f, devserver.WithExportDir(t.TempDir()))
	srv := httptest.NewServer(s.Router(devserver.DefaultBasePath))
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})

	dir := t.TempDir()
	cfg := fmt.Sprintf(`server:
  url: %s
live_channel:
  enabled: false
logging:
  level: error
  dir: ""
telemetry:
  trace_exporter: none
  metric_exporter: none
data_dir: %s
`, srv.URL, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "specsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &env{server: s, config: path}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), &syncBuffer{}, args...)
}

func (e *env) runContext(t *testing.T, ctx context.Context, out *syncBuffer, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// =============================================================================
// Helpers
// =============================================================================

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("%w: validate", errActionFailed)))
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{
		"true": true, "on": true, "YES": true, "1": true,
		"false": false, "off": false, "no": false, "0": false,
	} {
		got, err := parseBool(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseBool("maybe")
	assert.ErrorContains(t, err, "want true or false")
}

func TestWriteOutcome(t *testing.T) {
	var buf bytes.Buffer
	writeOutcome(ux.NewPrinter(&buf, ux.ModePlain), mutation.Outcome{
		Kind:     mutation.KindScan,
		Success:  true,
		Message:  "Scanned 6 specifications",
		Duration: 1234567 * time.Nanosecond,
		Data:     map[string]any{"sources": 4, "entities": 6},
	})
	assert.Equal(t, "scan succeeded in 1ms\nScanned 6 specifications\n  entities: 6\n  sources: 4\n", buf.String())
}

func TestDescribeSnapshot(t *testing.T) {
	fresh := func(v any) querycache.Snapshot {
		return querycache.Snapshot{Key: "k", State: querycache.StateFresh, HasValue: true, Value: v}
	}
	assert.Equal(t, "health: B (82/100)",
		describeSnapshot(fresh(&datatypes.HealthScore{LetterGrade: "B", OverallScore: 82})))
	assert.Equal(t, "coverage: 60.0% (2 uncovered)",
		describeSnapshot(fresh(&datatypes.CoverageReport{TotalCriteria: 5, CoveredCriteria: 3, CoveragePercentage: 60})))
	assert.Equal(t, "k updated", describeSnapshot(fresh("other")))
	assert.Empty(t, describeSnapshot(querycache.Snapshot{Key: "k", State: querycache.StateFetching}))
	assert.Equal(t, "k: boom", describeSnapshot(querycache.Snapshot{Key: "k", State: querycache.StateFailed, Err: errors.New("boom")}))
}

// =============================================================================
// Commands
// =============================================================================

func TestRoot_NonInteractiveShowsHelp(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())
	out, err := e.run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "watch")
}

func TestTUI_RequiresTerminal(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())
	_, err := e.run(t, "tui")
	assert.ErrorIs(t, err, errNoTerminal)
}

func TestPrefs_SetGetList(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "prefs", "set", "dark_mode", "on")
	require.NoError(t, err)
	assert.Equal(t, "dark_mode=true\n", out)

	out, err = e.run(t, "prefs", "get", "dark_mode")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = e.run(t, "prefs")
	require.NoError(t, err)
	assert.Equal(t, "dark_mode=true\nauto_refresh=true\nonboarding_dismissed=false\n", out)

	_, err = e.run(t, "prefs", "get", "font_size")
	assert.Error(t, err)
	_, err = e.run(t, "prefs", "set", "dark_mode", "sometimes")
	assert.Error(t, err)
}

func TestWriteSearch(t *testing.T) {
	var buf bytes.Buffer
	writeSearch(ux.NewPrinter(&buf, ux.ModePlain), "bcrypt", &datatypes.SearchResponse{
		Query: "bcrypt",
		Results: []datatypes.SearchResult{
			{Entity: datatypes.EntitySummary{ID: "decision-bcrypt", Type: "decision", TextPreview: "Passwords are hashed."}, Score: 1},
		},
	})
	assert.Equal(t, "1 results for \"bcrypt\"\n100%  decision-bcrypt (decision)\n      Passwords are hashed.\n", buf.String())
}

func TestWriteEntity(t *testing.T) {
	var buf bytes.Buffer
	writeEntity(ux.NewPrinter(&buf, ux.ModePlain), &datatypes.EntityDetail{
		ID: "req-1", Type: "requirement", Status: "active", Source: "a.md",
		Pinned: true, Tags: []string{"auth", "security"}, Text: "Users sign in.",
	})
	assert.Equal(t, "req-1\n  type: requirement\n  status: active\n  source: a.md\n  pinned: yes\n  tags: auth, security\n\nUsers sign in.\n", buf.String())
}

func TestSearch_RanksMatches(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "search", "password", "reset", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 results for \"password reset\"")
	assert.Contains(t, out, "100%  req-auth-reset (requirement)")
	assert.Contains(t, out, "100%  task-audit-log (task)")
	assert.NotContains(t, out, "decision-bcrypt")
}

func TestSearch_NoMatches(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "search", "kubernetes")
	require.NoError(t, err)
	assert.Contains(t, out, "No specifications match \"kubernetes\".")
}

func TestShow_PrintsEntity(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "show", "req-auth-login")
	require.NoError(t, err)
	assert.Contains(t, out, "req-auth-login\n")
	assert.Contains(t, out, "  source: specs/auth.md")
	assert.Contains(t, out, "  pinned: yes")
	assert.Contains(t, out, "  links: design-session-store")
	assert.Contains(t, out, "Failed attempts are rate limited per account.")
}

func TestShow_UnknownID(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	_, err := e.run(t, "show", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, 1, exitCode(err))
}

func TestAction_Succeeds(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "action", "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "scan succeeded")
	assert.Contains(t, out, "Scanned 6 specifications from 4 files")
	assert.Contains(t, out, "  entities: 6")
}

func TestAction_Export(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "action", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "export succeeded")
	assert.Contains(t, out, "output: ")
}

func TestAction_FailureExitsTwo(t *testing.T) {
	f := devserver.DefaultFixtures()
	f.FailActions = map[string]string{"validate": "2 specs have no source"}
	e := newEnv(t, f)

	out, err := e.run(t, "action", "validate")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out, "validate failed")
	assert.Contains(t, out, "2 specs have no source")
}

func TestAction_UnknownKind(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())
	_, err := e.run(t, "action", "deploy")
	assert.ErrorIs(t, err, mutation.ErrUnknownKind)
	assert.Equal(t, 1, exitCode(err))
}

func TestGraph_WritesSVG(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	out, err := e.run(t, "graph", "--focus", "spec-login")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, `data-id="spec-login"`)
	assert.Contains(t, out, ">Sign in</text>", "focused node shows its label")

	path := filepath.Join(t.TempDir(), "graph.svg")
	_, err = e.run(t, "graph", "--type", "code", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `data-type="code"`)
	assert.NotContains(t, string(data), `data-type="specification"`)
}

func TestGraph_SeedChangesLayout(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	a, err := e.run(t, "graph", "--seed", "1")
	require.NoError(t, err)
	again, err := e.run(t, "graph", "--seed", "1")
	require.NoError(t, err)
	b, err := e.run(t, "graph", "--seed", "2")
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
}

func TestGraph_RejectsUnfilterableType(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())
	_, err := e.run(t, "graph", "--type", "feature")
	assert.Error(t, err)
}

func TestOnboard_NothingToDoWhenEntitiesExist(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())
	out, err := e.run(t, "onboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to set up")
}

func TestOnboard_NeedsTerminal(t *testing.T) {
	e := newEnv(t, devserver.Fixtures{})
	_, err := e.run(t, "onboard")
	assert.ErrorContains(t, err, "needs a terminal")
}

func TestWatch_PrintsViewsUntilCancelled(t *testing.T) {
	e := newEnv(t, devserver.DefaultFixtures())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		_, err := e.runContext(t, ctx, out, "watch")
		done <- err
	}()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "specs: 6 total, 5 active, 1 legacy, 2 pinned") &&
			strings.Contains(s, "health: B (82/100)") &&
			strings.Contains(s, "coverage: 60.0% (2 uncovered)")
	}, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "live updates are off")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}
