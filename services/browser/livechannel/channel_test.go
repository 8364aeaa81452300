// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package livechannel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// ============================================================================
// Helpers
// ============================================================================

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]querycache.Key
}

func (r *recordingInvalidator) Invalidate(keys ...querycache.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]querycache.Key(nil), keys...))
	return len(keys)
}

func (r *recordingInvalidator) Calls() [][]querycache.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]querycache.Key(nil), r.calls...)
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newWSServer serves handler on every upgraded connection.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readHello runs on the server goroutine, so it reports nothing itself.
func readHello(conn *websocket.Conn) datatypes.Hello {
	var hello datatypes.Hello
	_ = conn.ReadJSON(&hello)
	return hello
}

// holdOpen reads until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig(url string) Config {
	return Config{
		Enabled:        true,
		URL:            url,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		OfflineAfter:   2,
	}
}

func newTestChannel(t *testing.T, cfg Config, inv Invalidator) (*Channel, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics(prometheus.NewRegistry())
	ch, err := New(cfg, inv, WithMetrics(m))
	require.NoError(t, err)
	return ch, m
}

// start runs ch in the background. The returned stop cancels and waits.
func start(t *testing.T, ch *Channel) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("Run did not return after cancel")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Enabled: true, URL: "ws://x"}, nil)
	assert.ErrorIs(t, err, ErrNilInvalidator)

	_, err = New(Config{Enabled: true}, &recordingInvalidator{})
	assert.ErrorIs(t, err, ErrNoURL)

	ch, err := New(Config{Enabled: false}, &recordingInvalidator{})
	require.NoError(t, err)
	assert.False(t, ch.Enabled())
	assert.Equal(t, StateClosed, ch.Status().State)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{MaxBackoff: time.Millisecond, InitialBackoff: time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.MaxBackoff, "max is never below initial")
	assert.Equal(t, 3, cfg.OfflineAfter)
	assert.Equal(t, 64, cfg.QueueSize)
}

func TestRun_Disabled(t *testing.T) {
	ch, _ := newTestChannel(t, Config{Enabled: false}, &recordingInvalidator{})
	err := ch.Run(context.Background())
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN(9)", State(9).String())
}

// ============================================================================
// Handshake and routing
// ============================================================================

func TestRun_HelloThenEventsInvalidateInOrder(t *testing.T) {
	helloCh := make(chan datatypes.Hello, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		helloCh <- readHello(conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(datatypes.LiveEvent{Type: "refresh"})
		_ = conn.WriteJSON(datatypes.LiveEvent{Type: "mystery"})
		_ = conn.WriteJSON(datatypes.LiveEvent{Type: "graph_rebuilt", Reason: "scan"})
		holdOpen(conn)
	})

	inv := &recordingInvalidator{}
	ch, m := newTestChannel(t, testConfig(url), inv)

	var mu sync.Mutex
	var events []Event
	ch.OnRefresh(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	start(t, ch)

	var hello datatypes.Hello
	select {
	case hello = <-helloCh:
	case <-time.After(5 * time.Second):
		t.Fatal("no hello received")
	}
	assert.Equal(t, "hello", hello.Type)
	_, err := uuid.Parse(hello.ClientID)
	assert.NoError(t, err)

	require.Eventually(t, func() bool { return len(inv.Calls()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []querycache.Key{"entities", "statistics", "health"}, inv.Calls()[0])
	assert.Equal(t, []querycache.Key{"graph"}, inv.Calls()[1])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "refresh", events[0].Type)
	assert.Equal(t, 3, events[0].Invalidated)
	assert.Equal(t, "scan", events[1].Reason)
	mu.Unlock()

	st := ch.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, hello.ClientID, st.ClientID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("mystery", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelOpen))
}

func TestRun_RemovedListenerNotCalled(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		readHello(conn)
		_ = conn.WriteJSON(datatypes.LiveEvent{Type: "refresh"})
		holdOpen(conn)
	})

	inv := &recordingInvalidator{}
	ch, _ := newTestChannel(t, testConfig(url), inv)

	var calls atomic.Int32
	remove := ch.OnRefresh(func(Event) { calls.Add(1) })
	remove()

	start(t, ch)
	require.Eventually(t, func() bool { return len(inv.Calls()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRun_SecondRunRejected(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		readHello(conn)
		holdOpen(conn)
	})
	ch, _ := newTestChannel(t, testConfig(url), &recordingInvalidator{})
	start(t, ch)

	require.Eventually(t, func() bool { return ch.Status().State == StateOpen }, 5*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, ch.Run(context.Background()), ErrRunning)
}

// ============================================================================
// Reconnect and offline indicator
// ============================================================================

func TestRun_ReconnectsAfterServerClose(t *testing.T) {
	var conns atomic.Int32
	url := newWSServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		readHello(conn)
		if n == 1 {
			return
		}
		_ = conn.WriteJSON(datatypes.LiveEvent{Type: "sessions_updated"})
		holdOpen(conn)
	})

	inv := &recordingInvalidator{}
	ch, _ := newTestChannel(t, testConfig(url), inv)
	start(t, ch)

	require.Eventually(t, func() bool { return len(inv.Calls()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []querycache.Key{"sessions"}, inv.Calls()[0])
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.False(t, ch.Status().Offline)
}

func TestRun_OfflineAfterConsecutiveFailuresThenRecovers(t *testing.T) {
	var accept atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !accept.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		holdOpen(conn)
	}))
	t.Cleanup(srv.Close)

	ch, m := newTestChannel(t, testConfig("ws"+strings.TrimPrefix(srv.URL, "http")), &recordingInvalidator{})

	var mu sync.Mutex
	var offlineFlips []bool
	last := false
	ch.OnStatus(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if s.Offline != last {
			offlineFlips = append(offlineFlips, s.Offline)
			last = s.Offline
		}
	})

	start(t, ch)

	require.Eventually(t, func() bool { return ch.Status().Offline }, 5*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, ch.Status().Failures, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelOffline))

	accept.Store(true)
	require.Eventually(t, func() bool {
		s := ch.Status()
		return s.State == StateOpen && !s.Offline
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, ch.Status().Failures)

	mu.Lock()
	assert.Equal(t, []bool{true, false}, offlineFlips)
	mu.Unlock()
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ConnectAttemptsTotal.WithLabelValues("failure")), 2.0)
}

func TestRun_StopsOnCancelWhileOpen(t *testing.T) {
	closed := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		readHello(conn)
		holdOpen(conn)
		close(closed)
	})

	ch, _ := newTestChannel(t, testConfig(url), &recordingInvalidator{})
	stop := start(t, ch)
	require.Eventually(t, func() bool { return ch.Status().State == StateOpen }, 5*time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, StateClosed, ch.Status().State)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the close")
	}
}

func TestRun_StopsOnCancelWhileBackingOff(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	ch, _ := newTestChannel(t, cfg, &recordingInvalidator{})

	stop := start(t, ch)
	require.Eventually(t, func() bool { return ch.Status().Failures == 1 }, 5*time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, StateClosed, ch.Status().State)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	ch, _ := newTestChannel(t, Config{}, &recordingInvalidator{})

	_, ok := ch.decode([]byte(`{`))
	assert.False(t, ok)

	raw, _ := json.Marshal(datatypes.LiveEvent{Type: "pinned_changed"})
	ev, ok := ch.decode(raw)
	require.True(t, ok)
	assert.Equal(t, []querycache.Key{"pinned", "entities"}, ev.Keys)
}

func TestReconnectBackOff_NeverExceedsMax(t *testing.T) {
	bo := newReconnectBackOff(time.Second, 2*time.Second)

	var largest time.Duration
	for i := 0; i < 500; i++ {
		wait := bo.NextBackOff()
		assert.Positive(t, wait)
		assert.LessOrEqual(t, wait, 2*time.Second)
		largest = max(largest, wait)
	}
	assert.Equal(t, 2*time.Second, largest, "randomized waits above the cap are clamped to it")

	bo.Reset()
	assert.LessOrEqual(t, bo.NextBackOff(), 1500*time.Millisecond)
}
