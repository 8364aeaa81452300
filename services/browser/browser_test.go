// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/prefs"
	"github.com/AleutianAI/specsync/services/browser/querycache"
	"github.com/AleutianAI/specsync/services/browser/remote"
)

// ============================================================================
// Fake remote
// ============================================================================

type fakeRemote struct {
	mu       sync.Mutex
	calls    map[string]int
	holds    map[string]chan struct{}
	failWith map[string]error
	total    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		calls:    make(map[string]int),
		holds:    make(map[string]chan struct{}),
		failWith: make(map[string]error),
	}
}

// enter counts a call, waits on any hold for name and returns the call
// number or the configured failure.
func (f *fakeRemote) enter(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	f.calls[name]++
	n := f.calls[name]
	hold := f.holds[name]
	err := f.failWith[name]
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return n, err
}

func (f *fakeRemote) hold(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds[name] = ch
	return ch
}

func (f *fakeRemote) release(name string) {
	f.mu.Lock()
	ch := f.holds[name]
	delete(f.holds, name)
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (f *fakeRemote) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith[name] = err
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setTotal(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = n
}

func (f *fakeRemote) ListEntities(ctx context.Context, flt datatypes.EntityFilter) (*datatypes.EntityListResponse, error) {
	n, err := f.enter(ctx, "entities")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	total := f.total
	f.mu.Unlock()
	if total < 0 {
		total = n
	}
	return &datatypes.EntityListResponse{Total: total, ActiveCount: n}, nil
}

func (f *fakeRemote) GetEntity(ctx context.Context, id string) (*datatypes.EntityDetail, error) {
	if _, err := f.enter(ctx, "entity"); err != nil {
		return nil, err
	}
	return &datatypes.EntityDetail{ID: id}, nil
}

func (f *fakeRemote) Statistics(ctx context.Context) (*datatypes.StatisticsResponse, error) {
	n, err := f.enter(ctx, "statistics")
	if err != nil {
		return nil, err
	}
	return &datatypes.StatisticsResponse{TotalEntities: n}, nil
}

func (f *fakeRemote) Search(ctx context.Context, query string, limit int) (*datatypes.SearchResponse, error) {
	if _, err := f.enter(ctx, "search"); err != nil {
		return nil, err
	}
	return &datatypes.SearchResponse{Query: query, Results: make([]datatypes.SearchResult, 0, limit)}, nil
}

func (f *fakeRemote) Pinned(ctx context.Context) (*datatypes.PinnedListResponse, error) {
	n, err := f.enter(ctx, "pinned")
	if err != nil {
		return nil, err
	}
	return &datatypes.PinnedListResponse{Total: n}, nil
}

func (f *fakeRemote) Coverage(ctx context.Context) (*datatypes.CoverageReport, error) {
	if _, err := f.enter(ctx, "coverage"); err != nil {
		return nil, err
	}
	return &datatypes.CoverageReport{}, nil
}

func (f *fakeRemote) Sessions(ctx context.Context, limit int, _ bool) (*datatypes.SessionList, error) {
	if _, err := f.enter(ctx, "sessions"); err != nil {
		return nil, err
	}
	return &datatypes.SessionList{Total: limit}, nil
}

func (f *fakeRemote) Powers(ctx context.Context) (*datatypes.PowerList, error) {
	if _, err := f.enter(ctx, "powers"); err != nil {
		return nil, err
	}
	return &datatypes.PowerList{}, nil
}

func (f *fakeRemote) Health(ctx context.Context) (*datatypes.HealthScore, error) {
	if _, err := f.enter(ctx, "health"); err != nil {
		return nil, err
	}
	return &datatypes.HealthScore{}, nil
}

func (f *fakeRemote) Graph(ctx context.Context) (*datatypes.ImpactGraph, error) {
	if _, err := f.enter(ctx, "graph"); err != nil {
		return nil, err
	}
	return &datatypes.ImpactGraph{
		Nodes: []datatypes.GraphNode{{ID: "a", Type: "spec"}, {ID: "b", Type: "code"}},
		Edges: []datatypes.GraphEdge{{Source: "a", Target: "b"}},
	}, nil
}

func (f *fakeRemote) RunAction(ctx context.Context, action string) (*datatypes.ActionResult, error) {
	if _, err := f.enter(ctx, "action:"+action); err != nil {
		return nil, err
	}
	return &datatypes.ActionResult{Success: true, Action: action, Message: action + " done"}, nil
}

func (f *fakeRemote) Export(ctx context.Context) (*datatypes.ExportResponse, error) {
	if _, err := f.enter(ctx, "export"); err != nil {
		return nil, err
	}
	return &datatypes.ExportResponse{Success: true, OutputPath: "/tmp/specs.md", Message: "Exported 3 specs"}, nil
}

// ============================================================================
// Helpers
// ============================================================================

type harness struct {
	b       *Browser
	remote  *fakeRemote
	clock   clockwork.FakeClock
	metrics *observability.Metrics
	prefs   *prefs.MemoryStore
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		remote:  newFakeRemote(),
		clock:   clockwork.NewFakeClock(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		prefs:   prefs.NewMemoryStore(),
	}
	h.remote.setTotal(-1)
	b, err := New(h.remote,
		WithConfig(cfg),
		WithClock(h.clock),
		WithMetrics(h.metrics),
		WithPrefs(h.prefs),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	h.b = b
	return h
}

func awaitSnapshot(t *testing.T, sub *querycache.Subscription, pred func(querycache.Snapshot) bool) querycache.Snapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed")
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("no matching snapshot for %s", sub.Key())
		}
	}
}

func fresh(s querycache.Snapshot) bool { return s.State == querycache.StateFresh }

func current(q *notify.Queue) string {
	n, ok := q.Current()
	if !ok {
		return ""
	}
	return n.Message
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newPushServer upgrades one connection, reads the hello and writes every
// message sent on push.
func newPushServer(t *testing.T) (string, chan<- string) {
	t.Helper()
	push := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello datatypes.Hello
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case <-gone:
				return
			case msg := <-push:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), push
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_RequiresRemote(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_InvalidChannelConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LiveChannel.Enabled = true
	_, err := New(newFakeRemote(), WithConfig(cfg), WithMetrics(observability.NewMetrics(prometheus.NewRegistry())))
	assert.ErrorIs(t, err, livechannel.ErrNoURL)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.HighlightDuration)
	assert.Equal(t, notify.DefaultDuration, cfg.NotificationDuration)
	assert.Equal(t, querycache.DefaultMaxEntries, cfg.CacheMaxEntries)
	assert.Equal(t, 20, cfg.SessionsLimit)
	assert.False(t, DefaultConfig().LiveChannel.Enabled)
}

// ============================================================================
// Fetchers
// ============================================================================

func TestFetcherFor_Keys(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		key  querycache.Key
		call string
	}{
		{datatypes.KeyEntities, "entities"},
		{datatypes.EntitiesKey(datatypes.EntityFilter{Status: "active", Type: "design"}), "entities"},
		{datatypes.EntityKey("req-1"), "entity"},
		{datatypes.SearchKey("auth flow", 5), "search"},
		{datatypes.KeyStatistics, "statistics"},
		{datatypes.KeyHealth, "health"},
		{datatypes.KeyGraph, "graph"},
		{datatypes.KeyCoverage, "coverage"},
		{datatypes.KeySessions, "sessions"},
		{datatypes.KeyPowers, "powers"},
		{datatypes.KeyPinned, "pinned"},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			fetch, err := h.b.FetcherFor(tt.key)
			require.NoError(t, err)
			before := h.remote.count(tt.call)
			_, err = fetch(ctx)
			require.NoError(t, err)
			assert.Equal(t, before+1, h.remote.count(tt.call))
		})
	}
}

func TestFetcherFor_Parameters(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	fetch, err := h.b.FetcherFor(datatypes.SearchKey("a:b", 7))
	require.NoError(t, err)
	v, err := fetch(ctx)
	require.NoError(t, err)
	res := v.(*datatypes.SearchResponse)
	assert.Equal(t, "a:b", res.Query)
	assert.Equal(t, 7, cap(res.Results))

	fetch, err = h.b.FetcherFor(datatypes.EntityKey("ns:id"))
	require.NoError(t, err)
	v, err = fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ns:id", v.(*datatypes.EntityDetail).ID)
}

func TestFetcherFor_Unknown(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	for _, key := range []querycache.Key{"nope", "entity", "search:x:q", "entities:color=red", "entities:status=bogus"} {
		_, err := h.b.FetcherFor(key)
		assert.ErrorIs(t, err, ErrUnknownView, string(key))
	}
}

func TestParseEntitiesKey_RoundTrip(t *testing.T) {
	f := datatypes.EntityFilter{Status: "legacy", Type: "task"}
	key := datatypes.EntitiesKey(f)
	_, rest, _ := strings.Cut(string(key), ":")
	got, err := parseEntitiesKey(rest)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

// ============================================================================
// Live refresh
// ============================================================================

func TestRefresh_EntitiesAndStatsRefetchedKeepingValues(t *testing.T) {
	url, push := newPushServer(t)
	cfg := DefaultConfig()
	cfg.LiveChannel = livechannel.Config{
		Enabled:        true,
		URL:            url,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	_, entities, err := h.b.Subscribe(datatypes.KeyEntities)
	require.NoError(t, err)
	defer entities.Close()
	_, stats, err := h.b.Subscribe(datatypes.KeyStatistics)
	require.NoError(t, err)
	defer stats.Close()

	awaitSnapshot(t, entities, fresh)
	awaitSnapshot(t, stats, fresh)
	require.Eventually(t, func() bool {
		return h.b.Channel().Status().State == livechannel.StateOpen
	}, 5*time.Second, 5*time.Millisecond)

	h.remote.hold("entities")
	h.remote.hold("statistics")
	push <- `{"type":"refresh","resources":["entities","statistics"]}`

	stale := awaitSnapshot(t, entities, func(s querycache.Snapshot) bool { return s.Stale })
	assert.True(t, stale.HasValue, "last value stays visible")
	assert.Equal(t, 1, stale.Value.(*datatypes.EntityListResponse).ActiveCount)
	staleStats := awaitSnapshot(t, stats, func(s querycache.Snapshot) bool { return s.Stale })
	assert.Equal(t, 1, staleStats.Value.(*datatypes.StatisticsResponse).TotalEntities)

	h.remote.release("entities")
	h.remote.release("statistics")
	got := awaitSnapshot(t, entities, fresh)
	assert.Equal(t, 2, got.Value.(*datatypes.EntityListResponse).ActiveCount)
	gotStats := awaitSnapshot(t, stats, fresh)
	assert.Equal(t, 2, gotStats.Value.(*datatypes.StatisticsResponse).TotalEntities)

	assert.Equal(t, 2, h.remote.count("entities"))
	assert.Equal(t, 2, h.remote.count("statistics"))

	require.Eventually(t, func() bool { return current(h.b.Notifications()) == RefreshNotice },
		time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.b.Highlighted(HighlightRefresh) },
		time.Second, 5*time.Millisecond)
	assert.True(t, h.b.Highlighted("entities"))
	assert.True(t, h.b.Highlighted("statistics"))

	h.clock.Advance(cfg.HighlightDuration)
	assert.Eventually(t, func() bool { return len(h.b.Highlights()) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestOnRefresh_NoticeIsThrottled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ev := livechannel.Event{Type: datatypes.EventRefresh, Keys: []querycache.Key{datatypes.KeyEntities}}

	h.b.onRefresh(ev)
	first, ok := h.b.Notifications().Current()
	require.True(t, ok)
	assert.Equal(t, RefreshNotice, first.Message)

	h.b.onRefresh(ev)
	second, _ := h.b.Notifications().Current()
	assert.Equal(t, first.ID, second.ID, "second notice suppressed")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotificationsSuppressedTotal))

	h.clock.Advance(DefaultConfig().RefreshNoticeInterval)
	h.b.onRefresh(ev)
	third, ok := h.b.Notifications().Current()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestOnRefresh_TypedEventHighlightsWithoutNotice(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.b.onRefresh(livechannel.Event{Type: datatypes.EventGraphRebuilt, Keys: []querycache.Key{datatypes.KeyGraph}})

	assert.Equal(t, []string{"graph", HighlightRefresh}, h.b.Highlights())
	_, ok := h.b.Notifications().Current()
	assert.False(t, ok)
}

func TestHighlight_RearmReplacesSet(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.b.highlight("a")
	h.clock.Advance(time.Second)
	h.b.highlight("b")
	assert.False(t, h.b.Highlighted("a"))

	// The first timer would have fired here; the set must survive.
	h.clock.Advance(time.Second)
	assert.True(t, h.b.Highlighted("b"))

	h.clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return !h.b.Highlighted("b") }, time.Second, time.Millisecond)
}

func TestRun_ChannelOffWithoutAutoRefresh(t *testing.T) {
	url, _ := newPushServer(t)
	cfg := DefaultConfig()
	cfg.LiveChannel.Enabled = true
	cfg.LiveChannel.URL = url
	h := newHarness(t, cfg)
	require.NoError(t, h.prefs.Set(context.Background(), prefs.AutoRefresh, false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.b.Run(ctx))
	status := h.b.Channel().Status()
	assert.Equal(t, livechannel.StateClosed, status.State)
	assert.Empty(t, status.ClientID, "never connected")
}

// ============================================================================
// Views
// ============================================================================

func TestUnmountBeforeGraphResponse(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.remote.hold("graph")

	_, sub, err := h.b.Subscribe(datatypes.KeyGraph)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.remote.count("graph") == 1 }, time.Second, time.Millisecond)

	sub.Close()
	assert.NotPanics(t, func() { h.remote.release("graph") })

	assert.Eventually(t, func() bool {
		snap, ok := h.b.Cache().Peek(datatypes.KeyGraph)
		return ok && snap.State == querycache.StateFresh
	}, time.Second, time.Millisecond)
	_, open := <-sub.Updates()
	assert.False(t, open)
}

func TestImpactGraph_FeedsEngine(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	g, err := h.b.ImpactGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, h.b.Graph().Scene().Nodes, 2)
	assert.Equal(t, 1, h.b.Graph().LayoutCount())

	h.b.Refresh(datatypes.KeyGraph)
	_, err = h.b.ImpactGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.b.Graph().LayoutCount(), "same node set keeps positions")
}

func TestTypedLoaders_UseCache(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	_, err := h.b.Statistics(ctx)
	require.NoError(t, err)
	_, err = h.b.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.count("statistics"))

	sessions, err := h.b.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, sessions.Total, "configured page size")

	_, err = h.b.Entities(ctx, datatypes.EntityFilter{Status: "bogus"})
	assert.Error(t, err)

	assert.Equal(t, 2, h.b.RefreshAll(), "statistics and sessions are cached")
}

func TestSearchAndEntity_ShareCacheKeys(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	key := h.b.SearchKey("auth", 0)
	assert.Equal(t, datatypes.SearchKey("auth", 20), key)
	assert.Equal(t, datatypes.SearchKey("auth", 5), h.b.SearchKey("auth", 5))

	res, err := h.b.Search(ctx, "auth", 0)
	require.NoError(t, err)
	assert.Equal(t, "auth", res.Query)
	assert.Equal(t, 20, cap(res.Results), "configured default limit")

	_, err = h.b.Search(ctx, "auth", 20)
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.count("search"))

	detail, err := h.b.Entity(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", detail.ID)
	_, ok := h.b.Cache().Peek(datatypes.EntityKey("req-1"))
	assert.True(t, ok)

	assert.Equal(t, 1, h.b.Refresh(datatypes.KeyEntity), "entity details are invalidated with their root")
}

func TestTransportError_NotifiesThrottled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.remote.fail("health", unreachable("/api/health"))
	h.remote.fail("coverage", unreachable("/api/coverage"))

	_, err := h.b.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, current(h.b.Notifications()), "Could not load health")

	_, err = h.b.Coverage(ctx)
	require.Error(t, err)
	assert.Contains(t, current(h.b.Notifications()), "health", "second error suppressed")

	h.clock.Advance(DefaultConfig().ErrorNoticeInterval)
	h.b.Refresh(datatypes.KeyCoverage)
	_, err = h.b.Coverage(ctx)
	require.Error(t, err)
	assert.Contains(t, current(h.b.Notifications()), "Could not load coverage")
}

func TestNonTransportError_NoNotification(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.remote.fail("powers", errors.New("decode failed"))

	_, err := h.b.Powers(context.Background())
	require.Error(t, err)
	_, ok := h.b.Notifications().Current()
	assert.False(t, ok)
}

// ============================================================================
// Actions
// ============================================================================

func TestDispatch_PresentsResult(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	req, started := h.b.Dispatch(ctx, mutation.KindValidate)
	require.True(t, started)
	_, err := req.Wait(ctx)
	require.NoError(t, err)

	res, ok := h.b.Result()
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, "validate done", res.Message)

	h.b.ClearResult()
	_, ok = h.b.Result()
	assert.False(t, ok)
}

func TestDispatch_ExportShowsNotification(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	req, started := h.b.Dispatch(ctx, mutation.KindExport)
	require.True(t, started)
	_, err := req.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, "Exported 3 specs", current(h.b.Notifications()))
	_, ok := h.b.Result()
	assert.False(t, ok, "export is not presented as a result")
}

// ============================================================================
// Onboarding
// ============================================================================

func TestOnboardingVisible(t *testing.T) {
	assert.False(t, OnboardingVisible(nil, false))
	assert.True(t, OnboardingVisible(&datatypes.EntityListResponse{}, false))
	assert.False(t, OnboardingVisible(&datatypes.EntityListResponse{}, true))
	assert.False(t, OnboardingVisible(&datatypes.EntityListResponse{Total: 1}, false))
}

func TestShowOnboarding(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, DefaultConfig())
	h.remote.setTotal(0)
	show, err := h.b.ShowOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, show)

	h2 := newHarness(t, DefaultConfig())
	h2.remote.setTotal(4)
	show, err = h2.b.ShowOnboarding(ctx)
	require.NoError(t, err)
	assert.False(t, show)
}

func TestHandleOnboarding(t *testing.T) {
	ctx := context.Background()

	t.Run("scan", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.remote.setTotal(0)
		req, err := h.b.HandleOnboarding(ctx, OnboardScan)
		require.NoError(t, err)
		require.NotNil(t, req)
		_, err = req.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, h.remote.count("action:scan"))

		show, err := h.b.ShowOnboarding(ctx)
		require.NoError(t, err)
		assert.False(t, show)
	})

	t.Run("tour", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		_, err := h.b.HandleOnboarding(ctx, OnboardTour)
		require.NoError(t, err)
		assert.True(t, h.b.Tour().State().Active)
	})

	t.Run("dismiss persists", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.remote.setTotal(0)
		_, err := h.b.HandleOnboarding(ctx, OnboardDismiss)
		require.NoError(t, err)
		dismissed, err := h.prefs.Get(ctx, prefs.OnboardingDismissed)
		require.NoError(t, err)
		assert.True(t, dismissed)
	})

	t.Run("unknown", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		_, err := h.b.HandleOnboarding(ctx, "later")
		assert.ErrorIs(t, err, ErrUnknownOnboardingAction)
	})
}

func unreachable(path string) error {
	return &remote.TransportError{Method: http.MethodGet, Path: path, Err: errors.New("connection refused")}
}
