// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package browser composes the documentation browser's client state: the
// query cache, live update channel, mutation dispatcher, notification
// queue, tour controller, graph engine and local preferences.
//
// # Description
//
// A Browser is the explicit store handed to every surface (terminal UI,
// CLI commands). It registers a fetcher per view key, turns channel
// refreshes into a throttled "Specs updated" notice plus a short highlight,
// presents action results, and decides when onboarding is shown.
//
// # Thread Safety
//
// Browser is safe for concurrent use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/graphview"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/prefs"
	"github.com/AleutianAI/specsync/services/browser/querycache"
	"github.com/AleutianAI/specsync/services/browser/tour"
)

// RefreshNotice is shown when the live channel reports new content.
const RefreshNotice = "Specs updated"

// HighlightRefresh is always highlighted after a channel refresh.
const HighlightRefresh = "refresh"

// Remote is the service contract the browser reads and mutates through.
// *remote.Client implements it.
type Remote interface {
	mutation.Remote
	ListEntities(ctx context.Context, f datatypes.EntityFilter) (*datatypes.EntityListResponse, error)
	GetEntity(ctx context.Context, id string) (*datatypes.EntityDetail, error)
	Statistics(ctx context.Context) (*datatypes.StatisticsResponse, error)
	Search(ctx context.Context, query string, limit int) (*datatypes.SearchResponse, error)
	Pinned(ctx context.Context) (*datatypes.PinnedListResponse, error)
	Coverage(ctx context.Context) (*datatypes.CoverageReport, error)
	Sessions(ctx context.Context, limit int, includeArchived bool) (*datatypes.SessionList, error)
	Powers(ctx context.Context) (*datatypes.PowerList, error)
	Health(ctx context.Context) (*datatypes.HealthScore, error)
	Graph(ctx context.Context) (*datatypes.ImpactGraph, error)
}

// Browser is the composed client state.
type Browser struct {
	cfg     Config
	remote  Remote
	prefs   prefs.Store
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics *observability.Metrics
	dialer  *websocket.Dialer

	cache      *querycache.Manager
	channel    *livechannel.Channel
	dispatcher *mutation.Dispatcher
	notes      *notify.Queue
	tour       *tour.Controller
	graph      *graphview.Engine

	refreshLimiter *rate.Limiter
	errorLimiter   *rate.Limiter

	mu               sync.Mutex
	highlights       map[string]struct{}
	highlightTimer   clockwork.Timer
	highlightSeq     uint64
	result           *mutation.Outcome
	onboardingHidden bool
	closed           bool
}

// New composes a browser over remote.
//
// # Inputs
//
//   - remote: The service client. Required.
//   - opts: Configuration, preference store, logger, clock, metrics.
//
// # Outputs
//
//   - *Browser: Ready to use. Call Run to start the live channel and Close
//     when done.
//   - error: Non-nil if remote is nil or the channel config is invalid.
func New(remote Remote, opts ...Option) (*Browser, error) {
	if remote == nil {
		return nil, errors.New("browser: remote is required")
	}

	b := &Browser{
		cfg:        DefaultConfig(),
		remote:     remote,
		logger:     slog.Default(),
		clock:      clockwork.NewRealClock(),
		highlights: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cfg = b.cfg.withDefaults()
	if b.prefs == nil {
		b.prefs = prefs.NewMemoryStore()
	}
	if b.metrics == nil {
		b.metrics = observability.Default()
	}

	b.cache = querycache.NewManager(
		querycache.WithMaxEntries(b.cfg.CacheMaxEntries),
		querycache.WithLogger(b.logger),
		querycache.WithClock(b.clock.Now),
	)
	b.notes = notify.New(
		notify.WithClock(b.clock),
		notify.WithDuration(b.cfg.NotificationDuration),
		notify.WithLogger(b.logger),
	)
	b.notes.OnChange(func(n notify.Notification, visible bool) {
		if visible {
			b.metrics.RecordNotification(n.Severity.String())
		}
	})
	b.tour = tour.NewDefault()
	b.graph = graphview.NewEngine(b.cfg.Graph)
	b.dispatcher = mutation.New(remote, b.cache,
		mutation.WithNotifier(b.notes),
		mutation.WithPresenter(b.present),
		mutation.WithLogger(b.logger),
		mutation.WithMetrics(b.metrics),
	)

	chOpts := []livechannel.Option{
		livechannel.WithLogger(b.logger),
		livechannel.WithClock(b.clock),
		livechannel.WithMetrics(b.metrics),
	}
	if b.dialer != nil {
		chOpts = append(chOpts, livechannel.WithDialer(b.dialer))
	}
	ch, err := livechannel.New(b.cfg.LiveChannel, b.cache, chOpts...)
	if err != nil {
		return nil, fmt.Errorf("live channel: %w", err)
	}
	b.channel = ch
	b.channel.OnRefresh(b.onRefresh)

	b.refreshLimiter = rate.NewLimiter(rate.Every(b.cfg.RefreshNoticeInterval), 1)
	b.errorLimiter = rate.NewLimiter(rate.Every(b.cfg.ErrorNoticeInterval), 1)
	b.logger = b.logger.With("component", "browser")
	return b, nil
}

// Cache returns the query cache.
func (b *Browser) Cache() *querycache.Manager { return b.cache }

// Channel returns the live channel.
func (b *Browser) Channel() *livechannel.Channel { return b.channel }

// Dispatcher returns the mutation dispatcher.
func (b *Browser) Dispatcher() *mutation.Dispatcher { return b.dispatcher }

// Notifications returns the notification queue.
func (b *Browser) Notifications() *notify.Queue { return b.notes }

// Tour returns the tour controller.
func (b *Browser) Tour() *tour.Controller { return b.tour }

// Graph returns the graph engine.
func (b *Browser) Graph() *graphview.Engine { return b.graph }

// Prefs returns the preference store.
func (b *Browser) Prefs() prefs.Store { return b.prefs }

// Run starts the live channel and blocks until ctx ends.
//
// # Description
//
// The channel runs only when it is enabled in configuration and the auto
// refresh preference is on. Without it Run still blocks until ctx ends so
// callers can treat both modes alike.
func (b *Browser) Run(ctx context.Context) error {
	autoRefresh, err := b.prefs.Get(ctx, prefs.AutoRefresh)
	if err != nil {
		b.logger.Warn("reading auto refresh preference", "error", err)
		autoRefresh = prefs.AutoRefresh.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	if autoRefresh && b.channel.Enabled() {
		g.Go(func() error {
			err := b.channel.Run(gctx)
			if errors.Is(err, livechannel.ErrDisabled) {
				return nil
			}
			return err
		})
	} else {
		b.logger.Info("live channel off, views refresh on demand only",
			"auto_refresh", autoRefresh, "enabled", b.channel.Enabled())
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// Close releases the cache and the preference store.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.highlightTimer != nil {
		b.highlightTimer.Stop()
	}
	b.mu.Unlock()

	b.cache.Close()
	b.notes.Dismiss()
	return b.prefs.Close()
}

// =============================================================================
// Invalidation
// =============================================================================

// Refresh invalidates keys on user request. Returns entries invalidated.
func (b *Browser) Refresh(keys ...querycache.Key) int {
	n := b.cache.Invalidate(keys...)
	b.metrics.RecordInvalidation(observability.SourceManual, n)
	return n
}

// RefreshAll invalidates every cached view.
func (b *Browser) RefreshAll() int {
	n := b.cache.InvalidateAll()
	b.metrics.RecordInvalidation(observability.SourceManual, n)
	return n
}

// Dispatch starts an action. See mutation.Dispatcher.Dispatch.
func (b *Browser) Dispatch(ctx context.Context, kind mutation.Kind) (*mutation.Request, bool) {
	return b.dispatcher.Dispatch(ctx, kind)
}

// onRefresh runs on the channel's drain goroutine after invalidation.
func (b *Browser) onRefresh(ev livechannel.Event) {
	names := []string{HighlightRefresh}
	for _, k := range ev.Keys {
		names = append(names, string(k))
	}
	b.highlight(names...)

	if ev.Type != datatypes.EventRefresh {
		return
	}
	if b.refreshLimiter.AllowN(b.clock.Now(), 1) {
		b.notes.Success(RefreshNotice)
	} else {
		b.metrics.RecordSuppressed()
	}
}

// =============================================================================
// Highlight
// =============================================================================

// highlight replaces the highlight set and re-arms its expiry.
func (b *Browser) highlight(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.highlightTimer != nil {
		b.highlightTimer.Stop()
	}
	b.highlights = make(map[string]struct{}, len(names))
	for _, n := range names {
		b.highlights[n] = struct{}{}
	}
	b.highlightSeq++
	seq := b.highlightSeq
	b.highlightTimer = b.clock.AfterFunc(b.cfg.HighlightDuration, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.highlightSeq == seq {
			b.highlights = make(map[string]struct{})
			b.highlightTimer = nil
		}
	})
}

// Highlighted reports whether name is in the current highlight set.
func (b *Browser) Highlighted(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.highlights[name]
	return ok
}

// Highlights returns the current highlight set, sorted.
func (b *Browser) Highlights() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.highlights))
	for n := range b.highlights {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Action results
// =============================================================================

func (b *Browser) present(o mutation.Outcome) {
	b.mu.Lock()
	b.result = &o
	b.mu.Unlock()
}

// Result returns the last presented action outcome.
func (b *Browser) Result() (mutation.Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		return mutation.Outcome{}, false
	}
	return *b.result, true
}

// ClearResult closes the result presentation.
func (b *Browser) ClearResult() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = nil
}
