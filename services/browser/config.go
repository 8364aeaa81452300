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
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AleutianAI/specsync/services/browser/graphview"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/prefs"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// Config configures a Browser.
type Config struct {
	// LiveChannel configures the websocket. Enabled=false leaves the cache
	// on manual and mutation invalidation only.
	LiveChannel livechannel.Config

	// CacheMaxEntries bounds the query cache.
	CacheMaxEntries int

	// Graph configures the layout engine.
	Graph graphview.Options

	// NotificationDuration is how long a notification stays up.
	NotificationDuration time.Duration

	// HighlightDuration is how long refreshed views stay highlighted.
	HighlightDuration time.Duration

	// RefreshNoticeInterval is the minimum gap between "Specs updated"
	// notifications. Events arriving faster still invalidate.
	RefreshNoticeInterval time.Duration

	// ErrorNoticeInterval is the minimum gap between transport error
	// notifications.
	ErrorNoticeInterval time.Duration

	// SessionsLimit is the page size of the sessions view.
	SessionsLimit int

	// SearchLimit is the default result count for search.
	SearchLimit int
}

// DefaultConfig returns the browser defaults with the live channel off.
func DefaultConfig() Config {
	lc := livechannel.DefaultConfig()
	lc.Enabled = false
	return Config{
		LiveChannel:           lc,
		CacheMaxEntries:       querycache.DefaultMaxEntries,
		Graph:                 graphview.DefaultOptions(),
		NotificationDuration:  notify.DefaultDuration,
		HighlightDuration:     2 * time.Second,
		RefreshNoticeInterval: 3 * time.Second,
		ErrorNoticeInterval:   5 * time.Second,
		SessionsLimit:         20,
		SearchLimit:           20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
	if c.Graph.Width <= 0 || c.Graph.Height <= 0 {
		c.Graph = d.Graph
	}
	if c.NotificationDuration <= 0 {
		c.NotificationDuration = d.NotificationDuration
	}
	if c.HighlightDuration <= 0 {
		c.HighlightDuration = d.HighlightDuration
	}
	if c.RefreshNoticeInterval <= 0 {
		c.RefreshNoticeInterval = d.RefreshNoticeInterval
	}
	if c.ErrorNoticeInterval <= 0 {
		c.ErrorNoticeInterval = d.ErrorNoticeInterval
	}
	if c.SessionsLimit <= 0 {
		c.SessionsLimit = d.SessionsLimit
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	return c
}

// Option is a functional option for configuring a Browser.
type Option func(*Browser)

// WithConfig sets the configuration.
func WithConfig(cfg Config) Option {
	return func(b *Browser) {
		b.cfg = cfg
	}
}

// WithPrefs sets the preference store. Default: an in-memory store.
func WithPrefs(s prefs.Store) Option {
	return func(b *Browser) {
		if s != nil {
			b.prefs = s
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock sets the clock for notifications, highlights and throttling.
func WithClock(c clockwork.Clock) Option {
	return func(b *Browser) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithMetrics sets the metrics sink. Default: observability.Default().
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Browser) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithDialer sets the live channel's websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(b *Browser) {
		b.dialer = d
	}
}
