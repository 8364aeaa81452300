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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/graphview"
	"github.com/AleutianAI/specsync/services/browser/querycache"
	"github.com/AleutianAI/specsync/services/browser/remote"
)

// ErrUnknownView is returned when a key names no view.
var ErrUnknownView = errors.New("browser: unknown view key")

// =============================================================================
// Fetchers
// =============================================================================

// FetcherFor returns the fetcher that loads key.
//
// # Description
//
// The key root selects the endpoint; the remainder carries parameters in
// the form produced by datatypes.EntitiesKey, EntityKey and SearchKey.
//
// # Outputs
//
//   - querycache.Fetcher: Loads the view. Transport failures additionally
//     raise a throttled error notification.
//   - error: ErrUnknownView for an unrecognized key.
func (b *Browser) FetcherFor(key querycache.Key) (querycache.Fetcher, error) {
	root, rest, _ := strings.Cut(string(key), ":")
	var fetch querycache.Fetcher

	switch querycache.Key(root) {
	case datatypes.KeyEntities:
		f, err := parseEntitiesKey(rest)
		if err != nil {
			return nil, err
		}
		fetch = func(ctx context.Context) (any, error) { return b.remote.ListEntities(ctx, f) }
	case datatypes.KeyEntity:
		if rest == "" {
			return nil, fmt.Errorf("%w: %q has no id", ErrUnknownView, key)
		}
		fetch = func(ctx context.Context) (any, error) { return b.remote.GetEntity(ctx, rest) }
	case datatypes.KeySearch:
		limitStr, query, ok := strings.Cut(rest, ":")
		limit, err := strconv.Atoi(limitStr)
		if !ok || err != nil || limit <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownView, key)
		}
		fetch = func(ctx context.Context) (any, error) { return b.remote.Search(ctx, query, limit) }
	case datatypes.KeyStatistics:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Statistics(ctx) }
	case datatypes.KeyHealth:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Health(ctx) }
	case datatypes.KeyGraph:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Graph(ctx) }
	case datatypes.KeyCoverage:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Coverage(ctx) }
	case datatypes.KeySessions:
		limit := b.cfg.SessionsLimit
		fetch = func(ctx context.Context) (any, error) { return b.remote.Sessions(ctx, limit, false) }
	case datatypes.KeyPowers:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Powers(ctx) }
	case datatypes.KeyPinned:
		fetch = func(ctx context.Context) (any, error) { return b.remote.Pinned(ctx) }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, key)
	}
	return b.reporting(key, fetch), nil
}

// parseEntitiesKey reverses datatypes.EntitiesKey.
func parseEntitiesKey(rest string) (datatypes.EntityFilter, error) {
	var f datatypes.EntityFilter
	if rest == "" {
		return f, nil
	}
	for _, part := range strings.Split(rest, ":") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return f, fmt.Errorf("%w: entities parameter %q", ErrUnknownView, part)
		}
		switch name {
		case "status":
			f.Status = value
		case "type":
			f.Type = value
		default:
			return f, fmt.Errorf("%w: entities parameter %q", ErrUnknownView, part)
		}
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("%w: %v", ErrUnknownView, err)
	}
	return f, nil
}

// reporting wraps fetch so transport failures reach the user.
func (b *Browser) reporting(key querycache.Key, fetch querycache.Fetcher) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil && remote.IsTransportError(err) && ctx.Err() == nil {
			b.reportError(fmt.Sprintf("Could not load %s: %v", key, err))
		}
		return v, err
	}
}

// reportError shows msg unless another error was shown recently.
func (b *Browser) reportError(msg string) {
	if b.errorLimiter.AllowN(b.clock.Now(), 1) {
		b.notes.Error(msg)
		return
	}
	b.metrics.RecordSuppressed()
	b.logger.Debug("error notification suppressed", "message", msg)
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe observes key with its registered fetcher.
//
// # Outputs
//
//   - querycache.Snapshot: The current state, possibly loading.
//   - *querycache.Subscription: Close it on unmount.
//   - error: ErrUnknownView, or a cache error after Close.
func (b *Browser) Subscribe(key querycache.Key) (querycache.Snapshot, *querycache.Subscription, error) {
	fetch, err := b.FetcherFor(key)
	if err != nil {
		return querycache.Snapshot{}, nil, err
	}
	return b.cache.Subscribe(key, fetch)
}

// =============================================================================
// Typed loaders
// =============================================================================

func load[T any](ctx context.Context, b *Browser, key querycache.Key) (*T, error) {
	fetch, err := b.FetcherFor(key)
	if err != nil {
		return nil, err
	}
	v, err := b.cache.Load(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	out, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("browser: %s holds %T", key, v)
	}
	return out, nil
}

// Entities loads the entity list for f.
func (b *Browser) Entities(ctx context.Context, f datatypes.EntityFilter) (*datatypes.EntityListResponse, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return load[datatypes.EntityListResponse](ctx, b, datatypes.EntitiesKey(f))
}

// Entity loads one entity.
func (b *Browser) Entity(ctx context.Context, id string) (*datatypes.EntityDetail, error) {
	return load[datatypes.EntityDetail](ctx, b, datatypes.EntityKey(id))
}

// Statistics loads the statistics view.
func (b *Browser) Statistics(ctx context.Context) (*datatypes.StatisticsResponse, error) {
	return load[datatypes.StatisticsResponse](ctx, b, datatypes.KeyStatistics)
}

// Search runs a search. limit <= 0 uses the configured default.
func (b *Browser) Search(ctx context.Context, query string, limit int) (*datatypes.SearchResponse, error) {
	return load[datatypes.SearchResponse](ctx, b, b.SearchKey(query, limit))
}

// SearchKey names the search view for query. limit <= 0 uses the
// configured default.
func (b *Browser) SearchKey(query string, limit int) querycache.Key {
	if limit <= 0 {
		limit = b.cfg.SearchLimit
	}
	return datatypes.SearchKey(query, limit)
}

// Health loads the health score.
func (b *Browser) Health(ctx context.Context) (*datatypes.HealthScore, error) {
	return load[datatypes.HealthScore](ctx, b, datatypes.KeyHealth)
}

// Coverage loads the coverage report.
func (b *Browser) Coverage(ctx context.Context) (*datatypes.CoverageReport, error) {
	return load[datatypes.CoverageReport](ctx, b, datatypes.KeyCoverage)
}

// Sessions loads the recent sessions.
func (b *Browser) Sessions(ctx context.Context) (*datatypes.SessionList, error) {
	return load[datatypes.SessionList](ctx, b, datatypes.KeySessions)
}

// Powers loads the installed powers.
func (b *Browser) Powers(ctx context.Context) (*datatypes.PowerList, error) {
	return load[datatypes.PowerList](ctx, b, datatypes.KeyPowers)
}

// Pinned loads the pinned entities.
func (b *Browser) Pinned(ctx context.Context) (*datatypes.PinnedListResponse, error) {
	return load[datatypes.PinnedListResponse](ctx, b, datatypes.KeyPinned)
}

// ImpactGraph loads the graph and feeds it to the layout engine.
//
// The engine keeps its positions when the node set is unchanged.
func (b *Browser) ImpactGraph(ctx context.Context) (*datatypes.ImpactGraph, error) {
	g, err := load[datatypes.ImpactGraph](ctx, b, datatypes.KeyGraph)
	if err != nil {
		return nil, err
	}
	b.UpdateGraph(*g)
	return g, nil
}

// UpdateGraph replaces the engine snapshot. Returns true on relayout.
func (b *Browser) UpdateGraph(g datatypes.ImpactGraph) bool {
	return b.graph.SetSnapshot(graphview.FromImpactGraph(g))
}
