// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querycache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for cache operations.
var (
	tracer = otel.Tracer("specsync.querycache")
	meter  = otel.Meter("specsync.querycache")
)

// Metrics for cache operations.
var (
	cacheHits          metric.Int64Counter
	cacheFetches       metric.Int64Counter
	cacheDiscarded     metric.Int64Counter
	cacheInvalidations metric.Int64Counter
	cacheEvictions     metric.Int64Counter
	cacheFetchLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"querycache_hits_total",
			metric.WithDescription("Reads served from a fresh entry"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheFetches, err = meter.Int64Counter(
			"querycache_fetches_total",
			metric.WithDescription("Fetches started against the remote service"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheDiscarded, err = meter.Int64Counter(
			"querycache_discarded_total",
			metric.WithDescription("Responses dropped because a newer generation exists"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheInvalidations, err = meter.Int64Counter(
			"querycache_invalidations_total",
			metric.WithDescription("Entries marked stale"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheEvictions, err = meter.Int64Counter(
			"querycache_evictions_total",
			metric.WithDescription("Unobserved entries evicted by LRU"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheFetchLatency, err = meter.Float64Histogram(
			"querycache_fetch_duration_seconds",
			metric.WithDescription("Duration of fetches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context, key Key) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", string(key))))
}

func recordFetch(ctx context.Context, key Key) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("key", string(key))))
}

func recordDiscard(ctx context.Context, key Key) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("key", string(key))))
}

func recordInvalidations(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	cacheInvalidations.Add(ctx, int64(n))
}

func recordEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheEvictions.Add(ctx, 1)
}

func recordFetchLatency(ctx context.Context, key Key, d time.Duration, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheFetchLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("key", string(key)),
			attribute.Bool("failed", failed),
		),
	)
}

// startFetchSpan creates a span around a single fetcher call.
func startFetchSpan(ctx context.Context, key Key, generation uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "querycache.Fetch",
		trace.WithAttributes(
			attribute.String("querycache.key", string(key)),
			attribute.Int64("querycache.generation", int64(generation)),
		),
	)
}
