// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the browser client.
//
// # Description
//
// Metrics cover the two invalidation triggers and the user-facing surfaces:
//   - Live channel connection attempts, state, and routed events
//   - Mutation dispatches by kind and outcome, with latency
//   - Invalidated key counts by source
//   - Notifications shown and suppressed
//
// The query cache records its own OpenTelemetry instruments; these counters
// complement them and are served from the same /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "specsync"

const (
	channelSubsystem  = "live_channel"
	mutationSubsystem = "mutation"
	browserSubsystem  = "browser"
)

// Metrics holds all Prometheus metrics for the browser client.
//
// # Description
//
// Create one per registry with NewMetrics, or share the process-wide
// instance from Default.
type Metrics struct {
	// ConnectAttemptsTotal counts channel dial attempts.
	// Labels: result (success, failure)
	ConnectAttemptsTotal *prometheus.CounterVec

	// ChannelOpen is 1 while the channel is open.
	ChannelOpen prometheus.Gauge

	// ChannelOffline is 1 while the offline indicator is shown.
	ChannelOffline prometheus.Gauge

	// EventsTotal counts inbound channel events.
	// Labels: type, routed (true, false)
	EventsTotal *prometheus.CounterVec

	// InvalidatedKeysTotal counts cache entries invalidated.
	// Labels: source (channel, mutation, manual)
	InvalidatedKeysTotal *prometheus.CounterVec

	// ActionsTotal counts dispatches by kind and outcome.
	// Labels: kind, status (succeeded, failed, rejected)
	ActionsTotal *prometheus.CounterVec

	// ActionDurationSeconds measures dispatch latency.
	// Labels: kind
	ActionDurationSeconds *prometheus.HistogramVec

	// PendingActions tracks in-flight dispatches.
	// Labels: kind
	PendingActions *prometheus.GaugeVec

	// NotificationsTotal counts notifications shown.
	// Labels: severity
	NotificationsTotal *prometheus.CounterVec

	// NotificationsSuppressedTotal counts refresh notices dropped by the
	// rate limiter.
	NotificationsSuppressedTotal prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered with the default
// Prometheus registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates and registers all metrics with reg.
//
// # Inputs
//
//   - reg: Registerer to use. Nil creates unregistered metrics.
//
// # Limitations
//
//   - Panics if the same registerer is used twice (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnectAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: channelSubsystem,
				Name:      "connect_attempts_total",
				Help:      "Live channel dial attempts by result",
			},
			[]string{"result"},
		),

		ChannelOpen: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: channelSubsystem,
				Name:      "open",
				Help:      "1 while the live channel is open",
			},
		),

		ChannelOffline: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: channelSubsystem,
				Name:      "offline",
				Help:      "1 while the offline indicator is shown",
			},
		),

		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: channelSubsystem,
				Name:      "events_total",
				Help:      "Inbound live channel events by type",
			},
			[]string{"type", "routed"},
		),

		InvalidatedKeysTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: browserSubsystem,
				Name:      "invalidated_keys_total",
				Help:      "Cache entries invalidated by source",
			},
			[]string{"source"},
		),

		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mutationSubsystem,
				Name:      "actions_total",
				Help:      "Action dispatches by kind and outcome",
			},
			[]string{"kind", "status"},
		),

		ActionDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: mutationSubsystem,
				Name:      "action_duration_seconds",
				Help:      "Action dispatch duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		PendingActions: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: mutationSubsystem,
				Name:      "pending_actions",
				Help:      "In-flight action dispatches by kind",
			},
			[]string{"kind"},
		),

		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: browserSubsystem,
				Name:      "notifications_total",
				Help:      "Notifications shown by severity",
			},
			[]string{"severity"},
		),

		NotificationsSuppressedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: browserSubsystem,
				Name:      "notifications_suppressed_total",
				Help:      "Refresh notifications dropped by the rate limiter",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Source identifies what triggered an invalidation.
type Source string

const (
	SourceChannel  Source = "channel"
	SourceMutation Source = "mutation"
	SourceManual   Source = "manual"
)

// Action outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordConnectAttempt records one dial attempt.
func (m *Metrics) RecordConnectAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ConnectAttemptsTotal.WithLabelValues(result).Inc()
}

// SetChannelOpen sets the open gauge.
func (m *Metrics) SetChannelOpen(open bool) {
	m.ChannelOpen.Set(boolToFloat(open))
}

// SetOffline sets the offline gauge.
func (m *Metrics) SetOffline(offline bool) {
	m.ChannelOffline.Set(boolToFloat(offline))
}

// RecordEvent records an inbound event and whether it mapped to any keys.
func (m *Metrics) RecordEvent(eventType string, routed bool) {
	r := "false"
	if routed {
		r = "true"
	}
	m.EventsTotal.WithLabelValues(eventType, r).Inc()
}

// RecordInvalidation records n invalidated entries.
func (m *Metrics) RecordInvalidation(source Source, n int) {
	if n <= 0 {
		return
	}
	m.InvalidatedKeysTotal.WithLabelValues(string(source)).Add(float64(n))
}

// ActionStarted increments the pending gauge for kind.
func (m *Metrics) ActionStarted(kind string) {
	m.PendingActions.WithLabelValues(kind).Inc()
}

// ActionFinished records a completed dispatch.
//
// # Inputs
//
//   - kind: The action kind.
//   - seconds: Dispatch duration.
//   - success: Whether the action succeeded.
func (m *Metrics) ActionFinished(kind string, seconds float64, success bool) {
	status := StatusSucceeded
	if !success {
		status = StatusFailed
	}
	m.PendingActions.WithLabelValues(kind).Dec()
	m.ActionsTotal.WithLabelValues(kind, status).Inc()
	m.ActionDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

// ActionRejected records a dispatch refused because one was pending.
func (m *Metrics) ActionRejected(kind string) {
	m.ActionsTotal.WithLabelValues(kind, StatusRejected).Inc()
}

// RecordNotification records a shown notification.
func (m *Metrics) RecordNotification(severity string) {
	m.NotificationsTotal.WithLabelValues(severity).Inc()
}

// RecordSuppressed records a throttled refresh notice.
func (m *Metrics) RecordSuppressed() {
	m.NotificationsSuppressedTotal.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
