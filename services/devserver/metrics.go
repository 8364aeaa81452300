// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the development server's Prometheus metrics. A nil
// *Metrics records nothing.
type Metrics struct {
	// LiveClients is the number of connected live channel clients.
	LiveClients prometheus.Gauge

	// BroadcastsTotal counts broadcast events.
	// Labels: type
	BroadcastsTotal *prometheus.CounterVec

	// ActionsTotal counts action requests.
	// Labels: kind, success (true, false)
	ActionsTotal *prometheus.CounterVec

	// FixtureReloadsTotal counts fixture file reloads.
	// Labels: result (success, failure)
	FixtureReloadsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LiveClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "specsync",
			Subsystem: "devserver",
			Name:      "live_clients",
			Help:      "Connected live channel clients",
		}),
		BroadcastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specsync",
			Subsystem: "devserver",
			Name:      "broadcasts_total",
			Help:      "Live events broadcast by type",
		}, []string{"type"}),
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specsync",
			Subsystem: "devserver",
			Name:      "actions_total",
			Help:      "Action requests by kind and result",
		}, []string{"kind", "success"}),
		FixtureReloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specsync",
			Subsystem: "devserver",
			Name:      "fixture_reloads_total",
			Help:      "Fixture file reloads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.LiveClients.Set(float64(n))
}

func (m *Metrics) recordBroadcast(typ string) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.WithLabelValues(typ).Inc()
}

func (m *Metrics) recordAction(kind string, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.ActionsTotal.WithLabelValues(kind, label).Inc()
}

func (m *Metrics) recordReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.FixtureReloadsTotal.WithLabelValues(result).Inc()
}
