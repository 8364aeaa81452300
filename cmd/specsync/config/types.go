// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/specsync/pkg/logging"
	"github.com/AleutianAI/specsync/pkg/telemetry"
	"github.com/AleutianAI/specsync/services/browser"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/remote"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

type SpecSyncConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// Server: where the documentation service runs
	Server ServerConfig `yaml:"server"`

	// LiveChannel: websocket push of change events
	LiveChannel LiveChannelConfig `yaml:"live_channel"`

	Cache CacheConfig `yaml:"cache"`

	// Graph: impact graph layout
	Graph GraphConfig `yaml:"graph"`

	Notifications NotificationConfig `yaml:"notifications"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// DataDir holds local preferences. Empty keeps them in memory.
	DataDir string `yaml:"data_dir"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type ServerConfig struct {
	URL      string `yaml:"url" validate:"required,url"`
	BasePath string `yaml:"base_path" validate:"omitempty,startswith=/"`
}

type LiveChannelConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path" validate:"required,startswith=/"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	OfflineAfter   int           `yaml:"offline_after" validate:"gte=1"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" validate:"gte=1"`
}

type GraphConfig struct {
	Radius  float64 `yaml:"radius" validate:"gt=0"`
	Jitter  float64 `yaml:"jitter" validate:"gte=0,ltefield=Radius"`
	CenterX float64 `yaml:"center_x" validate:"gte=0"`
	CenterY float64 `yaml:"center_y" validate:"gte=0"`
	Seed    uint64  `yaml:"seed"`
}

type NotificationConfig struct {
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

func DefaultConfig() SpecSyncConfig {
	lc := livechannel.DefaultConfig()
	bc := browser.DefaultConfig()
	return SpecSyncConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Server: ServerConfig{
			URL:      "http://localhost:8765",
			BasePath: remote.DefaultBasePath,
		},
		LiveChannel: LiveChannelConfig{
			Enabled:        true,
			Path:           remote.DefaultBasePath + "/ws",
			InitialBackoff: lc.InitialBackoff,
			MaxBackoff:     lc.MaxBackoff,
			OfflineAfter:   lc.OfflineAfter,
		},
		Cache: CacheConfig{MaxEntries: bc.CacheMaxEntries},
		Graph: GraphConfig{
			Radius:  bc.Graph.Radius,
			Jitter:  bc.Graph.Jitter,
			CenterX: bc.Graph.CenterX,
			CenterY: bc.Graph.CenterY,
		},
		Notifications: NotificationConfig{Duration: bc.NotificationDuration},
		Logging:       LoggingConfig{Level: "info", Dir: "~/.specsync/logs"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
		DataDir: "~/.specsync/data",
	}
}

// BrowserConfig maps the file onto the browser configuration. wsURL is the
// resolved live channel endpoint.
func (c SpecSyncConfig) BrowserConfig(wsURL string) browser.Config {
	bc := browser.DefaultConfig()
	bc.LiveChannel.Enabled = c.LiveChannel.Enabled
	bc.LiveChannel.URL = wsURL
	bc.LiveChannel.InitialBackoff = c.LiveChannel.InitialBackoff
	bc.LiveChannel.MaxBackoff = c.LiveChannel.MaxBackoff
	bc.LiveChannel.OfflineAfter = c.LiveChannel.OfflineAfter
	bc.CacheMaxEntries = c.Cache.MaxEntries
	bc.Graph.Radius = c.Graph.Radius
	bc.Graph.Jitter = c.Graph.Jitter
	bc.Graph.CenterX = c.Graph.CenterX
	bc.Graph.CenterY = c.Graph.CenterY
	bc.Graph.Width = 2 * c.Graph.CenterX
	bc.Graph.Height = 2 * c.Graph.CenterY
	bc.Graph.Seed = c.Graph.Seed
	bc.NotificationDuration = c.Notifications.Duration
	return bc
}

// LoggerConfig maps the file onto the logger configuration.
func (c SpecSyncConfig) LoggerConfig(service string) logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}

// TelemetrySettings maps the file onto telemetry, keeping environment
// derived fields from telemetry.DefaultConfig.
func (c SpecSyncConfig) TelemetrySettings(service string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = service
	if c.Telemetry.TraceExporter != "" {
		tc.TraceExporter = c.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricExporter != "" {
		tc.MetricExporter = c.Telemetry.MetricExporter
	}
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	return tc
}
