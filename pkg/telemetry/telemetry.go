// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry routes the otel APIs used by SpecSync components to
// exporters chosen at startup.
//
//	tp, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tp.Shutdown(context.Background())
package telemetry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	ErrNilContext      = errors.New("telemetry: nil context")
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config selects exporters. Empty or "none" disables a signal.
type Config struct {
	ServiceName    string `yaml:"service_name" json:"service_name"`
	ServiceVersion string `yaml:"service_version" json:"service_version"`
	Environment    string `yaml:"environment" json:"environment"`
	TraceExporter  string `yaml:"trace_exporter" json:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" json:"otlp_insecure"`
}

// DefaultConfig exports prometheus metrics and no traces. SPECSYNC_ENV and
// the standard OTEL_* variables override the matching fields.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "specsync",
		ServiceVersion: "0.1.0",
		Environment:    cmp.Or(os.Getenv("SPECSYNC_ENV"), "development"),
		TraceExporter:  cmp.Or(os.Getenv("OTEL_TRACES_EXPORTER"), "none"),
		MetricExporter: cmp.Or(os.Getenv("OTEL_METRICS_EXPORTER"), "prometheus"),
		OTLPEndpoint:   cmp.Or(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317"),
		OTLPInsecure:   true,
	}
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != "none"
}

// Provider holds what Init installed. The zero value and nil are inert.
type Provider struct {
	registry  *prometheus.Registry
	handler   http.Handler
	shutdowns []func(context.Context) error
}

// Option configures Init.
type Option func(*Provider)

// WithRegistry scrapes prometheus metrics from reg instead of the default
// registerer.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(p *Provider) { p.registry = reg }
}

// Init installs global tracer and meter providers for the enabled signals.
// On error nothing stays installed that needs shutting down.
func Init(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if enabled(cfg.TraceExporter) {
		newExporter, ok := spanExporters[cfg.TraceExporter]
		if !ok {
			return nil, fmt.Errorf("traces: %w: %s", ErrUnknownExporter, cfg.TraceExporter)
		}
		exp, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("traces: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		p.shutdowns = append(p.shutdowns, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		newReader, ok := metricReaders[cfg.MetricExporter]
		if !ok {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("metrics: %w: %s", ErrUnknownExporter, cfg.MetricExporter)
		}
		reader, err := newReader(p)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("metrics: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
	}
	return p, nil
}

// MetricsHandler serves /metrics when the prometheus exporter is active.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes and stops every provider Init created.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdowns {
		errs = append(errs, fn(ctx))
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

var spanExporters = map[string]func(context.Context, Config) (sdktrace.SpanExporter, error){
	"otlp": func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	"stdout": func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
}

var metricReaders = map[string]func(*Provider) (sdkmetric.Reader, error){
	"prometheus": func(p *Provider) (sdkmetric.Reader, error) {
		if p.registry == nil {
			exp, err := promexporter.New()
			if err != nil {
				return nil, err
			}
			p.handler = promhttp.Handler()
			return exp, nil
		}
		exp, err := promexporter.New(promexporter.WithRegisterer(p.registry))
		if err != nil {
			return nil, err
		}
		p.handler = promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
		return exp, nil
	},
	"stdout": func(*Provider) (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
}
