// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command specsync-devserver serves fixture data over the documentation
// service API so the client can be run without the real service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/specsync/pkg/logging"
	"github.com/AleutianAI/specsync/pkg/telemetry"
	"github.com/AleutianAI/specsync/services/devserver"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr      string
	basePath  string
	fixtures  string
	exportDir string
	logLevel  string
	debounce  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "specsync-devserver",
		Short:         "Serve fixture data over the SpecSync API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, nil)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:8765", "listen address")
	f.StringVar(&opts.basePath, "base-path", devserver.DefaultBasePath, "API path prefix")
	f.StringVar(&opts.fixtures, "fixtures", "", "YAML fixture file, watched for changes (default: built-in sample)")
	f.StringVar(&opts.exportDir, "export-dir", "", "where export writes context packs (default: temp dir)")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	f.DurationVar(&opts.debounce, "debounce", devserver.DefaultDebounce, "delay before reloading a changed fixture file")
	return cmd
}

// run serves until ctx ends. ready, if set, receives the bound address.
func run(ctx context.Context, opts *options, ready func(addr string)) error {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: level, Service: devserver.ServiceName})
	defer logger.Close()

	if opts.logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = devserver.ServiceName
	tp, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	fixtures, err := loadFixtures(opts.fixtures)
	if err != nil {
		return err
	}

	metrics := devserver.NewMetrics(prometheus.DefaultRegisterer)
	server := devserver.New(fixtures,
		devserver.WithLogger(logger.Slog()),
		devserver.WithMetrics(metrics),
		devserver.WithExportDir(opts.exportDir),
		devserver.WithMetricsHandler(tp.MetricsHandler()),
	)
	defer server.Close()

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           server.Router(opts.basePath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("devserver listening",
		"addr", ln.Addr().String(),
		"base_path", opts.basePath,
		"entities", len(fixtures.Entities))
	if ready != nil {
		ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		server.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	if opts.fixtures != "" {
		g.Go(func() error {
			return devserver.WatchFixtures(gctx, opts.fixtures, opts.debounce, logger.Slog(), metrics, server.Replace)
		})
	}
	return g.Wait()
}

func loadFixtures(path string) (devserver.Fixtures, error) {
	if path == "" {
		return devserver.DefaultFixtures(), nil
	}
	return devserver.LoadFixtures(path)
}
