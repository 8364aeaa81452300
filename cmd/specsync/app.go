// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/specsync/cmd/specsync/config"
	"github.com/AleutianAI/specsync/pkg/logging"
	"github.com/AleutianAI/specsync/pkg/telemetry"
	"github.com/AleutianAI/specsync/pkg/ux"
	"github.com/AleutianAI/specsync/services/browser"
	"github.com/AleutianAI/specsync/services/browser/prefs"
	"github.com/AleutianAI/specsync/services/browser/remote"
)

const serviceName = "specsync"

// errActionFailed makes the process exit with status 2.
var errActionFailed = errors.New("action failed")

func exitCode(err error) int {
	if errors.Is(err, errActionFailed) {
		return 2
	}
	return 1
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	server     string
	logLevel   string
	noLive     bool
}

// app is the wiring shared by the commands.
type app struct {
	cfg     config.SpecSyncConfig
	logger  *logging.Logger
	client  *remote.Client
	store   prefs.Store
	browser *browser.Browser

	shutdownTelemetry func(context.Context) error
}

type appOptions struct {
	// console is where logs go. nil discards console output, used while
	// the TUI owns the terminal.
	console io.Writer
}

// newApp loads configuration and composes the browser.
func newApp(ctx context.Context, flags *globalFlags, opts appOptions) (*app, error) {
	var cfg config.SpecSyncConfig
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFrom(flags.configPath)
	} else {
		err = config.Load("")
		cfg = config.Global
	}
	if err != nil {
		return nil, err
	}
	if flags.server != "" {
		cfg.Server.URL = flags.server
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.noLive {
		cfg.LiveChannel.Enabled = false
	}

	logCfg := cfg.LoggerConfig(serviceName)
	if opts.console == nil {
		logCfg.Quiet = true
	} else {
		logCfg.Output = opts.console
	}
	logger := logging.New(logCfg)

	tp, err := telemetry.Init(ctx, cfg.TelemetrySettings(serviceName))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, shutdownTelemetry: tp.Shutdown}
	if err := a.compose(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) compose() error {
	client, err := remote.NewClient(a.cfg.Server.URL,
		remote.WithBasePath(a.cfg.Server.BasePath),
		remote.WithLogger(a.logger.Slog()),
	)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	a.client = client

	if a.cfg.DataDir == "" {
		a.store = prefs.NewMemoryStore()
	} else {
		store, err := prefs.OpenBadgerStore(a.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("opening preferences: %w", err)
		}
		a.store = store
	}

	b, err := browser.New(client,
		browser.WithConfig(a.cfg.BrowserConfig(client.WebSocketURL(a.cfg.LiveChannel.Path))),
		browser.WithPrefs(a.store),
		browser.WithLogger(a.logger.Slog()),
	)
	if err != nil {
		_ = a.store.Close()
		a.store = nil
		return err
	}
	a.browser = b
	return nil
}

// Close releases the browser, preference store, telemetry and log file.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("closing browser", "error", err)
		}
	} else if a.store != nil {
		_ = a.store.Close()
	}
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
	}
	_ = a.logger.Close()
}

// interactive reports whether stdin and stdout are both terminals.
func interactive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newPrinter styles output only when w is a terminal.
func newPrinter(w io.Writer) *ux.Printer {
	return ux.NewPrinter(w, ux.DetectMode(w))
}
