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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the burst of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// WatchFixtures reloads the fixture file at path whenever it changes and
// passes the result to apply. It blocks until ctx ends.
//
// # Description
//
// The parent directory is watched rather than the file, so editors that
// save by rename keep triggering reloads. A file that fails to parse is
// logged and skipped; the previous fixtures stay in place.
func WatchFixtures(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, metrics *Metrics, apply func(Fixtures)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger = logger.With("component", "fixture_watcher", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-timer.C:
			f, err := LoadFixtures(abs)
			metrics.recordReload(err)
			if err != nil {
				logger.Warn("fixture reload failed", "error", err)
				continue
			}
			logger.Info("fixtures reloaded", "entities", len(f.Entities))
			apply(f)
		}
	}
}
