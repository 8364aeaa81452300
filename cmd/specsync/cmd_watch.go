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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/livechannel"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// watchKeys are the views printed by watch.
var watchKeys = []querycache.Key{datatypes.KeyStatistics, datatypes.KeyHealth, datatypes.KeyCoverage}

func runWatch(cmd *cobra.Command, flags *globalFlags) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	b := a.browser
	w := newPrinter(cmd.OutOrStdout()).WithPrefix(func() string {
		return time.Now().Format("15:04:05")
	})

	b.Notifications().OnChange(func(n notify.Notification, visible bool) {
		if !visible {
			return
		}
		switch n.Severity {
		case notify.SeveritySuccess:
			w.Success(n.Message)
		case notify.SeverityError:
			w.Error(n.Message)
		default:
			w.Printf("%s", n.Message)
		}
	})
	b.Channel().OnStatus(func(s livechannel.Status) {
		if s.Offline {
			w.Warning("live: " + describeStatus(s))
			return
		}
		w.Muted("live: " + describeStatus(s))
	})
	if !b.Channel().Enabled() {
		w.Muted("live updates are off; press ctrl+c to stop")
	}

	var wg sync.WaitGroup
	subs := make([]*querycache.Subscription, 0, len(watchKeys))
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
		wg.Wait()
	}()
	for _, key := range watchKeys {
		snap, sub, err := b.Subscribe(key)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		if line := describeSnapshot(snap); line != "" {
			w.Printf("%s", line)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range sub.Updates() {
				if line := describeSnapshot(snap); line != "" {
					w.Printf("%s", line)
				}
			}
		}()
	}

	return b.Run(ctx)
}

func describeStatus(s livechannel.Status) string {
	if s.Offline {
		return fmt.Sprintf("offline after %d failed attempts", s.Failures)
	}
	return strings.ToLower(s.State.String())
}

// describeSnapshot summarizes a settled snapshot in one line. Snapshots
// still loading produce "".
func describeSnapshot(snap querycache.Snapshot) string {
	if snap.State == querycache.StateFailed {
		return fmt.Sprintf("%s: %v", snap.Key, snap.Err)
	}
	if snap.State != querycache.StateFresh || !snap.HasValue {
		return ""
	}
	switch v := snap.Value.(type) {
	case *datatypes.StatisticsResponse:
		return fmt.Sprintf("specs: %d total, %d active, %d legacy, %d pinned",
			v.TotalEntities, v.ActiveCount, v.LegacyCount, v.PinnedCount)
	case *datatypes.HealthScore:
		return fmt.Sprintf("health: %s (%.0f/100)", v.LetterGrade, v.OverallScore)
	case *datatypes.CoverageReport:
		return fmt.Sprintf("coverage: %.1f%% (%d uncovered)", v.CoveragePercentage, v.Uncovered())
	case *datatypes.EntityListResponse:
		return fmt.Sprintf("entities: %d", v.Total)
	default:
		return fmt.Sprintf("%s updated", snap.Key)
	}
}
