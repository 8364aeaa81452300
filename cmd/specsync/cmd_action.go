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
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/pkg/ux"
	"github.com/AleutianAI/specsync/services/browser/mutation"
)

func runAction(cmd *cobra.Command, flags *globalFlags, arg string) error {
	kind, err := mutation.ParseKind(arg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	req, _ := a.browser.Dispatch(ctx, kind)
	if req == nil {
		return fmt.Errorf("%w: %q", mutation.ErrUnknownKind, arg)
	}
	outcome, err := req.Wait(ctx)
	if err != nil {
		return err
	}

	writeOutcome(newPrinter(cmd.OutOrStdout()), outcome)
	if !outcome.Success {
		return fmt.Errorf("%w: %v", errActionFailed, outcome.Failure)
	}
	return nil
}

// writeOutcome prints o the way the dashboard's result panel shows it.
func writeOutcome(p *ux.Printer, o mutation.Outcome) {
	if o.Success {
		p.Success(fmt.Sprintf("%s succeeded in %s", o.Kind, o.Duration.Round(time.Millisecond)))
	} else {
		p.Error(fmt.Sprintf("%s failed", o.Kind))
	}
	if o.Message != "" {
		p.Printf("%s", o.Message)
	}
	if o.Failure != nil {
		p.Muted(o.Failure.Error())
	}
	if o.OutputPath != "" {
		p.KeyValue("output", o.OutputPath)
	}
	keys := make([]string, 0, len(o.Data))
	for k := range o.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.KeyValue(k, o.Data[k])
	}
}
