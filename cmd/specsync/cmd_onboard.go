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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/specsync/services/browser"
	"github.com/AleutianAI/specsync/services/browser/tour"
)

func runOnboard(cmd *cobra.Command, flags *globalFlags, force bool) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags, appOptions{console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()
	out := newPrinter(cmd.OutOrStdout())

	show, err := a.browser.ShowOnboarding(ctx)
	if err != nil {
		return err
	}
	if !show && !force {
		out.Muted("Nothing to set up: specifications exist or the welcome was dismissed.")
		return nil
	}
	if !interactive() {
		return errors.New("onboarding needs a terminal")
	}

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Welcome to SpecSync").
			Description("No specifications were found yet. How would you like to start?").
			Options(
				huh.NewOption("Scan the project for specifications", string(browser.OnboardScan)),
				huh.NewOption("Take the tour", string(browser.OnboardTour)),
				huh.NewOption("Don't show this again", string(browser.OnboardDismiss)),
			).
			Value(&choice),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	action := browser.OnboardingAction(choice)
	req, err := a.browser.HandleOnboarding(ctx, action)
	if err != nil {
		return err
	}

	switch action {
	case browser.OnboardScan:
		outcome, err := req.Wait(ctx)
		if err != nil {
			return err
		}
		writeOutcome(out, outcome)
	case browser.OnboardTour:
		return runTour(ctx, a.browser.Tour())
	case browser.OnboardDismiss:
		out.Success("The welcome will not be shown again.")
	}
	return nil
}

// runTour shows each step as a confirm prompt until the last one or Skip.
func runTour(ctx context.Context, t *tour.Controller) error {
	for step, ok := t.Current(); ok; step, ok = t.Current() {
		next := true
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("%s  (%d/%d)", step.Title, t.State().Index+1, t.Len())).
			Description(step.Description).
			Affirmative(t.NextLabel()).
			Negative("Skip").
			Value(&next)
		if err := huh.NewForm(huh.NewGroup(confirm)).RunWithContext(ctx); err != nil {
			t.Skip()
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if !next {
			t.Skip()
			return nil
		}
		t.Next()
	}
	return nil
}
