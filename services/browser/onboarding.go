// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/mutation"
	"github.com/AleutianAI/specsync/services/browser/prefs"
)

// ErrUnknownOnboardingAction is returned for an action other than scan,
// tour or dismiss.
var ErrUnknownOnboardingAction = errors.New("browser: unknown onboarding action")

// OnboardingAction is a choice offered by the empty-state welcome.
type OnboardingAction string

const (
	OnboardScan    OnboardingAction = "scan"
	OnboardTour    OnboardingAction = "tour"
	OnboardDismiss OnboardingAction = "dismiss"
)

// OnboardingActions lists the choices in display order.
var OnboardingActions = []OnboardingAction{OnboardScan, OnboardTour, OnboardDismiss}

// OnboardingVisible reports whether the welcome should show for list.
// A nil list (not loaded yet) never shows it.
func OnboardingVisible(list *datatypes.EntityListResponse, dismissed bool) bool {
	return list != nil && list.Total == 0 && !dismissed
}

// ShowOnboarding loads the unfiltered entity list and the dismissed
// preference and reports whether the welcome should show.
func (b *Browser) ShowOnboarding(ctx context.Context) (bool, error) {
	b.mu.Lock()
	hidden := b.onboardingHidden
	b.mu.Unlock()
	if hidden {
		return false, nil
	}

	dismissed, err := b.prefs.Get(ctx, prefs.OnboardingDismissed)
	if err != nil {
		return false, fmt.Errorf("reading onboarding preference: %w", err)
	}
	if dismissed {
		return false, nil
	}
	list, err := b.Entities(ctx, datatypes.EntityFilter{})
	if err != nil {
		return false, err
	}
	return OnboardingVisible(list, dismissed), nil
}

// HandleOnboarding performs action and hides the welcome for this session.
//
// # Description
//
// Scan dispatches a scan (the returned request is nil for other actions).
// Tour starts the guided tour. Dismiss persists the choice so the welcome
// stays hidden across restarts.
func (b *Browser) HandleOnboarding(ctx context.Context, action OnboardingAction) (*mutation.Request, error) {
	var req *mutation.Request
	switch action {
	case OnboardScan:
		req, _ = b.dispatcher.Dispatch(ctx, mutation.KindScan)
	case OnboardTour:
		b.tour.Start()
	case OnboardDismiss:
		if err := b.prefs.Set(ctx, prefs.OnboardingDismissed, true); err != nil {
			return nil, fmt.Errorf("saving onboarding preference: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOnboardingAction, action)
	}

	b.mu.Lock()
	b.onboardingHidden = true
	b.mu.Unlock()
	b.logger.Info("onboarding action", "action", string(action))
	return req, nil
}
