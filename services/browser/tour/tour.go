// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tour implements the guided tour state machine.
//
// The tour is either inactive or active at a step index. Start always
// begins at the first step; Next advances and finishes after the last step;
// Skip ends the tour from anywhere.
package tour

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNoSteps is returned when a tour has no steps.
	ErrNoSteps = errors.New("tour: no steps")

	// ErrStepOrder is returned when step orders are not 0..n-1.
	ErrStepOrder = errors.New("tour: step order must be contiguous from 0")
)

// Step is one stop of the tour. Anchor names the dashboard element the
// step points at.
type Step struct {
	ID          string
	Title       string
	Description string
	Anchor      string
	Order       int
}

// DefaultSteps is the built-in tour.
var DefaultSteps = []Step{
	{ID: "welcome", Title: "Welcome to SpecSync!", Description: "Your living documentation hub. Let's take a quick tour.", Anchor: "logo", Order: 0},
	{ID: "health", Title: "Health Score", Description: "See your project's specification health at a glance.", Anchor: "health-score", Order: 1},
	{ID: "actions", Title: "Quick Actions", Description: "Run common tasks like scan, build, and validate with one click.", Anchor: "quick-actions", Order: 2},
	{ID: "graph", Title: "Impact Graph", Description: "Visualize relationships between specs, code, and tests.", Anchor: "view:graph", Order: 3},
	{ID: "search", Title: "Semantic Search", Description: "Find any specification using natural language.", Anchor: "search-bar", Order: 4},
}

// State is the observable tour state. Index is meaningful only when Active.
type State struct {
	Active bool
	Index  int
}

// Controller drives the tour.
//
// Thread Safety: Safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	steps  []Step
	active bool
	index  int
}

// New validates steps and returns an inactive controller. Steps may be
// given in any order; they are sorted by Order.
func New(steps []Step) (*Controller, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i, s := range sorted {
		if s.Order != i {
			return nil, fmt.Errorf("%w: step %q has order %d, want %d", ErrStepOrder, s.ID, s.Order, i)
		}
	}
	return &Controller{steps: sorted}, nil
}

// NewDefault returns a controller over DefaultSteps.
func NewDefault() *Controller {
	c, err := New(DefaultSteps)
	if err != nil {
		panic(err)
	}
	return c
}

// Start activates the tour at step 0, even if it was already active.
func (c *Controller) Start() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.index = 0
	return c.steps[0]
}

// Next advances one step. After the last step the tour becomes inactive
// and ok is false. Calling Next on an inactive tour does nothing.
func (c *Controller) Next() (step Step, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return Step{}, false
	}
	if c.index+1 >= len(c.steps) {
		c.active = false
		c.index = 0
		return Step{}, false
	}
	c.index++
	return c.steps[c.index], true
}

// Skip ends the tour.
func (c *Controller) Skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.index = 0
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Active: c.active, Index: c.index}
}

// Current returns the active step.
func (c *Controller) Current() (Step, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return Step{}, false
	}
	return c.steps[c.index], true
}

// IsLast reports whether the active step is the final one.
func (c *Controller) IsLast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.index == len(c.steps)-1
}

// NextLabel is the label of the advance button: "Finish" on the last step.
func (c *Controller) NextLabel() string {
	if c.IsLast() {
		return "Finish"
	}
	return "Next"
}

// Len returns the number of steps.
func (c *Controller) Len() int {
	return len(c.steps)
}

// Steps returns a copy of the steps in order.
func (c *Controller) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}
