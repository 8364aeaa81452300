// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tour

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, ErrNoSteps))

	_, err = New([]Step{{ID: "a", Order: 0}, {ID: "b", Order: 2}})
	assert.True(t, errors.Is(err, ErrStepOrder))

	_, err = New([]Step{{ID: "a", Order: 1}})
	assert.True(t, errors.Is(err, ErrStepOrder))

	_, err = New([]Step{{ID: "a", Order: 0}, {ID: "b", Order: 0}})
	assert.True(t, errors.Is(err, ErrStepOrder))

	c, err := New([]Step{{ID: "b", Order: 1}, {ID: "a", Order: 0}})
	require.NoError(t, err)
	assert.Equal(t, "a", c.Steps()[0].ID)
}

func TestController_WalkThrough(t *testing.T) {
	c := NewDefault()
	require.Equal(t, 5, c.Len())
	assert.Equal(t, State{}, c.State())

	step := c.Start()
	assert.Equal(t, "welcome", step.ID)
	assert.Equal(t, State{Active: true, Index: 0}, c.State())
	assert.Equal(t, "Next", c.NextLabel())

	for i := 1; i < c.Len(); i++ {
		step, ok := c.Next()
		require.True(t, ok)
		assert.Equal(t, DefaultSteps[i].ID, step.ID)
	}
	assert.True(t, c.IsLast())
	assert.Equal(t, "Finish", c.NextLabel())

	_, ok := c.Next()
	assert.False(t, ok)
	assert.False(t, c.State().Active)
	_, ok = c.Current()
	assert.False(t, ok)
}

func TestController_SkipAndRestart(t *testing.T) {
	c := NewDefault()
	c.Start()
	c.Next()
	c.Next()

	c.Skip()
	assert.False(t, c.State().Active)

	step := c.Start()
	assert.Equal(t, "welcome", step.ID)
	assert.Equal(t, 0, c.State().Index)
}

func TestController_NextWhenInactive(t *testing.T) {
	c := NewDefault()
	_, ok := c.Next()
	assert.False(t, ok)
	assert.False(t, c.State().Active)
}

func TestController_StartWhileActiveResets(t *testing.T) {
	c := NewDefault()
	c.Start()
	c.Next()
	c.Start()
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "welcome", cur.ID)
}

func TestController_SingleStep(t *testing.T) {
	c, err := New([]Step{{ID: "only", Order: 0}})
	require.NoError(t, err)
	c.Start()
	assert.True(t, c.IsLast())
	_, ok := c.Next()
	assert.False(t, ok)
}
