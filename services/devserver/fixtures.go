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
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

//go:embed fixtures/default.yaml
var defaultFixtures []byte

// Fixtures is the data the development server serves.
//
// Field names follow the wire format, so a fixture file reads like the
// responses it produces.
type Fixtures struct {
	Entities []datatypes.EntityDetail `json:"entities"`

	// PinReasons maps a pinned entity id to the reason shown for it.
	PinReasons map[string]string `json:"pin_reasons,omitempty"`

	Health   datatypes.HealthScore    `json:"health"`
	Coverage datatypes.CoverageReport `json:"coverage"`
	Sessions []datatypes.Session      `json:"sessions"`
	Powers   []datatypes.Power        `json:"powers"`
	Graph    datatypes.ImpactGraph    `json:"graph"`

	// FailActions makes an action report failure with the given error.
	FailActions map[string]string `json:"fail_actions,omitempty"`
}

// DefaultFixtures returns the built-in sample project.
func DefaultFixtures() Fixtures {
	f, err := ParseFixtures(defaultFixtures)
	if err != nil {
		panic(fmt.Sprintf("devserver: built-in fixtures: %v", err))
	}
	return f
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("reading fixtures: %w", err)
	}
	f, err := ParseFixtures(data)
	if err != nil {
		return Fixtures{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFixtures decodes YAML fixtures.
//
// The document is decoded generically and re-encoded as JSON so the wire
// types' json tags name the keys; the wire types carry no yaml tags.
func ParseFixtures(data []byte) (Fixtures, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Fixtures{}, fmt.Errorf("parsing fixtures: %w", err)
	}
	if doc == nil {
		return Fixtures{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Fixtures{}, fmt.Errorf("converting fixtures: %w", err)
	}
	var f Fixtures
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fixtures{}, fmt.Errorf("decoding fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return Fixtures{}, err
	}
	return f, nil
}

func (f Fixtures) validate() error {
	seen := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		if e.ID == "" {
			return fmt.Errorf("entity %d: id is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("entity %q: duplicate id", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// summaries returns the list rows for every entity.
func (f Fixtures) summaries() []datatypes.EntitySummary {
	out := make([]datatypes.EntitySummary, 0, len(f.Entities))
	for _, e := range f.Entities {
		out = append(out, datatypes.EntitySummary{
			ID:          e.ID,
			Type:        e.Type,
			TextPreview: preview(e.Text),
			Source:      e.Source,
			Status:      e.Status,
			Pinned:      e.Pinned,
		})
	}
	return out
}

const previewLen = 120

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen-1]) + "…"
}
