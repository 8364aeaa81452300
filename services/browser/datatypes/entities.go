// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the wire types exchanged with the remote
// documentation service and the query keys that name them in the cache.
//
// This file contains entity list, detail, statistics, search and pinned
// types. Reports (health, coverage, sessions, powers) live in reports.go,
// the impact graph in graph.go.
package datatypes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Entity Vocabulary
// =============================================================================

// Entity statuses.
const (
	StatusActive = "active"
	StatusLegacy = "legacy"
	StatusAll    = "all"
)

// Entity types.
const (
	TypeRequirement = "requirement"
	TypeDesign      = "design"
	TypeTask        = "task"
	TypeDecision    = "decision"
	TypeKnowledge   = "knowledge"
)

// EntityTypes lists known entity types in display order.
var EntityTypes = []string{TypeRequirement, TypeDesign, TypeTask, TypeDecision, TypeKnowledge}

// =============================================================================
// Shared Validator Instance
// =============================================================================

var validate = validator.New()

// =============================================================================
// Entity Types
// =============================================================================

// EntitySummary is one row of the entity list.
type EntitySummary struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TextPreview string `json:"text_preview"`
	Source      string `json:"source"`
	Status      string `json:"status"`
	Pinned      bool   `json:"pinned"`
}

// EntityDetail is the full entity returned by GET /entities/{id}.
type EntityDetail struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Text   string   `json:"text"`
	Source string   `json:"source"`
	Status string   `json:"status"`
	Pinned bool     `json:"pinned"`
	Tags   []string `json:"tags"`
	Links  []string `json:"links"`
}

// EntityListResponse is the body of GET /entities.
type EntityListResponse struct {
	Entities    []EntitySummary `json:"entities"`
	Total       int             `json:"total"`
	ActiveCount int             `json:"active_count"`
	LegacyCount int             `json:"legacy_count"`
	PinnedCount int             `json:"pinned_count"`
}

// EntityFilter selects entities server-side. Empty fields and "all" mean
// no constraint.
type EntityFilter struct {
	Status string `json:"status,omitempty" validate:"omitempty,oneof=active legacy all"`
	Type   string `json:"type,omitempty" validate:"omitempty,oneof=requirement design task decision knowledge all"`
}

// Validate checks the filter values.
func (f EntityFilter) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid entity filter: %w", err)
	}
	return nil
}

// normalized lowercases the filter and drops "all".
func (f EntityFilter) normalized() EntityFilter {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == StatusAll {
			return ""
		}
		return s
	}
	return EntityFilter{Status: norm(f.Status), Type: norm(f.Type)}
}

// Matches reports whether e satisfies the filter (AND of both fields).
func (f EntityFilter) Matches(e EntitySummary) bool {
	n := f.normalized()
	if n.Status != "" && e.Status != n.Status {
		return false
	}
	if n.Type != "" && e.Type != n.Type {
		return false
	}
	return true
}

// IsZero reports whether the filter selects everything.
func (f EntityFilter) IsZero() bool {
	n := f.normalized()
	return n.Status == "" && n.Type == ""
}

// FilterEntities applies f and recomputes counts.
func FilterEntities(entities []EntitySummary, f EntityFilter) EntityListResponse {
	out := make([]EntitySummary, 0, len(entities))
	for _, e := range entities {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return NewEntityList(out)
}

// NewEntityList builds a list response with counts derived from entities.
func NewEntityList(entities []EntitySummary) EntityListResponse {
	resp := EntityListResponse{Entities: entities, Total: len(entities)}
	for _, e := range entities {
		switch e.Status {
		case StatusActive:
			resp.ActiveCount++
		case StatusLegacy:
			resp.LegacyCount++
		}
		if e.Pinned {
			resp.PinnedCount++
		}
	}
	return resp
}

// Narrow applies the client-side sidebar selection. An empty typ or source
// means no constraint.
func (r EntityListResponse) Narrow(typ, source string) []EntitySummary {
	out := make([]EntitySummary, 0, len(r.Entities))
	for _, e := range r.Entities {
		if typ != "" && e.Type != typ {
			continue
		}
		if source != "" && e.Source != source {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CountByType returns entity counts keyed by type.
func (r EntityListResponse) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Entities {
		counts[e.Type]++
	}
	return counts
}

// CountBySource returns entity counts keyed by source file.
func (r EntityListResponse) CountBySource() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Entities {
		counts[e.Source]++
	}
	return counts
}

// Sources returns the distinct sources in sorted order.
func (r EntityListResponse) Sources() []string {
	counts := r.CountBySource()
	out := make([]string, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Statistics, Search, Pinned, Export
// =============================================================================

// StatisticsResponse is the body of GET /statistics.
type StatisticsResponse struct {
	TotalEntities   int            `json:"total_entities"`
	ActiveCount     int            `json:"active_count"`
	LegacyCount     int            `json:"legacy_count"`
	PinnedCount     int            `json:"pinned_count"`
	ByType          map[string]int `json:"by_type"`
	BySource        map[string]int `json:"by_source"`
	MemorySizeBytes int64          `json:"memory_size_bytes"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Entity EntitySummary `json:"entity"`
	Score  float64       `json:"score"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
}

// PinnedEntity is a pinned entity with the reason it was pinned.
type PinnedEntity struct {
	Entity EntitySummary `json:"entity"`
	Reason string        `json:"reason"`
}

// PinnedListResponse is the body of GET /pinned.
type PinnedListResponse struct {
	Entities []PinnedEntity `json:"entities"`
	Total    int            `json:"total"`
}

// ExportResponse is the body of POST /export.
type ExportResponse struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"output_path"`
	Message    string `json:"message"`
}
