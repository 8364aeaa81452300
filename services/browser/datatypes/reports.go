// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// =============================================================================
// Health
// =============================================================================

// HealthCategory is one line of the health breakdown.
type HealthCategory struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// HealthScore is the body of GET /health.
type HealthScore struct {
	OverallScore float64          `json:"overall_score"`
	LetterGrade  string           `json:"letter_grade"`
	GradeColor   string           `json:"grade_color"`
	Breakdown    []HealthCategory `json:"breakdown"`
	Suggestions  []string         `json:"suggestions"`
	SpecCount    int              `json:"spec_count"`
	FeatureCount int              `json:"feature_count"`
}

// =============================================================================
// Coverage
// =============================================================================

// Criterion is a single acceptance criterion.
type Criterion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCovered bool   `json:"is_covered"`
}

// FeatureCoverage is the coverage of one feature.
type FeatureCoverage struct {
	FeatureName        string      `json:"feature_name"`
	CoveragePercentage float64     `json:"coverage_percentage"`
	Criteria           []Criterion `json:"criteria"`
}

// CoverageReport is the body of GET /coverage.
type CoverageReport struct {
	TotalCriteria      int               `json:"total_criteria"`
	CoveredCriteria    int               `json:"covered_criteria"`
	CoveragePercentage float64           `json:"coverage_percentage"`
	Features           []FeatureCoverage `json:"features"`
}

// Uncovered returns the number of criteria without coverage.
func (c CoverageReport) Uncovered() int {
	return c.TotalCriteria - c.CoveredCriteria
}

// =============================================================================
// Sessions
// =============================================================================

// Session is a recorded agent conversation.
type Session struct {
	SessionID     string `json:"session_id"`
	Title         string `json:"title"`
	DateCreatedMs int64  `json:"date_created_ms"`
	MessageCount  int    `json:"message_count"`
	Archived      bool   `json:"archived"`
}

// Created returns the creation time as an RFC 3339 date-time.
func (s Session) Created() strfmt.DateTime {
	return strfmt.DateTime(time.UnixMilli(s.DateCreatedMs).UTC())
}

// DisplayTitle returns the title or a placeholder.
func (s Session) DisplayTitle() string {
	if s.Title == "" {
		return "Untitled Session"
	}
	return s.Title
}

// SessionList is the body of GET /sessions.
type SessionList struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

// =============================================================================
// Powers
// =============================================================================

// PowerTool is a tool exposed by a power.
type PowerTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Power is an installed extension.
type Power struct {
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Description string      `json:"description"`
	Tools       []PowerTool `json:"tools"`
}

// PowerList is the body of GET /powers.
type PowerList struct {
	Powers []Power `json:"powers"`
	Total  int     `json:"total"`
}

// =============================================================================
// Actions
// =============================================================================

// ActionResult is the body of POST /actions/{kind}.
type ActionResult struct {
	Success bool           `json:"success"`
	Action  string         `json:"action"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
