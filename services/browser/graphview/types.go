// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graphview lays out and filters the impact graph for display.
//
// The engine never mutates the snapshot it is given. Positions, the type
// filter and the hover overlay live in the engine and are combined into a
// Scene on demand, which can be rendered as SVG.
package graphview

import (
	"errors"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

// ErrNotFilterable is returned when toggling a filter on a type other than
// specification, code, or test.
var ErrNotFilterable = errors.New("graphview: type cannot be used as a filter")

// NodeType is the display type of a node.
type NodeType string

const (
	TypeSpecification NodeType = "specification"
	TypeCode          NodeType = "code"
	TypeTest          NodeType = "test"
)

// FilterTypes are the types a filter can select, in button order.
var FilterTypes = []NodeType{TypeSpecification, TypeCode, TypeTest}

// Node colors.
const (
	ColorSpecification = "#8b5cf6"
	ColorCode          = "#10b981"
	ColorTest          = "#f59e0b"
	ColorOther         = "#64748b"

	ColorEdge          = "#cbd5e1"
	ColorEdgeHighlight = "#8b5cf6"
)

// ParseNodeType maps a wire type to a NodeType. Unknown wire types are
// kept verbatim and render neutral.
func ParseNodeType(wire string) NodeType {
	switch wire {
	case datatypes.NodeTypeSpec, string(TypeSpecification):
		return TypeSpecification
	case datatypes.NodeTypeCode:
		return TypeCode
	case datatypes.NodeTypeTest:
		return TypeTest
	default:
		return NodeType(wire)
	}
}

// Filterable reports whether t can be selected as a filter.
func (t NodeType) Filterable() bool {
	switch t {
	case TypeSpecification, TypeCode, TypeTest:
		return true
	default:
		return false
	}
}

// Color returns the fill color for t.
func (t NodeType) Color() string {
	switch t {
	case TypeSpecification:
		return ColorSpecification
	case TypeCode:
		return ColorCode
	case TypeTest:
		return ColorTest
	default:
		return ColorOther
	}
}

// LegendLabel is the plural label used in the legend.
func (t NodeType) LegendLabel() string {
	switch t {
	case TypeSpecification:
		return "Specs"
	case TypeCode:
		return "Code"
	case TypeTest:
		return "Tests"
	default:
		return string(t)
	}
}

// Node is a graph node as received.
type Node struct {
	ID    string
	Type  NodeType
	Label string
}

// Edge is a directed relationship. Either endpoint may be missing from the
// node set; such edges are dropped at render time.
type Edge struct {
	Source       string
	Target       string
	Relationship string
}

// Snapshot is the input to the engine.
type Snapshot struct {
	Nodes       []Node
	Edges       []Edge
	NodesByType map[NodeType]int
}

// FromImpactGraph converts the wire graph. NodesByType comes from the
// service stats when present, otherwise from the nodes.
func FromImpactGraph(g datatypes.ImpactGraph) Snapshot {
	s := Snapshot{
		Nodes:       make([]Node, 0, len(g.Nodes)),
		Edges:       make([]Edge, 0, len(g.Edges)),
		NodesByType: make(map[NodeType]int),
	}
	for _, n := range g.Nodes {
		s.Nodes = append(s.Nodes, Node{ID: n.ID, Type: ParseNodeType(n.Type), Label: n.Label})
	}
	for _, e := range g.Edges {
		s.Edges = append(s.Edges, Edge{Source: e.Source, Target: e.Target, Relationship: e.Relationship})
	}

	if len(g.Stats.NodesByType) > 0 {
		for wire, count := range g.Stats.NodesByType {
			s.NodesByType[ParseNodeType(wire)] += count
		}
	} else {
		for _, n := range s.Nodes {
			s.NodesByType[n.Type]++
		}
	}
	return s
}

// Point is a position in scene coordinates.
type Point struct {
	X float64
	Y float64
}

// RenderedNode is a node ready to draw.
type RenderedNode struct {
	ID        string
	Label     string
	Type      NodeType
	X         float64
	Y         float64
	Radius    float64
	Color     string
	Hovered   bool
	ShowLabel bool
}

// RenderedEdge is an edge ready to draw.
type RenderedEdge struct {
	Source       string
	Target       string
	Relationship string
	X1, Y1       float64
	X2, Y2       float64
	Color        string
	Width        float64
	Highlighted  bool
}

// LegendEntry is one legend item.
type LegendEntry struct {
	Type  NodeType
	Label string
	Color string
	Count int
}

// Scene is the display-only result of layout, filter and hover.
type Scene struct {
	Width   float64
	Height  float64
	Filter  NodeType
	Hovered string
	Nodes   []RenderedNode
	Edges   []RenderedEdge
	Legend  []LegendEntry
}

// Empty reports whether the scene has nothing to draw.
func (s Scene) Empty() bool {
	return len(s.Nodes) == 0
}
