// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphview

import (
	"fmt"
	"sync"
)

const (
	nodeRadius        = 10.0
	nodeRadiusHovered = 14.0
	edgeWidth         = 1.0
	edgeWidthHovered  = 2.0
)

// Engine holds the current snapshot, its layout, and the display overlay
// (type filter and hovered node).
//
// # Description
//
// Positions are computed when the node identity set changes and reused
// otherwise, so refetching an unchanged graph, hovering, or filtering never
// moves nodes.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	options     Options
	snapshot    Snapshot
	fingerprint uint64
	hasLayout   bool
	positions   map[string]Point
	filter      NodeType
	hovered     string
	layouts     int
}

// NewEngine creates an engine with no snapshot.
func NewEngine(opts Options) *Engine {
	return &Engine{
		options:   opts,
		positions: make(map[string]Point),
	}
}

// SetSnapshot replaces the graph. Returns true if positions were
// recomputed.
func (e *Engine) SetSnapshot(s Snapshot) bool {
	fp := Fingerprint(s.Nodes)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = s
	if e.hasLayout && fp == e.fingerprint {
		return false
	}
	e.positions = Layout(s.Nodes, e.options)
	e.fingerprint = fp
	e.hasLayout = true
	e.layouts++
	return true
}

// ToggleFilter selects t, or clears the filter if t is already selected.
// Returns the resulting filter ("" when cleared).
func (e *Engine) ToggleFilter(t NodeType) (NodeType, error) {
	if !t.Filterable() {
		return "", fmt.Errorf("%w: %q", ErrNotFilterable, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter == t {
		e.filter = ""
	} else {
		e.filter = t
	}
	return e.filter, nil
}

// ClearFilter removes the type filter.
func (e *Engine) ClearFilter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = ""
}

// Filter returns the active filter, "" if none.
func (e *Engine) Filter() NodeType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// Hover marks id as hovered. An empty id clears the hover.
func (e *Engine) Hover(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hovered = id
}

// Unhover clears the hover.
func (e *Engine) Unhover() {
	e.Hover("")
}

// Position returns the laid-out position of id.
func (e *Engine) Position(id string) (Point, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[id]
	return p, ok
}

// LayoutCount returns how many times positions were computed.
func (e *Engine) LayoutCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layouts
}

// Scene combines snapshot, positions, filter and hover.
//
// Nodes are kept in snapshot order. An edge is rendered only when both
// endpoints survive the filter, which also drops dangling edges.
func (e *Engine) Scene() Scene {
	e.mu.Lock()
	defer e.mu.Unlock()

	scene := Scene{
		Width:  e.options.Width,
		Height: e.options.Height,
		Filter: e.filter,
	}

	visible := make(map[string]Point, len(e.snapshot.Nodes))
	for _, n := range e.snapshot.Nodes {
		if e.filter != "" && n.Type != e.filter {
			continue
		}
		p := e.positions[n.ID]
		visible[n.ID] = p

		hovered := n.ID == e.hovered
		rn := RenderedNode{
			ID:        n.ID,
			Label:     n.Label,
			Type:      n.Type,
			X:         p.X,
			Y:         p.Y,
			Radius:    nodeRadius,
			Color:     n.Type.Color(),
			Hovered:   hovered,
			ShowLabel: hovered,
		}
		if hovered {
			rn.Radius = nodeRadiusHovered
			scene.Hovered = n.ID
		}
		scene.Nodes = append(scene.Nodes, rn)
	}

	for _, edge := range e.snapshot.Edges {
		src, okSrc := visible[edge.Source]
		dst, okDst := visible[edge.Target]
		if !okSrc || !okDst {
			continue
		}
		highlighted := scene.Hovered != "" && (edge.Source == scene.Hovered || edge.Target == scene.Hovered)
		re := RenderedEdge{
			Source:       edge.Source,
			Target:       edge.Target,
			Relationship: edge.Relationship,
			X1:           src.X,
			Y1:           src.Y,
			X2:           dst.X,
			Y2:           dst.Y,
			Color:        ColorEdge,
			Width:        edgeWidth,
			Highlighted:  highlighted,
		}
		if highlighted {
			re.Color = ColorEdgeHighlight
			re.Width = edgeWidthHovered
		}
		scene.Edges = append(scene.Edges, re)
	}

	for _, t := range FilterTypes {
		scene.Legend = append(scene.Legend, LegendEntry{
			Type:  t,
			Label: t.LegendLabel(),
			Color: t.Color(),
			Count: e.snapshot.NodesByType[t],
		})
	}
	return scene
}
