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

// Wire node types. The service reports specifications as "spec".
const (
	NodeTypeSpec    = "spec"
	NodeTypeCode    = "code"
	NodeTypeTest    = "test"
	NodeTypeFeature = "feature"
)

// Edge relationships.
const (
	RelContains   = "contains"
	RelImplements = "implements"
	RelTestedBy   = "tested_by"
)

// GraphNode is a node of the impact graph.
type GraphNode struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Label    string         `json:"label"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GraphEdge is a directed relationship between two nodes.
type GraphEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship,omitempty"`
}

// GraphStats summarizes the graph.
type GraphStats struct {
	TotalNodes  int            `json:"total_nodes"`
	TotalEdges  int            `json:"total_edges"`
	NodesByType map[string]int `json:"nodes_by_type"`
}

// ImpactGraph is the body of GET /graph.
type ImpactGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// ComputeStats derives stats from the node and edge lists.
func (g ImpactGraph) ComputeStats() GraphStats {
	stats := GraphStats{
		TotalNodes:  len(g.Nodes),
		TotalEdges:  len(g.Edges),
		NodesByType: make(map[string]int),
	}
	for _, n := range g.Nodes {
		stats.NodesByType[n.Type]++
	}
	return stats
}
