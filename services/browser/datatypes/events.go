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

// Live channel message types.
const (
	EventHello           = "hello"
	EventRefresh         = "refresh"
	EventGraphRebuilt    = "graph_rebuilt"
	EventCoverageUpdated = "coverage_updated"
	EventSessionsUpdated = "sessions_updated"
	EventPinnedChanged   = "pinned_changed"
)

// LiveEvent is a message pushed over the live channel.
//
// Resources optionally narrows a refresh to named views ("entities",
// "statistics", "graph", ...). An empty list means the default set.
type LiveEvent struct {
	Type      string   `json:"type"`
	Resources []string `json:"resources,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Hello is the first message a client sends after the channel opens.
type Hello struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}
