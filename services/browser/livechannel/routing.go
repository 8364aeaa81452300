// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package livechannel

import (
	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// DefaultRefreshKeys is what a bare refresh event invalidates.
var DefaultRefreshKeys = []querycache.Key{
	datatypes.KeyEntities,
	datatypes.KeyStatistics,
	datatypes.KeyHealth,
}

// routes maps event types other than refresh to fixed key sets.
var routes = map[string][]querycache.Key{
	datatypes.EventGraphRebuilt:    {datatypes.KeyGraph},
	datatypes.EventCoverageUpdated: {datatypes.KeyCoverage, datatypes.KeyHealth},
	datatypes.EventSessionsUpdated: {datatypes.KeySessions},
	datatypes.EventPinnedChanged:   {datatypes.KeyPinned, datatypes.KeyEntities},
}

// Route translates an inbound event into the keys it invalidates.
//
// # Description
//
// A refresh naming resources invalidates the union of each resource's keys.
// A refresh with no resources, or with only unrecognised ones, falls back to
// DefaultRefreshKeys. Returns ok=false for event types that carry no
// invalidation (hello, unknown types).
//
// # Outputs
//
//   - []querycache.Key: Deduplicated keys in first-seen order.
//   - bool: Whether the event routes anywhere.
func Route(ev datatypes.LiveEvent) ([]querycache.Key, bool) {
	if ev.Type == datatypes.EventRefresh {
		var keys []querycache.Key
		for _, r := range ev.Resources {
			keys = appendUnique(keys, datatypes.ResourceKeys(r)...)
		}
		if len(keys) == 0 {
			keys = append(keys, DefaultRefreshKeys...)
		}
		return keys, true
	}

	keys, ok := routes[ev.Type]
	if !ok {
		return nil, false
	}
	return append([]querycache.Key(nil), keys...), true
}

func appendUnique(dst []querycache.Key, keys ...querycache.Key) []querycache.Key {
outer:
	for _, k := range keys {
		for _, have := range dst {
			if have == k {
				continue outer
			}
		}
		dst = append(dst, k)
	}
	return dst
}
