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
	"strconv"

	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// Root query keys. Parameterized views extend a root with ":"-separated
// parts so invalidating the root covers every variant.
const (
	KeyEntities   querycache.Key = "entities"
	KeyEntity     querycache.Key = "entity"
	KeyStatistics querycache.Key = "statistics"
	KeyHealth     querycache.Key = "health"
	KeyGraph      querycache.Key = "graph"
	KeyCoverage   querycache.Key = "coverage"
	KeySessions   querycache.Key = "sessions"
	KeyPowers     querycache.Key = "powers"
	KeyPinned     querycache.Key = "pinned"
	KeySearch     querycache.Key = "search"
)

// EntitiesKey names a filtered entity list. The zero filter is the root.
func EntitiesKey(f EntityFilter) querycache.Key {
	n := f.normalized()
	if n.Status == "" && n.Type == "" {
		return KeyEntities
	}
	return querycache.NewKey(string(KeyEntities), "status="+n.Status, "type="+n.Type)
}

// EntityKey names a single entity detail view.
func EntityKey(id string) querycache.Key {
	return querycache.NewKey(string(KeyEntity), id)
}

// SearchKey names a search result view.
func SearchKey(query string, limit int) querycache.Key {
	return querycache.NewKey(string(KeySearch), strconv.Itoa(limit), query)
}

// ResourceKeys maps a resource name used in live events to its root key.
// Unknown names map to nothing.
func ResourceKeys(resource string) []querycache.Key {
	switch resource {
	case "entities", "blocks", "specs":
		return []querycache.Key{KeyEntities, KeyEntity}
	case "statistics", "stats":
		return []querycache.Key{KeyStatistics}
	case "health":
		return []querycache.Key{KeyHealth}
	case "graph":
		return []querycache.Key{KeyGraph}
	case "coverage":
		return []querycache.Key{KeyCoverage}
	case "sessions":
		return []querycache.Key{KeySessions}
	case "powers":
		return []querycache.Key{KeyPowers}
	case "pinned":
		return []querycache.Key{KeyPinned}
	case "search":
		return []querycache.Key{KeySearch}
	default:
		return nil
	}
}
