// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package livechannel keeps a websocket open to the remote service and turns
// its change events into cache invalidations.
//
// # State Diagram
//
//	CONNECTING ──[dial ok]──► OPEN ──[read error]──► CLOSED
//	    ▲                                              │
//	    └─────────────────[backoff]◄───────────────────┘
//
// A failed dial also moves to CLOSED. After OfflineAfter consecutive failed
// dials the passive offline indicator is set; the next successful open
// clears it. Connection errors are never surfaced as notifications.
//
// # Design Principles
//
// The channel never writes cache values. Every routed event goes through a
// single inbound queue drained by one goroutine that calls the invalidator
// and then the refresh listeners, in arrival order.
package livechannel

import "errors"

// ErrDisabled is returned by Run when the channel is turned off by
// configuration. The cache then relies on manual and mutation invalidation.
var ErrDisabled = errors.New("livechannel: disabled by configuration")

// ErrNoURL is returned by New when an enabled channel has no URL.
var ErrNoURL = errors.New("livechannel: url is required")

// ErrNilInvalidator is returned by New without an invalidator.
var ErrNilInvalidator = errors.New("livechannel: invalidator is required")

// ErrRunning is returned when Run is called on a channel already running.
var ErrRunning = errors.New("livechannel: already running")
