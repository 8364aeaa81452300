// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutation runs user-triggered long-running actions against the
// remote service and invalidates the views each action is known to affect.
//
// At most one request per kind is pending. A second Dispatch of the same
// kind returns the pending request instead of calling the service again.
// Failed actions never invalidate anything, since they must not be assumed
// to have changed remote state.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// ErrUnknownKind is returned by ParseKind for an unrecognised action.
var ErrUnknownKind = errors.New("mutation: unknown action kind")

// =============================================================================
// Kind
// =============================================================================

// Kind names an action.
type Kind string

const (
	KindScan     Kind = "scan"
	KindBuild    Kind = "build"
	KindValidate Kind = "validate"
	KindCoverage Kind = "coverage-recompute"
	KindExport   Kind = "export"
)

// Kinds lists every action kind.
var Kinds = []Kind{KindScan, KindBuild, KindValidate, KindCoverage, KindExport}

// ParseKind accepts a kind name or its endpoint alias ("coverage").
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindScan):
		return KindScan, nil
	case string(KindBuild):
		return KindBuild, nil
	case string(KindValidate):
		return KindValidate, nil
	case string(KindCoverage), "coverage":
		return KindCoverage, nil
	case string(KindExport):
		return KindExport, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Endpoint is the path segment under /actions. Export has its own route
// and returns "".
func (k Kind) Endpoint() string {
	switch k {
	case KindCoverage:
		return "coverage"
	case KindExport:
		return ""
	default:
		return string(k)
	}
}

// Invalidates returns the keys a successful k invalidates. all is true when
// every cached view must be invalidated.
func (k Kind) Invalidates() (keys []querycache.Key, all bool) {
	switch k {
	case KindScan:
		return []querycache.Key{
			datatypes.KeyEntities,
			datatypes.KeyStatistics,
			datatypes.KeyHealth,
			datatypes.KeyGraph,
		}, false
	case KindBuild:
		return nil, true
	case KindCoverage:
		return []querycache.Key{datatypes.KeyCoverage}, false
	default:
		return nil, false
	}
}

// =============================================================================
// Status and outcome
// =============================================================================

// Status is the lifecycle of a request.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ActionFailure is a failed action: either the service answered
// success=false with an error string, or the call itself failed.
type ActionFailure struct {
	Kind Kind

	// Message is the service-provided error string.
	Message string

	// Err is the transport error, if any.
	Err error
}

func (f *ActionFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s failed: %v", f.Kind, f.Err)
	}
	if f.Message == "" {
		return fmt.Sprintf("%s failed", f.Kind)
	}
	return fmt.Sprintf("%s failed: %s", f.Kind, f.Message)
}

func (f *ActionFailure) Unwrap() error {
	return f.Err
}

// Outcome is the presented result of a request.
type Outcome struct {
	Kind     Kind
	Success  bool
	Message  string
	Data     map[string]any
	Duration time.Duration

	// OutputPath is set by a successful export.
	OutputPath string

	// Invalidated is the number of cache entries invalidated.
	Invalidated int

	// Failure is set when Success is false.
	Failure *ActionFailure
}

// =============================================================================
// Request
// =============================================================================

// Request is one dispatched action.
//
// # Thread Safety
//
// Safe for concurrent use.
type Request struct {
	ID        string
	Kind      Kind
	StartedAt time.Time

	mu      sync.Mutex
	status  Status
	outcome Outcome
	done    chan struct{}
}

func newRequest(id string, kind Kind, now time.Time) *Request {
	return &Request{
		ID:        id,
		Kind:      kind,
		StartedAt: now,
		status:    StatusPending,
		done:      make(chan struct{}),
	}
}

// Status returns the request status.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done is closed when the request completes.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the outcome once complete.
func (r *Request) Outcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusPending {
		return Outcome{}, false
	}
	return r.outcome, true
}

// Wait blocks until the request completes or ctx ends.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		o, _ := r.Outcome()
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// settle records the outcome. Done is closed separately, after the result
// has been presented.
func (r *Request) settle(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = o
	if o.Success {
		r.status = StatusSucceeded
	} else {
		r.status = StatusFailed
	}
}
