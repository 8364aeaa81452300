// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/notify"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

// exportFailedMessage is shown when the export call itself fails.
const exportFailedMessage = "Export failed"

// Remote is the part of the service client the dispatcher calls.
type Remote interface {
	RunAction(ctx context.Context, action string) (*datatypes.ActionResult, error)
	Export(ctx context.Context) (*datatypes.ExportResponse, error)
}

// Invalidator is the part of the cache the dispatcher may touch.
type Invalidator interface {
	Invalidate(keys ...querycache.Key) int
	InvalidateAll() int
}

// Notifier shows export results.
type Notifier interface {
	Push(message string, severity notify.Severity) notify.Notification
}

// Presenter receives the outcome of every non-export action.
type Presenter func(Outcome)

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets where export results go.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// WithPresenter sets where action results go.
func WithPresenter(p Presenter) Option {
	return func(d *Dispatcher) {
		d.presenter = p
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: observability.Default().
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// Dispatcher executes actions, one pending request per kind.
//
// # Description
//
// Dispatch starts the call in its own goroutine and returns at once. On
// success the kind's key set is invalidated before the outcome is
// presented, so a presenter that reads the cache sees the refetch under
// way. Export never invalidates and reports only through the notifier.
//
// # Thread Safety
//
// Safe for concurrent use.
type Dispatcher struct {
	remote    Remote
	inv       Invalidator
	notifier  Notifier
	presenter Presenter
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	pending map[Kind]*Request
	last    map[Kind]*Request
}

// New creates a dispatcher.
func New(remote Remote, inv Invalidator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		remote:  remote,
		inv:     inv,
		logger:  slog.Default(),
		pending: make(map[Kind]*Request),
		last:    make(map[Kind]*Request),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observability.Default()
	}
	d.logger = d.logger.With("component", "mutation")
	return d
}

// Dispatch starts kind unless one is already pending.
//
// # Inputs
//
//   - ctx: Bounds the remote call.
//   - kind: The action. Unknown kinds are rejected with (nil, false).
//
// # Outputs
//
//   - *Request: The new request, or the pending one when rejected.
//   - bool: True if a new request was started.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind) (*Request, bool) {
	if !kind.Valid() {
		d.logger.Warn("rejecting unknown action", "kind", kind)
		return nil, false
	}

	d.mu.Lock()
	if p, ok := d.pending[kind]; ok {
		d.mu.Unlock()
		d.metrics.ActionRejected(string(kind))
		d.logger.Debug("action already pending", "kind", kind, "request_id", p.ID)
		return p, false
	}
	req := newRequest(uuid.NewString(), kind, time.Now())
	d.pending[kind] = req
	d.last[kind] = req
	d.mu.Unlock()

	d.metrics.ActionStarted(string(kind))
	d.logger.Info("action dispatched", "kind", kind, "request_id", req.ID)
	go d.run(ctx, req)
	return req, true
}

// Status returns the status of the latest request of kind.
func (d *Dispatcher) Status(kind Kind) Status {
	d.mu.Lock()
	r, ok := d.last[kind]
	d.mu.Unlock()
	if !ok {
		return StatusIdle
	}
	return r.Status()
}

// Pending returns the pending request of kind, if any.
func (d *Dispatcher) Pending(kind Kind) (*Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.pending[kind]
	return r, ok
}

// Last returns the latest request of kind, if any.
func (d *Dispatcher) Last(kind Kind) (*Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.last[kind]
	return r, ok
}

func (d *Dispatcher) run(ctx context.Context, req *Request) {
	outcome := d.execute(ctx, req.Kind)
	outcome.Duration = time.Since(req.StartedAt)

	if outcome.Success {
		outcome.Invalidated = d.invalidate(req.Kind)
		d.logger.Info("action succeeded", "kind", req.Kind, "request_id", req.ID,
			"invalidated", outcome.Invalidated, "duration", outcome.Duration)
	} else {
		d.logger.Warn("action failed", "kind", req.Kind, "request_id", req.ID, "error", outcome.Failure)
	}

	// Settle and release the kind together so a new dispatch never sees a
	// pending request that has already finished.
	d.mu.Lock()
	req.settle(outcome)
	if d.pending[req.Kind] == req {
		delete(d.pending, req.Kind)
	}
	d.mu.Unlock()

	d.present(outcome)
	d.metrics.ActionFinished(string(req.Kind), outcome.Duration.Seconds(), outcome.Success)
	close(req.done)
}

func (d *Dispatcher) execute(ctx context.Context, kind Kind) Outcome {
	if kind == KindExport {
		resp, err := d.remote.Export(ctx)
		if err != nil {
			return failed(kind, "", err)
		}
		if !resp.Success {
			return failed(kind, resp.Message, nil)
		}
		return Outcome{Kind: kind, Success: true, Message: resp.Message, OutputPath: resp.OutputPath}
	}

	res, err := d.remote.RunAction(ctx, kind.Endpoint())
	if err != nil {
		return failed(kind, "", err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		o := failed(kind, msg, nil)
		o.Message = res.Message
		o.Data = res.Data
		return o
	}
	return Outcome{Kind: kind, Success: true, Message: res.Message, Data: res.Data}
}

func failed(kind Kind, msg string, err error) Outcome {
	return Outcome{
		Kind:    kind,
		Failure: &ActionFailure{Kind: kind, Message: msg, Err: err},
	}
}

func (d *Dispatcher) invalidate(kind Kind) int {
	if d.inv == nil {
		return 0
	}
	keys, all := kind.Invalidates()
	var n int
	switch {
	case all:
		n = d.inv.InvalidateAll()
	case len(keys) > 0:
		n = d.inv.Invalidate(keys...)
	}
	d.metrics.RecordInvalidation(observability.SourceMutation, n)
	return n
}

func (d *Dispatcher) present(o Outcome) {
	if o.Kind != KindExport {
		if d.presenter != nil {
			d.presenter(o)
		}
		return
	}
	if d.notifier == nil {
		return
	}
	switch {
	case o.Success:
		d.notifier.Push(o.Message, notify.SeveritySuccess)
	case o.Failure != nil && o.Failure.Err == nil && o.Failure.Message != "":
		d.notifier.Push(o.Failure.Message, notify.SeverityError)
	default:
		d.notifier.Push(exportFailedMessage, notify.SeverityError)
	}
}

// IsActionFailure reports whether err is an ActionFailure.
func IsActionFailure(err error) bool {
	var f *ActionFailure
	return errors.As(err, &f)
}
