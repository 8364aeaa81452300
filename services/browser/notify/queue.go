// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify implements a single-slot transient notification.
//
// At most one notification is visible. Pushing replaces the current one
// and re-arms the auto-dismiss timer; there is no backlog.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDuration is how long a notification stays visible.
const DefaultDuration = 3 * time.Second

// Severity classifies a notification.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityError
)

// String returns "success" or "error".
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a transient user-facing message.
type Notification struct {
	ID        uint64
	Message   string
	Severity  Severity
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Listener is told whenever the visible notification changes. visible is
// false when the slot becomes empty; n is then the notification that left.
type Listener func(n Notification, visible bool)

// Options configures a Queue.
type Options struct {
	Clock    clockwork.Clock
	Duration time.Duration
	Logger   *slog.Logger
}

// Option is a functional option for configuring a Queue.
type Option func(*Options)

// WithClock injects a clock. Tests pass clockwork.NewFakeClock().
func WithClock(c clockwork.Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

// WithDuration sets the auto-dismiss duration. Non-positive values are
// ignored.
func WithDuration(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Duration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Queue holds the visible notification.
//
// Thread Safety: Safe for concurrent use. Listeners run without the lock
// held and must not block.
type Queue struct {
	mu        sync.Mutex
	options   Options
	current   *Notification
	timer     clockwork.Timer
	seq       uint64
	listeners map[uint64]Listener
	nextL     uint64
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	options := Options{
		Clock:    clockwork.NewRealClock(),
		Duration: DefaultDuration,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Queue{
		options:   options,
		listeners: make(map[uint64]Listener),
	}
}

// Duration returns the auto-dismiss duration.
func (q *Queue) Duration() time.Duration {
	return q.options.Duration
}

// Push shows message, replacing any current notification, and arms the
// auto-dismiss timer.
func (q *Queue) Push(message string, severity Severity) Notification {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.seq++
	now := q.options.Clock.Now()
	n := Notification{
		ID:        q.seq,
		Message:   message,
		Severity:  severity,
		ShownAt:   now,
		ExpiresAt: now.Add(q.options.Duration),
	}
	q.current = &n
	id := n.ID
	q.timer = q.options.Clock.AfterFunc(q.options.Duration, func() { q.expire(id) })
	listeners := q.listenersLocked()
	q.mu.Unlock()

	q.options.Logger.Debug("notification shown", "message", message, "severity", severity.String())
	for _, l := range listeners {
		l(n, true)
	}
	return n
}

// Success pushes a success notification.
func (q *Queue) Success(message string) Notification {
	return q.Push(message, SeveritySuccess)
}

// Error pushes an error notification.
func (q *Queue) Error(message string) Notification {
	return q.Push(message, SeverityError)
}

// Dismiss hides the current notification early. Returns false if nothing
// was visible.
func (q *Queue) Dismiss() bool {
	q.mu.Lock()
	if q.current == nil {
		q.mu.Unlock()
		return false
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	n := *q.current
	q.current = nil
	listeners := q.listenersLocked()
	q.mu.Unlock()

	for _, l := range listeners {
		l(n, false)
	}
	return true
}

// Current returns the visible notification, if any.
func (q *Queue) Current() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Notification{}, false
	}
	return *q.current, true
}

// OnChange registers a listener. The returned function removes it.
func (q *Queue) OnChange(l Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextL++
	id := q.nextL
	q.listeners[id] = l
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

// expire dismisses notification id if it is still the visible one. A timer
// whose Stop lost the race finds a newer id and does nothing.
func (q *Queue) expire(id uint64) {
	q.mu.Lock()
	if q.current == nil || q.current.ID != id {
		q.mu.Unlock()
		return
	}
	n := *q.current
	q.current = nil
	q.timer = nil
	listeners := q.listenersLocked()
	q.mu.Unlock()

	for _, l := range listeners {
		l(n, false)
	}
}

func (q *Queue) listenersLocked() []Listener {
	out := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		out = append(out, l)
	}
	return out
}
