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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
	"github.com/AleutianAI/specsync/services/browser/observability"
	"github.com/AleutianAI/specsync/services/browser/querycache"
)

const writeWait = 10 * time.Second

// =============================================================================
// State
// =============================================================================

// State is the connection state.
type State int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting State = iota

	// StateOpen means the socket is up and events are being read.
	StateOpen

	// StateClosed means the socket is down and the next attempt is waiting
	// on backoff (or Run has returned).
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Status is a point-in-time view of the channel.
type Status struct {
	// State is the connection state.
	State State

	// Offline is the passive indicator, set after OfflineAfter consecutive
	// failed attempts and cleared on the next open.
	Offline bool

	// Failures counts consecutive failed attempts.
	Failures int

	// ClientID is the id sent in the hello of the current or last
	// connection.
	ClientID string

	// OpenedAt is when the channel last opened.
	OpenedAt time.Time
}

// Event is a routed inbound event, as delivered to refresh listeners after
// its keys were invalidated.
type Event struct {
	Type        string
	Reason      string
	Keys        []querycache.Key
	Invalidated int
	ReceivedAt  time.Time
}

// Invalidator is the part of the cache the channel is allowed to touch.
type Invalidator interface {
	Invalidate(keys ...querycache.Key) int
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Channel.
type Config struct {
	// Enabled turns the channel on. When false Run returns ErrDisabled.
	Enabled bool

	// URL is the websocket endpoint, e.g. ws://localhost:8765/api/ws.
	URL string

	// InitialBackoff is the first reconnect delay. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Default: 30s.
	MaxBackoff time.Duration

	// OfflineAfter is the number of consecutive failed attempts before the
	// offline indicator is set. Default: 3.
	OfflineAfter int

	// PingInterval is the keepalive period. Default: 30s.
	PingInterval time.Duration

	// PongWait is the read deadline, extended by every pong or message.
	// Default: 60s.
	PongWait time.Duration

	// HandshakeTimeout bounds a single dial. Default: 10s.
	HandshakeTimeout time.Duration

	// QueueSize is the inbound queue capacity. Default: 64.
	QueueSize int
}

// DefaultConfig returns an enabled configuration without a URL.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
		OfflineAfter:     3,
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		QueueSize:        64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = d.OfflineAfter
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Option is a functional option for configuring a Channel.
type Option func(*Channel)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the clock used for backoff waits and keepalive ticks.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader sets extra handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Channel) {
		c.header = h
	}
}

// WithMetrics sets the metrics sink. Default: observability.Default().
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Channel) {
		if m != nil {
			c.metrics = m
		}
	}
}

// =============================================================================
// Channel
// =============================================================================

type refreshListener struct {
	id int
	fn func(Event)
}

type statusListener struct {
	id int
	fn func(Status)
}

// Channel is the live update channel.
//
// # Description
//
// Run owns the connection loop. Inbound events are decoded, routed to key
// sets, and queued; one drain goroutine invalidates and then notifies
// refresh listeners.
//
// # Thread Safety
//
// Status, OnRefresh and OnStatus are safe for concurrent use. Run may be
// called once at a time.
type Channel struct {
	cfg     Config
	inv     Invalidator
	logger  *slog.Logger
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	header  http.Header
	metrics *observability.Metrics

	mu        sync.Mutex
	status    Status
	running   bool
	nextID    int
	onRefresh []refreshListener
	onStatus  []statusListener
}

// New creates a channel.
//
// # Inputs
//
//   - cfg: Configuration. Zero durations take defaults.
//   - inv: Receives every routed key set. Required.
//   - opts: Optional logger, clock, dialer, headers, metrics.
//
// # Outputs
//
//   - *Channel: Channel in CLOSED state.
//   - error: ErrNilInvalidator, or ErrNoURL for an enabled channel.
func New(cfg Config, inv Invalidator, opts ...Option) (*Channel, error) {
	if inv == nil {
		return nil, ErrNilInvalidator
	}
	if cfg.Enabled && cfg.URL == "" {
		return nil, ErrNoURL
	}

	c := &Channel{
		cfg:    cfg.withDefaults(),
		inv:    inv,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
		status: Status{State: StateClosed},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.cfg.HandshakeTimeout,
		}
	}
	if c.metrics == nil {
		c.metrics = observability.Default()
	}
	c.logger = c.logger.With("component", "livechannel")
	return c, nil
}

// Enabled reports whether Run will connect.
func (c *Channel) Enabled() bool {
	return c.cfg.Enabled
}

// Status returns the current status.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnRefresh registers fn to run after each routed event has been
// invalidated. Returns a function that removes the listener.
func (c *Channel) OnRefresh(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.onRefresh = append(c.onRefresh, refreshListener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.onRefresh {
			if l.id == id {
				c.onRefresh = append(c.onRefresh[:i], c.onRefresh[i+1:]...)
				return
			}
		}
	}
}

// OnStatus registers fn to run on every status change. Returns a function
// that removes the listener.
func (c *Channel) OnStatus(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.onStatus = append(c.onStatus, statusListener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.onStatus {
			if l.id == id {
				c.onStatus = append(c.onStatus[:i], c.onStatus[i+1:]...)
				return
			}
		}
	}
}

// Run connects and keeps the channel open until ctx ends.
//
// # Description
//
// Loops CONNECTING, OPEN, CLOSED with capped exponential backoff between
// attempts. The backoff resets after every successful open.
//
// # Outputs
//
//   - error: ErrDisabled when the channel is off, ErrRunning if already
//     running, nil when ctx ends.
func (c *Channel) Run(ctx context.Context) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	queue := make(chan Event, c.cfg.QueueSize)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		c.drain(queue)
	}()
	defer func() {
		close(queue)
		<-drained
	}()

	bo := newReconnectBackOff(c.cfg.InitialBackoff, c.cfg.MaxBackoff)

	for {
		c.update(func(s *Status) { s.State = StateConnecting })

		conn, clientID, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.update(func(s *Status) { s.State = StateClosed })
				return nil
			}
			c.recordFailure(err)
		} else {
			bo.Reset()
			c.recordOpen(clientID)
			err = c.serve(ctx, conn, queue)
			if ctx.Err() == nil {
				c.logger.Info("live channel closed", "client_id", clientID, "error", err)
			}
			c.update(func(s *Status) { s.State = StateClosed })
		}

		if ctx.Err() != nil {
			return nil
		}

		wait := bo.NextBackOff()
		c.logger.Debug("live channel reconnecting", "wait", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(wait):
		}
	}
}

// connect dials and sends the hello handshake.
func (c *Channel) connect(ctx context.Context) (*websocket.Conn, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, c.header)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	clientID := uuid.NewString()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	hello := datatypes.Hello{Type: datatypes.EventHello, ClientID: clientID}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, "", fmt.Errorf("send hello: %w", err)
	}
	return conn, clientID, nil
}

// serve reads until the connection fails or ctx ends. It is the only
// sender on queue.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn, queue chan<- Event) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		ev, ok := c.decode(data)
		if !ok {
			continue
		}
		select {
		case queue <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive pings until done closes, and closes the socket when ctx ends
// so the blocked read returns.
func (c *Channel) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// decode parses and routes a frame. Malformed frames and event types with
// no route are dropped.
func (c *Channel) decode(data []byte) (Event, bool) {
	var raw datatypes.LiveEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Debug("dropping malformed event", "error", err)
		return Event{}, false
	}

	keys, ok := Route(raw)
	c.metrics.RecordEvent(raw.Type, ok)
	if !ok {
		c.logger.Debug("ignoring event", "type", raw.Type)
		return Event{}, false
	}
	return Event{
		Type:       raw.Type,
		Reason:     raw.Reason,
		Keys:       keys,
		ReceivedAt: c.clock.Now(),
	}, true
}

// drain is the single consumer of the inbound queue.
func (c *Channel) drain(queue <-chan Event) {
	for ev := range queue {
		ev.Invalidated = c.inv.Invalidate(ev.Keys...)
		c.metrics.RecordInvalidation(observability.SourceChannel, ev.Invalidated)
		c.logger.Debug("event applied", "type", ev.Type, "keys", len(ev.Keys), "invalidated", ev.Invalidated)

		c.mu.Lock()
		listeners := make([]refreshListener, len(c.onRefresh))
		copy(listeners, c.onRefresh)
		c.mu.Unlock()

		for _, l := range listeners {
			l.fn(ev)
		}
	}
}

func (c *Channel) recordFailure(err error) {
	c.metrics.RecordConnectAttempt(false)
	c.update(func(s *Status) {
		s.State = StateClosed
		s.Failures++
		if s.Failures >= c.cfg.OfflineAfter && !s.Offline {
			s.Offline = true
			c.logger.Warn("live channel offline", "attempts", s.Failures, "error", err)
		} else {
			c.logger.Debug("live channel connect failed", "attempt", s.Failures, "error", err)
		}
	})
}

func (c *Channel) recordOpen(clientID string) {
	c.metrics.RecordConnectAttempt(true)
	c.update(func(s *Status) {
		if s.Offline {
			c.logger.Info("live channel back online")
		}
		s.State = StateOpen
		s.Failures = 0
		s.Offline = false
		s.ClientID = clientID
		s.OpenedAt = c.clock.Now()
	})
	c.logger.Info("live channel open", "client_id", clientID, "url", c.cfg.URL)
}

// update applies fn under the lock, then publishes the new status.
func (c *Channel) update(fn func(*Status)) {
	c.mu.Lock()
	before := c.status
	fn(&c.status)
	after := c.status
	listeners := make([]statusListener, len(c.onStatus))
	copy(listeners, c.onStatus)
	c.mu.Unlock()

	if before == after {
		return
	}
	c.metrics.SetChannelOpen(after.State == StateOpen)
	c.metrics.SetOffline(after.Offline)
	for _, l := range listeners {
		l.fn(after)
	}
}

// cappedBackOff is an exponential backoff whose randomized waits never
// exceed max. Jitter is applied around MaxInterval, so it is clamped here.
type cappedBackOff struct {
	*backoff.ExponentialBackOff
	max time.Duration
}

func newReconnectBackOff(initial, max time.Duration) *cappedBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	bo.Reset()
	return &cappedBackOff{ExponentialBackOff: bo, max: max}
}

// NextBackOff returns the next wait, clamped to the cap.
func (b *cappedBackOff) NextBackOff() time.Duration {
	return min(b.ExponentialBackOff.NextBackOff(), b.max)
}
