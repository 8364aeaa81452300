// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the HTTP client for the documentation service.
//
// Every endpoint returns a typed response from the datatypes package.
// Failures at the transport level (connection errors, non-2xx statuses)
// are reported as *TransportError so callers can tell them apart from
// decoding bugs.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

const (
	// DefaultBasePath is the path prefix of every API endpoint.
	DefaultBasePath = "/api"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader carries a per-request id for server-side correlation.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 1024
)

// Client calls the documentation service.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	serverURL  *url.URL
	basePath   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBasePath overrides DefaultBasePath.
func WithBasePath(p string) Option {
	return func(c *Client) {
		c.basePath = "/" + strings.Trim(p, "/")
		if c.basePath == "/" {
			c.basePath = ""
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The caller is
// responsible for its instrumentation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the service at serverURL.
//
// # Inputs
//
//   - serverURL: Scheme and host, e.g. "http://localhost:8765".
//   - opts: Optional configuration.
//
// # Outputs
//
//   - *Client: Ready to use. Requests are traced with otelhttp.
//   - error: Non-nil if serverURL is not an absolute http(s) URL.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: server url must be http or https, got %q", ErrInvalidInput, serverURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: server url has no host", ErrInvalidInput)
	}

	c := &Client{
		serverURL: u,
		basePath:  DefaultBasePath,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server URL including the base path.
func (c *Client) BaseURL() string {
	return c.serverURL.String() + c.basePath
}

// WebSocketURL returns the ws:// or wss:// URL for path on the server.
func (c *Client) WebSocketURL(path string) string {
	u := *c.serverURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// =============================================================================
// Entities
// =============================================================================

// ListEntities fetches the entity list with optional server-side filters.
func (c *Client) ListEntities(ctx context.Context, f datatypes.EntityFilter) (*datatypes.EntityListResponse, error) {
	q := url.Values{}
	if f.Status != "" && f.Status != datatypes.StatusAll {
		q.Set("status", f.Status)
	}
	if f.Type != "" && f.Type != datatypes.StatusAll {
		q.Set("type", f.Type)
	}
	var out datatypes.EntityListResponse
	if err := c.get(ctx, "/entities", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEntity fetches a single entity.
func (c *Client) GetEntity(ctx context.Context, id string) (*datatypes.EntityDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity id is empty", ErrInvalidInput)
	}
	var out datatypes.EntityDetail
	if err := c.get(ctx, "/entities/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statistics fetches aggregate counts.
func (c *Client) Statistics(ctx context.Context) (*datatypes.StatisticsResponse, error) {
	var out datatypes.StatisticsResponse
	if err := c.get(ctx, "/statistics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a semantic query. limit <= 0 uses 10.
func (c *Client) Search(ctx context.Context, query string, limit int) (*datatypes.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	var out datatypes.SearchResponse
	if err := c.get(ctx, "/search", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pinned fetches pinned entities.
func (c *Client) Pinned(ctx context.Context) (*datatypes.PinnedListResponse, error) {
	var out datatypes.PinnedListResponse
	if err := c.get(ctx, "/pinned", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Reports
// =============================================================================

// Coverage fetches the acceptance criteria coverage report.
func (c *Client) Coverage(ctx context.Context) (*datatypes.CoverageReport, error) {
	var out datatypes.CoverageReport
	if err := c.get(ctx, "/coverage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions fetches recent sessions.
func (c *Client) Sessions(ctx context.Context, limit int, includeArchived bool) (*datatypes.SessionList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("include_archived", strconv.FormatBool(includeArchived))
	var out datatypes.SessionList
	if err := c.get(ctx, "/sessions", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Powers fetches installed powers.
func (c *Client) Powers(ctx context.Context) (*datatypes.PowerList, error) {
	var out datatypes.PowerList
	if err := c.get(ctx, "/powers", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the health score.
func (c *Client) Health(ctx context.Context) (*datatypes.HealthScore, error) {
	var out datatypes.HealthScore
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Graph fetches the impact graph.
func (c *Client) Graph(ctx context.Context) (*datatypes.ImpactGraph, error) {
	var out datatypes.ImpactGraph
	if err := c.get(ctx, "/graph", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Mutations
// =============================================================================

// Export asks the service to write a context pack.
func (c *Client) Export(ctx context.Context) (*datatypes.ExportResponse, error) {
	var out datatypes.ExportResponse
	if err := c.post(ctx, "/export", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunAction triggers a long-running action ("scan", "build", "validate",
// "coverage").
func (c *Client) RunAction(ctx context.Context, action string) (*datatypes.ActionResult, error) {
	if action == "" {
		return nil, fmt.Errorf("%w: action is empty", ErrInvalidInput)
	}
	var out datatypes.ActionResult
	if err := c.post(ctx, "/actions/"+action, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, out)
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if ctx == nil {
		return ErrInvalidInput
	}

	fullPath := c.basePath + path
	u := *c.serverURL
	u.Path = fullPath
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: fullPath, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		"method", method,
		"path", fullPath,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Method:     method,
			Path:       fullPath,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, fullPath, err)
	}
	return nil
}
