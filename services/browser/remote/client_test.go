// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return srv, c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:8765")
	assert.Error(t, err)

	_, err = NewClient("ftp://example.com")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestClient_BaseURLAndWebSocketURL(t *testing.T) {
	c, err := NewClient("https://docs.example.com/", WithBasePath("v2/"))
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/v2", c.BaseURL())
	assert.Equal(t, "wss://docs.example.com/api/ws", c.WebSocketURL("/api/ws"))

	c, err = NewClient("http://localhost:8765")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8765/ws", c.WebSocketURL("ws"))
}

func TestClient_ListEntities_SendsFilters(t *testing.T) {
	var gotPath, gotQuery, gotRequestID string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotRequestID = r.Header.Get(RequestIDHeader)
		writeJSON(w, datatypes.EntityListResponse{
			Entities: []datatypes.EntitySummary{{ID: "r1", Type: "requirement", Status: "active"}},
			Total:    1, ActiveCount: 1,
		})
	})

	resp, err := c.ListEntities(context.Background(), datatypes.EntityFilter{Status: "active", Type: "all"})
	require.NoError(t, err)
	assert.Equal(t, "/api/entities", gotPath)
	assert.Equal(t, "status=active", gotQuery)
	assert.NotEmpty(t, gotRequestID)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "r1", resp.Entities[0].ID)
}

func TestClient_GetEndpoints(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/entities/r%201", "/api/entities/r 1":
			writeJSON(w, datatypes.EntityDetail{ID: "r 1", Text: "body"})
		case "/api/statistics":
			writeJSON(w, datatypes.StatisticsResponse{TotalEntities: 7})
		case "/api/search":
			assert.Equal(t, "auth", r.URL.Query().Get("q"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			writeJSON(w, datatypes.SearchResponse{Query: "auth"})
		case "/api/pinned":
			writeJSON(w, datatypes.PinnedListResponse{Total: 2})
		case "/api/coverage":
			writeJSON(w, datatypes.CoverageReport{TotalCriteria: 4})
		case "/api/sessions":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			assert.Equal(t, "false", r.URL.Query().Get("include_archived"))
			writeJSON(w, datatypes.SessionList{Total: 3})
		case "/api/powers":
			writeJSON(w, datatypes.PowerList{Total: 1})
		case "/api/health":
			writeJSON(w, datatypes.HealthScore{LetterGrade: "B"})
		case "/api/graph":
			writeJSON(w, datatypes.ImpactGraph{Nodes: []datatypes.GraphNode{{ID: "a"}}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	detail, err := c.GetEntity(ctx, "r 1")
	require.NoError(t, err)
	assert.Equal(t, "body", detail.Text)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalEntities)

	search, err := c.Search(ctx, "auth", 0)
	require.NoError(t, err)
	assert.Equal(t, "auth", search.Query)

	pinned, err := c.Pinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pinned.Total)

	cov, err := c.Coverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, cov.TotalCriteria)

	sessions, err := c.Sessions(ctx, 20, false)
	require.NoError(t, err)
	assert.Equal(t, 3, sessions.Total)

	powers, err := c.Powers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, powers.Total)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", health.LetterGrade)

	graph, err := c.Graph(ctx)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 1)
}

func TestClient_PostEndpoints(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/export":
			writeJSON(w, datatypes.ExportResponse{Success: true, Message: "Exported"})
		case "/api/actions/scan":
			writeJSON(w, datatypes.ActionResult{Success: true, Action: "scan", Message: "Scanned 3 specs"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	exp, err := c.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Exported", exp.Message)

	res, err := c.RunAction(ctx, "scan")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "scan", res.Action)
}

func TestClient_Non2xxIsTransportError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index locked", http.StatusServiceUnavailable)
	})

	_, err := c.Statistics(context.Background())
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.MethodGet, te.Method)
	assert.Equal(t, "/api/statistics", te.Path)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, te.Body, "index locked")
	assert.Contains(t, err.Error(), "503")
	assert.True(t, IsTransportError(err))
}

func TestClient_ConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = c.Health(context.Background())
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.NotNil(t, te.Unwrap())
}

func TestClient_DecodeErrorIsNotTransportError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := c.Powers(context.Background())
	require.Error(t, err)
	assert.False(t, IsTransportError(err))
}

func TestClient_InvalidInput(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetEntity(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Search(ctx, "  ", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.RunAction(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	//nolint:staticcheck // nil context is the case under test
	_, err = c.Health(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
