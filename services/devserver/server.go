// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devserver is a development stand-in for the documentation
// service. It serves fixture data over the same HTTP contract, runs the
// actions against the fixtures, and pushes live events over a websocket.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

const (
	// ServiceName names the server in traces and logs.
	ServiceName = "specsync-devserver"

	// DefaultBasePath matches the client's default.
	DefaultBasePath = "/api"

	defaultSearchLimit   = 10
	defaultSessionsLimit = 20
	defaultPinReason     = "Pinned"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records server metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock replaces the clock used for export names and durations.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithExportDir sets where POST /export writes context packs. The default
// is the system temp directory.
func WithExportDir(dir string) Option {
	return func(s *Server) {
		s.exportDir = dir
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// Server serves fixtures over the documentation service contract.
//
// # Thread Safety
//
// Safe for concurrent use. Replace swaps the fixtures atomically with
// respect to handlers.
type Server struct {
	mu       sync.RWMutex
	fixtures Fixtures

	hub            *Hub
	logger         *slog.Logger
	metrics        *Metrics
	clock          clockwork.Clock
	exportDir      string
	metricsHandler http.Handler
}

// New creates a server for f.
func New(f Fixtures, opts ...Option) *Server {
	s := &Server{
		fixtures: f,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "devserver")
	s.hub = NewHub(s.logger, s.metrics)
	return s
}

// Hub returns the live event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Fixtures returns the current fixtures.
func (s *Server) Fixtures() Fixtures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fixtures
}

// Replace swaps the fixtures and tells clients to refresh everything.
func (s *Server) Replace(f Fixtures) {
	s.mu.Lock()
	s.fixtures = f
	s.mu.Unlock()
	s.hub.Broadcast(datatypes.LiveEvent{
		Type:      datatypes.EventRefresh,
		Resources: []string{"entities", "statistics", "pinned", "health", "coverage", "sessions", "powers", "graph"},
		Reason:    "fixtures reloaded",
	})
}

// Close disconnects live clients.
func (s *Server) Close() {
	s.hub.Close()
}

// Router builds a gin engine with the API mounted at basePath.
func (s *Server) Router(basePath string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "live_clients": s.hub.Clients()})
	})
	if s.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	s.Register(router.Group(basePath))
	return router
}

// Register mounts the API routes on g.
func (s *Server) Register(g *gin.RouterGroup) {
	g.GET("/entities", s.listEntities)
	g.GET("/entities/:id", s.getEntity)
	g.GET("/statistics", s.statistics)
	g.GET("/search", s.search)
	g.GET("/pinned", s.pinned)
	g.GET("/coverage", s.coverage)
	g.GET("/sessions", s.sessions)
	g.GET("/powers", s.powers)
	g.GET("/health", s.health)
	g.GET("/graph", s.graph)

	g.POST("/export", s.export)
	g.POST("/actions/:kind", s.runAction)

	g.GET("/ws", s.hub.ServeWS)
	g.POST("/events", s.pushEvent)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.clock.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", s.clock.Since(start))
	}
}

func errorJSON(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, gin.H{"error": fmt.Sprintf(format, args...)})
}

// =============================================================================
// Queries
// =============================================================================

func (s *Server) listEntities(c *gin.Context) {
	filter := datatypes.EntityFilter{Status: c.Query("status"), Type: c.Query("type")}
	if err := filter.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, "%v", err)
		return
	}
	c.JSON(http.StatusOK, datatypes.FilterEntities(s.Fixtures().summaries(), filter))
}

func (s *Server) getEntity(c *gin.Context) {
	id := c.Param("id")
	for _, e := range s.Fixtures().Entities {
		if e.ID == id {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	errorJSON(c, http.StatusNotFound, "entity %q not found", id)
}

func (s *Server) statistics(c *gin.Context) {
	f := s.Fixtures()
	list := datatypes.NewEntityList(f.summaries())
	stats := datatypes.StatisticsResponse{
		TotalEntities: list.Total,
		ActiveCount:   list.ActiveCount,
		LegacyCount:   list.LegacyCount,
		PinnedCount:   list.PinnedCount,
		ByType:        list.CountByType(),
		BySource:      list.CountBySource(),
	}
	for _, e := range f.Entities {
		stats.MemorySizeBytes += int64(len(e.Text))
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	limit, err := intQuery(c, "limit", defaultSearchLimit)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "%v", err)
		return
	}
	c.JSON(http.StatusOK, datatypes.SearchResponse{
		Query:   query,
		Results: rank(s.Fixtures(), query, limit),
	})
}

// rank scores entities by how many query terms their text and id contain.
func rank(f Fixtures, query string, limit int) []datatypes.SearchResult {
	terms := strings.Fields(strings.ToLower(query))
	results := []datatypes.SearchResult{}
	if len(terms) == 0 {
		return results
	}
	summaries := f.summaries()
	for i, e := range f.Entities {
		hay := strings.ToLower(e.ID + " " + e.Text)
		hits := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, datatypes.SearchResult{
			Entity: summaries[i],
			Score:  float64(hits) / float64(len(terms)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *Server) pinned(c *gin.Context) {
	f := s.Fixtures()
	resp := datatypes.PinnedListResponse{Entities: []datatypes.PinnedEntity{}}
	for _, e := range f.summaries() {
		if !e.Pinned {
			continue
		}
		reason := f.PinReasons[e.ID]
		if reason == "" {
			reason = defaultPinReason
		}
		resp.Entities = append(resp.Entities, datatypes.PinnedEntity{Entity: e, Reason: reason})
	}
	resp.Total = len(resp.Entities)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) coverage(c *gin.Context) {
	c.JSON(http.StatusOK, s.Fixtures().Coverage)
}

func (s *Server) sessions(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultSessionsLimit)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "%v", err)
		return
	}
	includeArchived := false
	if raw := c.Query("include_archived"); raw != "" {
		includeArchived, err = strconv.ParseBool(raw)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "include_archived: %v", err)
			return
		}
	}

	all := s.Fixtures().Sessions
	out := make([]datatypes.Session, 0, len(all))
	for _, sess := range all {
		if sess.Archived && !includeArchived {
			continue
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateCreatedMs > out[j].DateCreatedMs
	})
	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	c.JSON(http.StatusOK, datatypes.SessionList{Sessions: out, Total: total})
}

func (s *Server) powers(c *gin.Context) {
	powers := s.Fixtures().Powers
	if powers == nil {
		powers = []datatypes.Power{}
	}
	c.JSON(http.StatusOK, datatypes.PowerList{Powers: powers, Total: len(powers)})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.Fixtures().Health)
}

func (s *Server) graph(c *gin.Context) {
	g := s.Fixtures().Graph
	if len(g.Stats.NodesByType) == 0 {
		g.Stats = g.ComputeStats()
	}
	c.JSON(http.StatusOK, g)
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: want a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// =============================================================================
// Mutations
// =============================================================================

func (s *Server) runAction(c *gin.Context) {
	kind := c.Param("kind")
	f := s.Fixtures()

	if msg, ok := f.FailActions[kind]; ok {
		s.metrics.recordAction(kind, false)
		s.logger.Info("action failed by fixture", "kind", kind)
		c.JSON(http.StatusOK, datatypes.ActionResult{
			Success: false,
			Action:  kind,
			Message: fmt.Sprintf("%s failed", kind),
			Error:   msg,
		})
		return
	}

	var (
		res   datatypes.ActionResult
		event *datatypes.LiveEvent
	)
	switch kind {
	case "scan":
		list := datatypes.NewEntityList(f.summaries())
		res = datatypes.ActionResult{
			Message: fmt.Sprintf("Scanned %d specifications from %d files", list.Total, len(list.Sources())),
			Data:    map[string]any{"entities": list.Total, "sources": len(list.Sources())},
		}
		event = &datatypes.LiveEvent{Type: datatypes.EventRefresh, Resources: []string{"entities", "statistics", "pinned"}, Reason: "scan"}
	case "build":
		res = datatypes.ActionResult{
			Message: "Impact graph rebuilt",
			Data:    map[string]any{"nodes": len(f.Graph.Nodes), "edges": len(f.Graph.Edges)},
		}
		event = &datatypes.LiveEvent{Type: datatypes.EventGraphRebuilt, Reason: "build"}
	case "validate":
		issues := validationIssues(f)
		res = datatypes.ActionResult{
			Message: fmt.Sprintf("Checked %d specifications, %d issues", len(f.Entities), len(issues)),
			Data:    map[string]any{"checked": len(f.Entities), "issues": len(issues)},
		}
		if len(issues) > 0 {
			res.Data["details"] = strings.Join(issues, "; ")
		}
	case "coverage":
		res = datatypes.ActionResult{
			Message: fmt.Sprintf("Coverage %.1f%%", f.Coverage.CoveragePercentage),
			Data:    map[string]any{"coverage_percentage": f.Coverage.CoveragePercentage, "uncovered": f.Coverage.Uncovered()},
		}
		event = &datatypes.LiveEvent{Type: datatypes.EventCoverageUpdated, Reason: "coverage"}
	default:
		s.metrics.recordAction(kind, false)
		c.JSON(http.StatusNotFound, datatypes.ActionResult{Action: kind, Error: fmt.Sprintf("unknown action %q", kind)})
		return
	}

	res.Success = true
	res.Action = kind
	s.metrics.recordAction(kind, true)
	s.logger.Info("action completed", "kind", kind)
	c.JSON(http.StatusOK, res)

	if event != nil {
		s.hub.Broadcast(*event)
	}
}

// validationIssues reports entities with no text or no source.
func validationIssues(f Fixtures) []string {
	var issues []string
	for _, e := range f.Entities {
		if strings.TrimSpace(e.Text) == "" {
			issues = append(issues, e.ID+": empty text")
		}
		if e.Source == "" {
			issues = append(issues, e.ID+": no source")
		}
	}
	return issues
}

// contextPack is the document written by export.
type contextPack struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Entities    []datatypes.EntityDetail `json:"entities"`
	Coverage    datatypes.CoverageReport `json:"coverage"`
}

func (s *Server) export(c *gin.Context) {
	f := s.Fixtures()
	if msg, ok := f.FailActions["export"]; ok {
		s.metrics.recordAction("export", false)
		c.JSON(http.StatusOK, datatypes.ExportResponse{Success: false, Message: msg})
		return
	}

	now := s.clock.Now().UTC()
	dir := s.exportDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("specsync-context-%s.json", now.Format("20060102-150405")))

	data, err := json.MarshalIndent(contextPack{GeneratedAt: now, Entities: f.Entities, Coverage: f.Coverage}, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		s.metrics.recordAction("export", false)
		s.logger.Error("export failed", "error", err)
		c.JSON(http.StatusOK, datatypes.ExportResponse{Success: false, Message: "Could not write context pack"})
		return
	}

	s.metrics.recordAction("export", true)
	c.JSON(http.StatusOK, datatypes.ExportResponse{
		Success:    true,
		OutputPath: path,
		Message:    fmt.Sprintf("Exported %d specifications", len(f.Entities)),
	})
}

// pushEvent broadcasts the posted event. It lets tools and tests drive
// clients without touching the fixtures.
func (s *Server) pushEvent(c *gin.Context) {
	var ev datatypes.LiveEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		errorJSON(c, http.StatusBadRequest, "%v", err)
		return
	}
	if ev.Type == "" {
		ev.Type = datatypes.EventRefresh
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": s.hub.Broadcast(ev)})
}
