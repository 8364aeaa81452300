// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/specsync/services/browser/datatypes"
)

const (
	hubWriteWait  = 5 * time.Second
	helloWait     = 10 * time.Second
	clientBacklog = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hubClient is one connected live channel.
type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live events out to every connected client.
//
// # Description
//
// Each connection gets a writer goroutine fed by a small buffered queue.
// A client whose queue is full is dropped; it reconnects and refetches.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
	logger  *slog.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		logger:  logger.With("component", "hub"),
		metrics: metrics,
	}
}

// ServeWS upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{id: readHello(conn), conn: conn, send: make(chan []byte, clientBacklog)}
	if !h.register(client) {
		_ = conn.Close()
		return
	}
	h.logger.Info("live client connected", "client_id", client.id)

	go h.writeLoop(client)

	// Reading keeps the default ping handler answering keepalives and
	// notices when the client leaves.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(client)
	h.logger.Info("live client disconnected", "client_id", client.id)
}

// readHello waits for the client's hello. A missing or malformed hello
// is tolerated and the client gets a generated id.
func readHello(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	defer conn.SetReadDeadline(time.Time{})

	var hello datatypes.Hello
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != datatypes.EventHello || hello.ClientID == "" {
		return uuid.NewString()
	}
	return hello.ClientID
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.setClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.setClients(len(h.clients))
}

func (h *Hub) writeLoop(c *hubClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("write failed", "client_id", c.id, "error", err)
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Broadcast sends ev to every client and returns how many received it.
func (h *Hub) Broadcast(ev datatypes.LiveEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding event", "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			sent++
		default:
			h.logger.Warn("client too slow, dropping", "client_id", c.id)
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.metrics.setClients(len(h.clients))
	h.metrics.recordBroadcast(ev.Type)
	h.logger.Debug("broadcast", "type", ev.Type, "resources", ev.Resources, "clients", sent)
	return sent
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.metrics.setClients(0)
}
