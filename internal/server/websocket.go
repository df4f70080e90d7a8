package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/metrics"
	"github.com/assetwatch/assetwatch/internal/models"
)

// WebSocket message types
const (
	MessageTypeScore     = "score"
	MessageTypeHeartbeat = "heartbeat"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	// clientBuffer bounds per-subscriber backlog; slow consumers are dropped
	// rather than allowed to stall the pipeline.
	clientBuffer = 64
)

// WSMessage represents an outbound WebSocket message
type WSMessage struct {
	Type      string              `json:"type"`
	Score     *models.ScoreResult `json:"score,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// defaultAllowedOrigins permits common local dashboard dev servers when no
// allow list is configured.
var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader builds a WebSocket upgrader whose origin check honors the
// configured allow list. An empty list falls back to local dev origins;
// "*" allows anything. Requests without an Origin header (non-browser
// clients) are always allowed.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// streamClient is one connected WebSocket subscriber.
type streamClient struct {
	conn *websocket.Conn
	send chan WSMessage
}

// streamHub fans score results out to all connected subscribers.
type streamHub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

func newStreamHub(logger *zap.Logger) *streamHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &streamHub{
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run keeps the hub alive until the context is cancelled, then closes all
// client connections.
func (h *streamHub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// Broadcast queues a score result to every subscriber. Subscribers whose
// buffers are full are disconnected.
func (h *streamHub) Broadcast(result models.ScoreResult) {
	msg := WSMessage{
		Type:      MessageTypeScore,
		Score:     &result,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	var stalled []*streamClient
	for c := range h.clients {
		select {
		case c.send <- msg:
			metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.Warn("dropping stalled WebSocket subscriber")
		h.remove(c)
	}
}

func (h *streamHub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WebSocketConnections.Set(float64(len(h.clients)))
	return true
}

func (h *streamHub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.WebSocketConnections.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// Count returns the number of connected subscribers.
func (h *streamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleStream handles GET /api/v1/stream WebSocket upgrades
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(s.config.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan WSMessage, clientBuffer),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	s.logger.Info("WebSocket subscriber connected", zap.String("remote", r.RemoteAddr))

	go s.writePump(client)
	s.readPump(client)
}

// writePump pushes queued messages and heartbeats to the client.
func (s *Server) writePump(c *streamClient) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames so pings and close messages are processed.
// The stream is one-way; client payloads are discarded.
func (s *Server) readPump(c *streamClient) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
		s.logger.Info("WebSocket subscriber disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
	}
}
