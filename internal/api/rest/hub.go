package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/drowsy-alarm/internal/api/view"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

const (
	// clientBuffer is the number of queued messages per client before snapshots are dropped.
	clientBuffer = 16
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Message is the envelope of every WebSocket message.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Message types.
const (
	MessageSnapshot = "SNAPSHOT"
)

// Hub fans snapshots out to WebSocket clients. It implements the monitor sink contract.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish queues the snapshot for every client without blocking. Slow clients lose snapshots.
func (h *Hub) Publish(ctx context.Context, snapshot *detection.Snapshot) {
	payload, err := json.Marshal(Message{
		Type:      MessageSnapshot,
		Payload:   view.FromSnapshot(snapshot),
		Timestamp: snapshot.UpdatedAt.Unix(),
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode snapshot", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = payload

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			logger.Debug(ctx, "WebSocket client is slow, snapshot dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams snapshots until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}

	// New clients get the latest snapshot right away.
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	logger.DebugKV(ctx, "WebSocket client connected", "remote_address", r.RemoteAddr)

	go h.writePump(c)

	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	logger.DebugKV(ctx, "WebSocket client disconnected", "remote_address", r.RemoteAddr)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		_ = c.conn.Close()
	}
}

// readPump discards client messages and returns when the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
