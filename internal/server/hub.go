package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/carbonscope-lab/carbonscope/internal/refresh"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served same-process; cross-origin checks belong to a
	// fronting proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans refreshed stat snapshots out to connected dashboard clients.
// New clients immediately receive the latest snapshot; clients too slow to
// drain their send buffer are disconnected so the hub never blocks.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu     sync.RWMutex
	latest []byte
}

// NewHub creates an idle hub; call Run to start the fan-out loop.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 8),
	}
}

// Publish queues a snapshot for broadcast. Implements refresh.Publisher.
func (h *Hub) Publish(s refresh.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		slog.Error("[Hub] Failed to encode snapshot", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		slog.Warn("[Hub] Broadcast queue full, dropping snapshot")
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		for c := range clients {
			close(c.send)
		}
	}()

	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
			h.mu.RLock()
			if h.latest != nil {
				c.send <- h.latest
			}
			h.mu.RUnlock()

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}

		case payload := <-h.broadcast:
			h.mu.Lock()
			h.latest = payload
			h.mu.Unlock()

			for c := range clients {
				select {
				case c.send <- payload:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(clients, c)
					close(c.send)
				}
			}

		case <-ctx.Done():
			slog.Info("[Hub] Stopping (context cancelled)")
			return
		}
	}
}

// ServeWS upgrades an HTTP request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Hub] Websocket upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}
