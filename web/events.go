package web

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hubfleet/hubfleet/bridge"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventHub fans bridge lifecycle events out to connected websocket clients.
// Wire Broadcast to bridge.OnEvent.
type EventHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{conns: make(map[*websocket.Conn]struct{})}
}

// Broadcast sends ev to every connected client. Clients that fail to accept
// the write are dropped.
func (h *EventHub) Broadcast(ev bridge.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(ev); err != nil {
			slog.Warn("Dropping event subscriber", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// HandleWS upgrades the request and keeps the connection registered until the
// client goes away.
func (h *EventHub) HandleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	slog.Info("Event subscriber connected", "remote", conn.RemoteAddr())

	// Drain control frames; the read failing means the client left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.conns, conn)
				h.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}
