package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub streams session events to WebSocket clients.
type Hub struct {
	fanout   *events.Fanout
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

// NewHub creates a hub fed by fanout. checkOrigin may be nil to allow all
// origins.
func NewHub(fanout *events.Fanout, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		fanout:   fanout,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*websocket.Conn]string),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams sessionID's events until the client
// disconnects or the session ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("WebSocket upgrade failed")
		return
	}
	sub := h.fanout.Subscribe(sessionID)
	h.register(conn, sessionID)
	defer func() {
		sub.Close()
		h.unregister(conn)
	}()

	// Reader: only needed to observe close frames and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("sessionId", sessionID).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (h *Hub) register(conn *websocket.Conn, sessionID string) {
	h.mu.Lock()
	h.clients[conn] = sessionID
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("sessionId", sessionID).Int("clients", n).Msg("WebSocket client connected")
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	sessionID, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
		log.Info().Str("sessionId", sessionID).Int("clients", n).Msg("WebSocket client disconnected")
	}
}
