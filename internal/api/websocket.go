package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/devicehub-core/internal/auth"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/config"
	"github.com/nerrad567/devicehub-core/internal/infrastructure/logging"
)

// wsSendBufferSize is the per-session outbound message buffer size.
const wsSendBufferSize = 256

// wsEnvelope frames every message the hub sends to a session.
type wsEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub owns the WebSocket sessions and delivers plugin events to them.
// Sessions are keyed by the receiver id minted with the session
// ticket; the broker addresses deliveries by that id, so the hub is
// the broker's event sink.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	sessions map[string]*wsSession
	mu       sync.RWMutex

	// onClosed fires after a session is fully removed. Wired to the
	// broker's session teardown.
	onClosed func(sessionID string)
}

// wsSession is one connected WebSocket client.
type wsSession struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	origin string
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*wsSession),
	}
}

// SetOnSessionClosed registers the teardown callback. Called once at
// wiring time, before any session connects.
func (h *Hub) SetOnSessionClosed(fn func(sessionID string)) {
	h.onClosed = fn
}

// Run blocks until the context is cancelled, then disconnects every
// session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Deliver sends one event payload to the named session. Implements
// the broker's event sink.
func (h *Hub) Deliver(receiver string, payload map[string]any) error {
	h.mu.RLock()
	session, ok := h.sessions[receiver]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no session %q", receiver)
	}

	data, err := json.Marshal(wsEnvelope{
		Type:      "event",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	session.trySend(data)
	return nil
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// register adds a session, displacing any previous connection with
// the same id. One receiver id maps to exactly one live socket.
func (h *Hub) register(s *wsSession) {
	h.mu.Lock()
	prev, existed := h.sessions[s.id]
	h.sessions[s.id] = s
	h.mu.Unlock()

	if existed {
		close(prev.send)
		prev.conn.Close()
	}
	h.logger.Debug("websocket session connected", "session_id", s.id, "sessions", h.SessionCount())
}

// unregister removes a session and notifies the teardown callback.
// Only the goroutine that removes the session from the map closes the
// send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(s *wsSession) {
	h.mu.Lock()
	current, ok := h.sessions[s.id]
	if ok && current == s {
		delete(h.sessions, s.id)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	close(s.send)
	h.logger.Debug("websocket session disconnected", "session_id", s.id)
	if h.onClosed != nil {
		h.onClosed(s.id)
	}
}

// closeAll disconnects all sessions and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.sessions {
		close(s.send)
		s.conn.Close()
		delete(h.sessions, id)
	}
}

// handleWebSocket upgrades the connection. Authentication is via a
// ticket query parameter obtained from /gotapi/authorization/sessionTicket;
// the ticket's session id becomes the receiver for event delivery.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	claims, err := auth.ParseSessionTicket(ticket, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	session := &wsSession{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		id:     claims.SessionID,
		origin: claims.Origin,
	}
	s.hub.register(session)

	go session.writePump(s.wsCfg)
	go session.readPump(s.wsCfg)
}

// readPump drains the connection. Inbound traffic is only liveness;
// subscriptions are managed over HTTP with the receiver id.
func (c *wsSession) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "session_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "session_id", c.id)
			}
			return
		}
		// Any client message resets the read deadline (keeps the
		// connection alive even if the client never answers pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes messages to the WebSocket connection.
func (c *wsSession) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data for the session, skipping slow clients whose
// buffer is full and absorbing sends to a closing session.
func (c *wsSession) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel during teardown
	}()

	select {
	case c.send <- data:
	default:
		// Session buffer full, skip
	}
}
