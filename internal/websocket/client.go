package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// Maximum message size allowed from peer
const maxMessageSize = 512

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client identifier
	ID string

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Hub reference
	hub *Hub

	// Logger
	logger *logrus.Logger

	// Client metadata
	UserAgent   string    `json:"user_agent"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`

	mu     sync.Mutex
	closed bool
	// Severity subscriptions; empty means every severity
	severities map[alerts.Severity]bool
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// originAllowed accepts requests without an Origin header, any origin when
// the list is empty or contains "*", and otherwise exact host matches
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
			return true
		}
	}
	return false
}

// HandleWebSocket handles websocket requests from clients
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(hub.config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         hub,
		logger:      hub.logger,
		UserAgent:   r.Header.Get("User-Agent"),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
		severities:  make(map[alerts.Severity]bool),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// HandleWebSocketGin is a Gin-compatible wrapper for HandleWebSocket
func HandleWebSocketGin(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleWebSocket(hub, c.Writer, c.Request)
	}
}

// Wants reports whether the client subscribed to alerts of severity
func (c *Client) Wants(severity alerts.Severity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.severities) == 0 || c.severities[severity]
}

// trySend queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	pongWait := c.hub.config.PongTimeout
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		c.hub.recordReceived()
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	writeWait := c.hub.config.WriteTimeout
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.logger.WithError(err).Warn("Failed to unmarshal WebSocket message")
		c.trySend(Message{Type: MessageTypeError, Data: map[string]interface{}{"error": "invalid message"}}.ToJSON())
		return
	}

	switch req.Type {
	case "subscribe":
		c.subscribe(req.Data.Severities)
	case "unsubscribe":
		c.subscribe(nil)
	case "ping":
		c.trySend(Message{Type: MessageTypePong, Data: map[string]interface{}{}}.ToJSON())
	default:
		c.logger.WithField("message_type", req.Type).Warn("Unknown WebSocket message type")
		c.trySend(Message{Type: MessageTypeError, Data: map[string]interface{}{"error": "unknown message type"}}.ToJSON())
	}
}

// subscribe replaces the client's severity filter. Unknown severities are
// ignored; an empty list restores every severity.
func (c *Client) subscribe(raw []string) {
	severities := make(map[alerts.Severity]bool, len(raw))
	accepted := make([]string, 0, len(raw))
	for _, s := range raw {
		sev, err := alerts.ParseSeverity(s)
		if err != nil {
			continue
		}
		severities[sev] = true
		accepted = append(accepted, string(sev))
	}

	c.mu.Lock()
	c.severities = severities
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_id":  c.ID,
		"severities": accepted,
	}).Info("Client updated alert subscription")

	c.trySend(Message{
		Type: MessageTypeSubscriptionUpdate,
		Data: map[string]interface{}{"severities": accepted},
	}.ToJSON())
}
