package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// MetricsRecorder receives connection and message counts
type MetricsRecorder interface {
	RecordWebSocketConnection(delta int)
	RecordWebSocketMessage(messageType string)
}

// HubConfig tunes client timeouts and the heartbeat
type HubConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
}

func (c *HubConfig) withDefaults() HubConfig {
	out := HubConfig{}
	if c != nil {
		out = *c
	}
	if out.PongTimeout <= 0 {
		out.PongTimeout = 60 * time.Second
	}
	if out.PingInterval <= 0 || out.PingInterval >= out.PongTimeout {
		out.PingInterval = (out.PongTimeout * 9) / 10
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 30 * time.Second
	}
	return out
}

// outbound is a broadcast addressed to clients subscribed to severity.
// An empty severity reaches every client.
type outbound struct {
	severity alerts.Severity
	msgType  string
	data     []byte
}

// Hub maintains the set of active clients and broadcasts alert activity to
// them. It is both a history sink and a poller cycle observer.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for the clients
	broadcast chan outbound

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	config  HubConfig
	logger  *logrus.Logger
	metrics MetricsRecorder

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Statistics
	stats *HubStats
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(config *HubConfig, logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     config.withDefaults(),
		logger:     logger,
		stats: &HubStats{
			LastActivity: time.Now(),
		},
	}
}

// SetMetrics attaches a metrics recorder. Call before Run.
func (h *Hub) SetMetrics(metrics MetricsRecorder) {
	h.metrics = metrics
}

// Run handles client registration and broadcasting until ctx is done, then
// disconnects every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-ticker.C:
			h.sendHeartbeat()

		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	connected := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(1)
	}

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"remote_addr":       client.RemoteAddr,
		"connected_clients": connected,
	}).Info("WebSocket client connected")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.trySend(welcome.ToJSON())
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.closeSend()
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()
	}
	connected := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.RecordWebSocketConnection(-1)
	}

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": connected,
	}).Info("WebSocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.unregisterClient(client)
	}
}

func (h *Hub) broadcastMessage(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if msg.severity == "" || client.Wants(msg.severity) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		if !client.trySend(msg.data) {
			slow = append(slow, client)
		}
	}

	// Client send channels that are full are closed
	for _, client := range slow {
		h.unregisterClient(client)
	}

	h.mu.Lock()
	h.stats.MessagesSent++
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordWebSocketMessage(msg.msgType)
	}

	h.logger.WithFields(logrus.Fields{
		"message_type": msg.msgType,
		"message_size": len(msg.data),
		"clients_sent": len(clients) - len(slow),
	}).Debug("Message broadcasted to WebSocket clients")
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{
		Type: MessageTypeHeartbeat,
		Data: map[string]interface{}{
			"clients": h.GetClientCount(),
		},
	}

	h.BroadcastToAll(heartbeat)
}

// BroadcastToAll broadcasts a message to all connected clients
func (h *Hub) BroadcastToAll(message Message) {
	h.enqueue(outbound{msgType: message.Type, data: message.ToJSON()})
}

// BroadcastForSeverity broadcasts a message to clients subscribed to severity
func (h *Hub) BroadcastForSeverity(severity alerts.Severity, message Message) {
	h.enqueue(outbound{severity: severity, msgType: message.Type, data: message.ToJSON()})
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.WithField("message_type", msg.msgType).Warn("Broadcast channel is full, message dropped")
	}
}

// Name identifies the hub as a history sink
func (h *Hub) Name() string {
	return "websocket"
}

// Record pushes an alert lifecycle event to subscribed clients
func (h *Hub) Record(ctx context.Context, event alerts.Event) error {
	h.BroadcastForSeverity(event.Alert.Severity, AlertEventMessage(event))
	return nil
}

// ObserveCycle pushes a cycle summary to every client
func (h *Hub) ObserveCycle(summary alerts.CycleSummary) {
	h.BroadcastToAll(CycleSummaryMessage(summary))
}

// ObserveFetchFailure tells clients that the job source is failing
func (h *Hub) ObserveFetchFailure(err error) {
	h.BroadcastToAll(SourceErrorMessage(err))
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statsCopy := *h.stats
	statsCopy.ConnectedClients = len(h.clients)
	return &statsCopy
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) recordReceived() {
	h.mu.Lock()
	h.stats.MessagesReceived++
	h.mu.Unlock()
}
