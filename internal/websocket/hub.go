package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cooper437/commodities-research/internal/infrastructure"
)

// Event types broadcast over the hub.
const (
	// TypeConnection is the welcome message sent to a newly registered client.
	TypeConnection = "connection"

	// TypeOperationSnapshot carries a full operation snapshot; the payload is
	// self-contained so clients never stitch partial events together.
	TypeOperationSnapshot = "operation:snapshot"

	// TypeDatasetRefresh tells clients that derived datasets changed and
	// should be re-fetched.
	TypeDatasetRefresh = "dataset:refresh"
)

// Hub maintains the set of active clients and fans broadcast messages out
// to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64

	quit        chan struct{}
	running     bool
	metricsQuit chan struct{}
}

// NewHub creates a hub; Start must be called before clients connect
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger,
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start launches the hub loop and metrics reporting
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.totalConnections++
	h.mu.Unlock()

	ctx := context.Background()
	if client.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, client.traceID)
	}

	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	GetMetrics().RecordConnection()
	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordConnection(ctx, client.id, client.remoteAddr)
		otelMetrics.RecordClientCount(ctx, int64(count))
	}

	welcome := map[string]interface{}{
		"type": TypeConnection,
		"data": map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to research workspace",
			"client_id": client.id,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if client.traceID != "" {
		welcome["trace_id"] = client.traceID
	}

	jsonData, err := json.Marshal(welcome)
	if err != nil {
		return
	}
	select {
	case client.send <- jsonData:
	default:
		h.logger.WarnContext(ctx, "Welcome message dropped, client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := context.Background()
	if client.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, client.traceID)
	}

	duration := time.Since(client.connectedAt)
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", duration))

	GetMetrics().RecordDisconnection(duration)
	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordDisconnection(ctx, client.id, duration)
		otelMetrics.RecordClientCount(ctx, int64(count))
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	successCount := 0
	failCount := 0

	for _, client := range clients {
		select {
		case client.send <- message:
			successCount++
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			// The client is not draining its buffer; drop it rather than
			// stall every other client's updates.
			failCount++
			h.mu.Lock()
			close(client.send)
			delete(h.clients, client)
			h.mu.Unlock()

			GetMetrics().RecordDroppedMessage()
			h.logger.Warn("Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	if failCount > 0 {
		h.logger.Warn("Some clients missed a broadcast",
			slog.Int("success_count", successCount),
			slog.Int("fail_count", failCount))
	}

	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordBroadcast(context.Background(),
			int64(len(clients)), int64(successCount), int64(failCount))
	}
}

// BroadcastUpdate broadcasts an event to every connected client. The
// signature matches the operations package's hub interface, so the
// status broadcaster can feed snapshots straight in.
func (h *Hub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.BroadcastUpdateWithTrace(eventType, step, status, metadata, "")
}

// BroadcastUpdateWithTrace broadcasts an event carrying a trace ID
func (h *Hub) BroadcastUpdateWithTrace(eventType, step, status string, metadata interface{}, traceID string) {
	message := map[string]interface{}{
		"type":      eventType,
		"data":      metadata,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if traceID != "" {
		message["trace_id"] = traceID
	}

	// Snapshot payloads are self-contained; other events keep their step
	// and status alongside the payload.
	if eventType != TypeOperationSnapshot {
		message["step"] = step
		message["status"] = status
	}

	h.broadcastJSON(message)
}

// BroadcastDatasetRefresh notifies clients that the named datasets were
// rewritten.
func (h *Hub) BroadcastDatasetRefresh(source string, datasets []string) {
	h.BroadcastUpdate(TypeDatasetRefresh, source, "refresh", map[string]interface{}{
		"source":   source,
		"datasets": datasets,
	})
}

func (h *Hub) broadcastJSON(message map[string]interface{}) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Error marshaling broadcast message",
			slog.String("error", err.Error()),
			slog.String("message_type", message["type"].(string)))
		return
	}

	select {
	case h.broadcast <- jsonData:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Stop shuts the hub down and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			return

		case <-ticker.C:
			h.mu.RLock()
			activeClients := len(h.clients)
			totalConnections := h.totalConnections
			messagesSent := h.messagesSent
			h.mu.RUnlock()

			GetMetrics().RecordQueueDepth(int64(len(h.broadcast)))

			h.logger.Info("WebSocket hub metrics",
				slog.Int("active_clients", activeClients),
				slog.Int64("total_connections", totalConnections),
				slog.Int64("messages_sent", messagesSent))
		}
	}
}

// Stats returns the hub's counters for the health and stats endpoints
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
	}
}
