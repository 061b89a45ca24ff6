package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event type constants published to connected clients.
const (
	TypeConnection      = "connection"
	TypeImportStarted   = "import:started"
	TypeImportCompleted = "import:completed"
	TypeImportFailed    = "import:failed"
	TypeReportGenerated = "report:generated"
)

// Message is the envelope every broadcast uses.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Hub maintains the set of active clients and fans broadcasts out to
// them. One goroutine owns the client set; register, unregister and
// broadcast all go through channels.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}

	logger *slog.Logger
}

// NewHub creates a hub. Call Start before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
}

// Start launches the hub loop. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Shutdown stops the hub loop and closes every client send channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shut down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))
			client.enqueue(h.envelope(TypeConnection, map[string]string{"status": "connected"}))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client unregistered",
				slog.String("client_id", client.id),
				slog.Int("total_clients", count))

		case payload := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				// Slow consumers are dropped rather than allowed to
				// block the hub loop.
				select {
				case client.send <- payload:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast publishes a typed event to every connected client. A full
// broadcast queue drops the event instead of blocking the caller.
func (h *Hub) Broadcast(ctx context.Context, eventType string, data interface{}) {
	payload := h.envelope(eventType, data)
	if payload == nil {
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.WarnContext(ctx, "broadcast queue full, event dropped",
			slog.String("type", eventType))
	}
}

// ImportStarted announces an upload entering the pipeline.
func (h *Hub) ImportStarted(ctx context.Context, fileName string) {
	h.Broadcast(ctx, TypeImportStarted, map[string]string{"file_name": fileName})
}

// ImportCompleted announces a successful import.
func (h *Hub) ImportCompleted(ctx context.Context, fileName string) {
	h.Broadcast(ctx, TypeImportCompleted, map[string]string{"file_name": fileName})
}

// ImportFailed announces a rejected or failed import.
func (h *Hub) ImportFailed(ctx context.Context, fileName, reason string) {
	h.Broadcast(ctx, TypeImportFailed, map[string]string{
		"file_name": fileName,
		"reason":    reason,
	})
}

// ReportGenerated announces a fresh report.
func (h *Hub) ReportGenerated(ctx context.Context, reportID string) {
	h.Broadcast(ctx, TypeReportGenerated, map[string]string{"report_id": reportID})
}

func (h *Hub) envelope(eventType string, data interface{}) []byte {
	payload, err := json.Marshal(Message{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("failed to marshal event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return nil
	}
	return payload
}
