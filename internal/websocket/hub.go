// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/metrics"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/pipeline"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeObservation = "observation"
	MessageTypeAlert       = "alert"
	MessageTypeDelivery    = "delivery"
	MessageTypeStatus      = "status"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is one websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// snapshot, when set, produces the status sent to each new client.
	snapshot func() pipeline.Status
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// SetSnapshot sets the status source used to greet new clients. Call
// before Serve.
func (h *Hub) SetSnapshot(fn func() pipeline.Status) {
	h.snapshot = fn
}

// Serve runs the hub until ctx is cancelled. Lifecycle events are handled
// before broadcasts so a client never misses a message sent after it
// registered.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Str("component", "websocket").Int("total_clients", n).Msg("Websocket client connected")

	if h.snapshot != nil {
		select {
		case client.send <- Message{Type: MessageTypeStatus, Data: h.snapshot()}:
		default:
		}
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Str("component", "websocket").Int("total_clients", n).Msg("Websocket client disconnected")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("Websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// broadcastToClients sends in client ID order. Clients whose buffer is full
// are disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSDropped.Inc()
	}
	metrics.WSMessagesSent.WithLabelValues(message.Type).Add(float64(len(clients) - len(toRemove)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// BroadcastJSON queues a message for all clients. Drops it when the
// broadcast buffer is full.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("component", "websocket").Str("message_type", messageType).Msg("Broadcast channel full, dropping message")
	}
}

// BroadcastObservation sends an observation.
func (h *Hub) BroadcastObservation(obs *models.Observation) {
	h.BroadcastJSON(MessageTypeObservation, obs)
}

// BroadcastAlert sends a dispatched alert event.
func (h *Hub) BroadcastAlert(ev *models.AlertEvent) {
	h.BroadcastJSON(MessageTypeAlert, ev)
}

// BroadcastDelivery sends a delivery attempt outcome.
func (h *Hub) BroadcastDelivery(a *models.DeliveryAttempt) {
	h.BroadcastJSON(MessageTypeDelivery, a)
}

// BroadcastStatus sends a status snapshot.
func (h *Hub) BroadcastStatus(st *pipeline.Status) {
	h.BroadcastJSON(MessageTypeStatus, st)
}

// BroadcastRaw sends an already encoded JSON payload as messageType.
func (h *Hub) BroadcastRaw(messageType string, payload []byte) {
	if !json.Valid(payload) {
		logging.Warn().Str("component", "websocket").Str("message_type", messageType).Msg("Dropping invalid JSON payload")
		return
	}
	h.BroadcastJSON(messageType, json.RawMessage(payload))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
