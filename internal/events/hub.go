package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"parley/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Hub maps userID -> set of websocket clients and fans published envelopes
// out to each recipient's connections, filtered by per-client subscriptions.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "event hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}

	if len(m) >= maxConnsPerUser {
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++

	return client, nil
}

// UnregisterClient removes a client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		client.dropSubscriptionGauges()
	}
}

// IsOnline reports whether a user currently has at least one active websocket connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// eventFrame is the shape pushed to websocket clients.
type eventFrame struct {
	Type    string          `json:"type"`
	Topic   Topic           `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Deliver fans an envelope out to every recipient's connections that are
// subscribed to the envelope's topic. Connected clients without a matching
// subscription receive nothing.
func (h *Hub) Deliver(env Envelope) {
	frame, err := json.Marshal(eventFrame{
		Type:    "event",
		Topic:   env.Topic,
		Payload: env.Payload,
	})
	if err != nil {
		log.Printf("failed to marshal event frame for topic %s: %v", env.Topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for _, userID := range env.Recipients {
		clients, ok := h.conns[userID]
		if !ok {
			continue
		}
		for c := range clients {
			if !c.Subscribed(env.Topic) {
				continue
			}
			c.TrySend(frame)
			delivered = true
		}
	}
	if delivered {
		observability.EventsDelivered.WithLabelValues(string(env.Topic)).Inc()
	}
}

// StartWiring connects the bus to this hub: envelopes published anywhere in
// the cluster are fanned out to local websocket clients.
func (h *Hub) StartWiring(ctx context.Context, bus *Bus) error {
	return bus.StartSubscriber(ctx, h.Deliver)
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	close(h.done)

	return nil
}
