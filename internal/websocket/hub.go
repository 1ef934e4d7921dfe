// Package websocket serves the record store's change feed to remote
// clients: each connection manages its own table subscriptions.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/fampulse/internal/recordstore"
)

// Feed is the change source connections subscribe to.
type Feed interface {
	Subscribe(table string, filter *recordstore.Filter, onChange func(recordstore.Change)) (recordstore.Subscription, error)
	Unsubscribe(sub recordstore.Subscription) error
}

// Hub maintains the set of active connections.
type Hub struct {
	feed   Feed
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	onOpen  func()
	onClose func()
}

type Option func(*Hub)

// WithConnHooks registers callbacks for connections opening and closing.
func WithConnHooks(open, closed func()) Option {
	return func(h *Hub) { h.onOpen, h.onClose = open, closed }
}

// NewHub creates a new Hub.
func NewHub(feed Feed, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		feed:    feed,
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.onOpen != nil {
		h.onOpen()
	}
}

// Unregister drops the client's subscriptions, removes it from the hub and
// closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	c.unsubscribeAll()
	c.closeSend()
	if h.onClose != nil {
		h.onClose()
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.enqueue(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
