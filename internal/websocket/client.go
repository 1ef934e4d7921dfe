package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/fampulse/internal/recordstore"
)

const (
	sendBufferSize   = 64
	pingInterval     = 30 * time.Second
	maxSubscriptions = 64
)

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn

	mu      sync.Mutex
	send    chan []byte
	closed  bool
	dropped int
	subs    map[string]recordstore.Subscription
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]recordstore.Subscription),
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump handles subscribe and unsubscribe frames. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			c.reply(ErrorMessage("", errors.New("binary frames are not supported")))
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ErrorMessage("", fmt.Errorf("malformed message: %w", err)))
			continue
		}
		c.reply(c.handle(msg))
	}
}

// handle applies one client frame and returns the reply.
func (c *Client) handle(msg Message) Message {
	if msg.Sub == "" {
		return ErrorMessage("", errors.New("sub is required"))
	}
	switch msg.Type {
	case TypeSubscribe:
		if err := c.subscribe(msg.Sub, msg.Table, msg.Filter); err != nil {
			return ErrorMessage(msg.Sub, err)
		}
		return Message{Type: TypeSubscribed, Sub: msg.Sub, Table: msg.Table, Filter: msg.Filter}
	case TypeUnsubscribe:
		if err := c.unsubscribe(msg.Sub); err != nil {
			return ErrorMessage(msg.Sub, err)
		}
		return Message{Type: TypeUnsubscribed, Sub: msg.Sub}
	}
	return ErrorMessage(msg.Sub, fmt.Errorf("unknown message type %q", msg.Type))
}

func (c *Client) subscribe(ref, table string, filter *recordstore.Filter) error {
	c.mu.Lock()
	_, dup := c.subs[ref]
	full := len(c.subs) >= maxSubscriptions
	c.mu.Unlock()
	switch {
	case dup:
		return fmt.Errorf("subscription %q already exists", ref)
	case full:
		return fmt.Errorf("too many subscriptions (max %d)", maxSubscriptions)
	}

	sub, err := c.hub.feed.Subscribe(table, filter, func(ch recordstore.Change) {
		data, err := json.Marshal(Message{Type: TypeChange, Sub: ref, Change: &ch})
		if err != nil {
			c.hub.logger.Error("marshal change", "table", ch.Table, "error", err)
			return
		}
		c.enqueue(data)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.hub.feed.Unsubscribe(sub)
		return errors.New("connection closed")
	}
	c.subs[ref] = sub
	c.mu.Unlock()
	c.hub.logger.Debug("subscribed", "sub", ref, "table", table)
	return nil
}

func (c *Client) unsubscribe(ref string) error {
	c.mu.Lock()
	sub, ok := c.subs[ref]
	delete(c.subs, ref)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription %q", ref)
	}
	return c.hub.feed.Unsubscribe(sub)
}

func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]recordstore.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		if err := c.hub.feed.Unsubscribe(sub); err != nil {
			c.hub.logger.Warn("unsubscribe on close", "table", sub.Table, "error", err)
		}
	}
}

// Subscriptions returns the number of live subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal reply", "error", err)
		return
	}
	c.enqueue(data)
}

// enqueue never blocks: when the buffer is full the frame is dropped and the
// client's poller catches up.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.dropped++
		if c.dropped == 1 || c.dropped%100 == 0 {
			c.hub.logger.Warn("client send buffer full, dropping frames", "dropped", c.dropped)
		}
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

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel; connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
