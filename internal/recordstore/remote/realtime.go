package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/websocket"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

var errServerClosing = errors.New("server closing")

type subscription struct {
	table    string
	filter   *recordstore.Filter
	onChange func(recordstore.Change)
}

func (s *subscription) message(id int64) websocket.Message {
	return websocket.Message{
		Type:   websocket.TypeSubscribe,
		Sub:    strconv.FormatInt(id, 10),
		Table:  s.table,
		Filter: s.filter,
	}
}

// Subscribe registers onChange for changes to table. The subscription
// survives reconnects; while disconnected it is simply quiet.
func (c *Client) Subscribe(table string, filter *recordstore.Filter, onChange func(recordstore.Change)) (recordstore.Subscription, error) {
	t, err := recordstore.Lookup(table)
	if err != nil {
		return recordstore.Subscription{}, err
	}
	s := &subscription{table: table, onChange: onChange}
	if filter != nil {
		enc, err := t.EncodeFilter(*filter)
		if err != nil {
			return recordstore.Subscription{}, err
		}
		s.filter = &enc
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = s
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.write(conn, s.message(id))
	}
	return recordstore.Subscription{ID: id, Table: table, Filter: filter}, nil
}

func (c *Client) Unsubscribe(sub recordstore.Subscription) error {
	c.mu.Lock()
	_, ok := c.subs[sub.ID]
	delete(c.subs, sub.ID)
	conn := c.conn
	c.mu.Unlock()

	if ok && conn != nil {
		c.write(conn, websocket.Message{Type: websocket.TypeUnsubscribe, Sub: strconv.FormatInt(sub.ID, 10)})
	}
	return nil
}

// Connected reports whether the realtime connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// write sends msg, logging failures; the read loop notices a broken
// connection and reconnects.
func (c *Client) write(conn *ws.Conn, msg websocket.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		c.logger.Debug("realtime write failed", "type", msg.Type, "sub", msg.Sub, "error", err)
	}
}

func (c *Client) realtimeURL() string {
	u := c.baseURL + "/realtime/v1"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) dial(ctx context.Context) (*ws.Conn, error) {
	opts := &ws.DialOptions{HTTPClient: c.http}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}
	conn, resp, err := ws.Dial(ctx, c.realtimeURL(), opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// Run keeps the realtime connection open until ctx is done, reconnecting
// with capped exponential backoff and re-sending every live subscription.
// The reconnect hook runs after every connection but the first.
func (c *Client) Run(ctx context.Context) error {
	connected := false
	for {
		b := retry.WithJitterPercent(10, retry.WithCappedDuration(c.maxBackoff, retry.NewExponential(c.minBackoff)))
		var conn *ws.Conn
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			var err error
			if conn, err = c.dial(ctx); err != nil {
				c.logger.Warn("realtime connect failed", "error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c.logger.Info("realtime connected")
		if connected && c.onReconnect != nil {
			c.onReconnect()
		}
		connected = true

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("realtime disconnected", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.minBackoff):
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *ws.Conn) error {
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	pending := make(map[int64]*subscription, len(c.subs))
	for id, s := range c.subs {
		pending[id] = s
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for id, s := range pending {
		if err := wsjson.Write(ctx, conn, s.message(id)); err != nil {
			return fmt.Errorf("resubscribe %s: %w", s.table, err)
		}
	}

	for {
		var msg websocket.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		switch msg.Type {
		case websocket.TypeChange:
			c.dispatch(msg)
		case websocket.TypeError:
			c.logger.Warn("realtime error", "sub", msg.Sub, "error", msg.Error)
		case websocket.TypeClosing:
			conn.Close(ws.StatusNormalClosure, "")
			return errServerClosing
		}
	}
}

func (c *Client) dispatch(msg websocket.Message) {
	if msg.Change == nil {
		return
	}
	id, err := strconv.ParseInt(msg.Sub, 10, 64)
	if err != nil {
		return
	}
	c.mu.Lock()
	s, ok := c.subs[id]
	c.mu.Unlock()
	if ok {
		s.onChange(*msg.Change)
	}
}
