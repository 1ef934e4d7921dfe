// Package remote is the terminal client's record store: reads and writes go
// to the backend's REST API and change notifications arrive over its
// realtime WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/fampulse/internal/recordstore"
)

var _ recordstore.Store = (*Client)(nil)

// StatusError is a non-2xx answer other than a validation failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client talks to a fampulse backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger

	onReconnect func()
	minBackoff  time.Duration
	maxBackoff  time.Duration

	mu     sync.Mutex
	nextID int64
	subs   map[int64]*subscription
	conn   *ws.Conn
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithReconnectHook registers fn to run after the realtime connection is
// re-established, when changes may have been missed.
func WithReconnectHook(fn func()) Option { return func(c *Client) { c.onReconnect = fn } }

// WithBackoff bounds the delay between realtime reconnect attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = min, max }
}

func New(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		subs:       make(map[int64]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", recordstore.ErrInvalid, body.Error)
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// encodeFilters converts filter values to their wire form so dates and
// timestamps compare the way the store stores them.
func encodeFilters(t *recordstore.Table, filters []recordstore.Filter) ([]recordstore.Filter, error) {
	out := make([]recordstore.Filter, len(filters))
	for i, f := range filters {
		enc, err := t.EncodeFilter(f)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func encodeRows(t *recordstore.Table, rows []recordstore.Row) ([]recordstore.Row, error) {
	out := make([]recordstore.Row, len(rows))
	for i, r := range rows {
		enc, err := t.EncodeRow(r)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func (c *Client) Select(ctx context.Context, q recordstore.Query) ([]recordstore.Row, error) {
	t, err := recordstore.Lookup(q.Table)
	if err != nil {
		return nil, err
	}
	if q.Filters, err = encodeFilters(t, q.Filters); err != nil {
		return nil, err
	}
	var rows []recordstore.Row
	if err := c.do(ctx, http.MethodPost, tablePath(q.Table)+"/select", q, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	return rows, nil
}

type rowsRequest struct {
	Rows       []recordstore.Row `json:"rows"`
	OnConflict []string          `json:"on_conflict,omitempty"`
}

func (c *Client) Insert(ctx context.Context, table string, rows ...recordstore.Row) ([]recordstore.Row, error) {
	t, err := recordstore.Lookup(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	enc, err := encodeRows(t, rows)
	if err != nil {
		return nil, err
	}
	var stored []recordstore.Row
	if err := c.do(ctx, http.MethodPost, tablePath(table), rowsRequest{Rows: enc}, &stored); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return stored, nil
}

func (c *Client) Update(ctx context.Context, table string, patch recordstore.Row, filters ...recordstore.Filter) error {
	t, err := recordstore.Lookup(table)
	if err != nil {
		return err
	}
	enc, err := t.EncodeRow(patch)
	if err != nil {
		return err
	}
	fs, err := encodeFilters(t, filters)
	if err != nil {
		return err
	}
	body := struct {
		Patch   recordstore.Row      `json:"patch"`
		Filters []recordstore.Filter `json:"filters"`
	}{enc, fs}
	if err := c.do(ctx, http.MethodPatch, tablePath(table), body, nil); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, table string, rows []recordstore.Row, conflict ...string) error {
	t, err := recordstore.Lookup(table)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	enc, err := encodeRows(t, rows)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPut, tablePath(table), rowsRequest{Rows: enc, OnConflict: conflict}, nil); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, table string, filters ...recordstore.Filter) error {
	t, err := recordstore.Lookup(table)
	if err != nil {
		return err
	}
	fs, err := encodeFilters(t, filters)
	if err != nil {
		return err
	}
	body := struct {
		Filters []recordstore.Filter `json:"filters"`
	}{fs}
	if err := c.do(ctx, http.MethodDelete, tablePath(table), body, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// Upload stores body under path in the backend's object storage and returns
// its public URL.
func (c *Client) Upload(ctx context.Context, path string, body io.Reader, contentType string) (string, error) {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/storage/v1/object/"+strings.Join(segments, "/"), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if out.URL == "" {
		return "", errors.New("upload: server returned no url")
	}
	return out.URL, nil
}
