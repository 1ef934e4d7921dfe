// Package reconcile keeps a client-local, eventually consistent mirror of the
// remote rows a view needs. Every slice is refreshed whole from the store,
// on push notifications and on a fixed polling interval.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/fampulse/internal/recordstore"
)

const DefaultPollInterval = 3 * time.Second

var ErrClosed = errors.New("reconcile: cache closed")

// Stats counts refresh outcomes since the cache was created.
type Stats struct {
	Refreshes int64
	Failures  int64
	Stale     int64
}

type counters struct {
	refreshes atomic.Int64
	failures  atomic.Int64
	stale     atomic.Int64
}

// Cache owns the scopes of one view, their change subscriptions and the
// polling loop.
type Cache struct {
	store    recordstore.Store
	filter   *recordstore.Filter
	interval time.Duration
	logger   *slog.Logger
	stats    counters

	// run serializes Start, Stop and Close.
	run sync.Mutex

	mu        sync.RWMutex
	scopes    []refresher
	listeners []func(scope string)
	subs      []recordstore.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

type Option func(*Cache)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithFilter restricts change subscriptions to matching rows, typically
// family_id = X. Tables without the filter column are subscribed unfiltered.
func WithFilter(f recordstore.Filter) Option {
	return func(c *Cache) { c.filter = &f }
}

func New(store recordstore.Store, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		interval: DefaultPollInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) register(r refresher) {
	c.mu.Lock()
	c.scopes = append(c.scopes, r)
	c.mu.Unlock()
}

// OnUpdate registers fn to be called with the scope name after every applied
// change. Listeners run on the goroutine that applied the change.
func (c *Cache) OnUpdate(fn func(scope string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Cache) notify(scope string) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(scope)
	}
}

func (c *Cache) Stats() Stats {
	return Stats{
		Refreshes: c.stats.refreshes.Load(),
		Failures:  c.stats.failures.Load(),
		Stale:     c.stats.stale.Load(),
	}
}

// Start subscribes to every table the scopes derive from and launches the
// polling loop, which refreshes all active scopes immediately and then on
// every tick. It returns immediately. A stopped cache may be started again.
func (c *Cache) Start(ctx context.Context) error {
	c.run.Lock()
	defer c.run.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = runCtx, cancel
	tables := c.tablesLocked()
	c.mu.Unlock()

	var subs []recordstore.Subscription
	for _, table := range tables {
		sub, err := c.store.Subscribe(table, c.filterFor(table), c.onChange)
		if err != nil {
			c.logger.Warn("subscribe failed, relying on polling", "table", table, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	c.mu.Lock()
	c.subs = append(c.subs, subs...)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			c.RefreshAll(runCtx)
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Running reports whether the cache is started.
func (c *Cache) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancel != nil
}

// Stop cancels polling, drops the change subscriptions and waits for
// in-flight refreshes. The snapshots stay readable and Start resumes.
func (c *Cache) Stop() {
	c.run.Lock()
	defer c.run.Unlock()
	c.stopLocked(false)
}

func (c *Cache) tablesLocked() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, s := range c.scopes {
		for _, t := range s.Tables() {
			if !seen[t] {
				seen[t] = true
				tables = append(tables, t)
			}
		}
	}
	return tables
}

func (c *Cache) filterFor(table string) *recordstore.Filter {
	if c.filter == nil {
		return nil
	}
	t, err := recordstore.Lookup(table)
	if err != nil || !t.HasColumn(c.filter.Column) {
		return nil
	}
	return c.filter
}

// onChange refreshes, off the notifying goroutine, every active scope
// derived from the changed table.
func (c *Cache) onChange(ch recordstore.Change) {
	c.mu.Lock()
	if c.closed || c.ctx == nil {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.RefreshTable(ctx, ch.Table)
	}()
}

// RefreshAll refreshes every active scope. Failures are logged and leave
// the previous snapshot in place.
func (c *Cache) RefreshAll(ctx context.Context) {
	for _, s := range c.snapshot() {
		if s.Active() {
			c.refresh(ctx, s)
		}
	}
}

// RefreshTable refreshes every active scope derived from table.
func (c *Cache) RefreshTable(ctx context.Context, table string) {
	for _, s := range c.snapshot() {
		if !s.Active() {
			continue
		}
		for _, t := range s.Tables() {
			if t == table {
				c.refresh(ctx, s)
				break
			}
		}
	}
}

func (c *Cache) snapshot() []refresher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]refresher(nil), c.scopes...)
}

func (c *Cache) refresh(ctx context.Context, s refresher) {
	if ctx.Err() != nil {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("refresh failed", "scope", s.Name(), "error", err)
	}
}

// Close stops the cache for good. Update listeners are not called
// afterwards and Start fails with ErrClosed.
func (c *Cache) Close() {
	c.run.Lock()
	defer c.run.Unlock()
	c.stopLocked(true)
}

func (c *Cache) stopLocked(final bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = final
	cancel := c.cancel
	subs := c.subs
	c.ctx, c.cancel, c.subs = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		if err := c.store.Unsubscribe(sub); err != nil {
			c.logger.Debug("unsubscribe failed", "table", sub.Table, "error", err)
		}
	}
	c.wg.Wait()
}
