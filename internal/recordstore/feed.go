package recordstore

import (
	"log/slog"
	"sync"
	"time"
)

type subscriber struct {
	sub Subscription
	fn  func(Change)
}

// Feed fans row changes out to subscribers keyed by table and row filter.
type Feed struct {
	mu     sync.RWMutex
	nextID int64
	seq    int64
	subs   map[int64]subscriber
	logger *slog.Logger
	now    func() time.Time
}

// NewFeed creates an empty Feed.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		subs:   make(map[int64]subscriber),
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers fn for changes on table whose row matches filter.
// A nil filter matches every row.
func (f *Feed) Subscribe(table string, filter *Filter, fn func(Change)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := Subscription{ID: f.nextID, Table: table, Filter: filter}
	f.subs[sub.ID] = subscriber{sub: sub, fn: fn}
	return sub
}

// Unsubscribe removes sub. Unknown subscriptions are ignored.
func (f *Feed) Unsubscribe(sub Subscription) {
	f.mu.Lock()
	delete(f.subs, sub.ID)
	f.mu.Unlock()
}

// Publish stamps ch with the next sequence number and delivers it to every
// matching subscriber. Callbacks run on the caller's goroutine, outside the lock.
func (f *Feed) Publish(ch Change) {
	f.mu.Lock()
	f.seq++
	ch.Seq = f.seq
	if ch.At.IsZero() {
		ch.At = f.now().UTC()
	}
	var targets []func(Change)
	for _, s := range f.subs {
		if s.sub.Table == ch.Table && s.sub.matches(ch) {
			targets = append(targets, s.fn)
		}
	}
	f.mu.Unlock()

	f.logger.Debug("change published", "table", ch.Table, "type", ch.Type, "seq", ch.Seq, "subscribers", len(targets))
	for _, fn := range targets {
		fn(ch)
	}
}

// Count returns the number of live subscriptions.
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// matches checks the new row, and for updates and deletes the old one too,
// so a row leaving the filtered set still notifies.
func (s Subscription) matches(ch Change) bool {
	if s.Filter == nil {
		return true
	}
	if ch.New != nil && s.Filter.Match(ch.New) {
		return true
	}
	return ch.Old != nil && s.Filter.Match(ch.Old)
}
