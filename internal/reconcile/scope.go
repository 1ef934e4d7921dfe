package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
)

type refresher interface {
	Name() string
	Tables() []string
	Active() bool
	Refresh(ctx context.Context) error
}

// Scope is one slice of the cache: the value of a single filtered read,
// replaced whole on every refresh.
type Scope[T any] struct {
	cache  *Cache
	name   string
	tables []string
	load   func(ctx context.Context) (T, error)

	issued atomic.Int64
	active atomic.Bool

	mu      sync.RWMutex
	value   T
	loaded  bool
	applied int64
	version int64
}

// NewScope registers a scope on c. load re-issues the scope's read; tables
// lists every table whose changes may affect the result.
func NewScope[T any](c *Cache, name string, load func(ctx context.Context) (T, error), tables ...string) *Scope[T] {
	s := &Scope[T]{cache: c, name: name, tables: tables, load: load}
	s.active.Store(true)
	c.register(s)
	return s
}

func (s *Scope[T]) Name() string     { return s.name }
func (s *Scope[T]) Tables() []string { return s.tables }
func (s *Scope[T]) Active() bool     { return s.active.Load() }

// SetActive toggles whether polling and push notifications refresh the
// scope. Activating a scope does not load it; call Refresh.
func (s *Scope[T]) SetActive(active bool) { s.active.Store(active) }

// Get returns the current snapshot.
func (s *Scope[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Loaded reports whether a refresh has landed yet.
func (s *Scope[T]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Refresh re-reads the scope and replaces its value. A completion that was
// issued before the last applied one is discarded. On error the previous
// snapshot stays in place.
func (s *Scope[T]) Refresh(ctx context.Context) error {
	seq := s.issued.Add(1)
	v, err := s.load(ctx)
	if err != nil {
		s.cache.stats.failures.Add(1)
		return err
	}

	s.mu.Lock()
	if seq <= s.applied {
		s.mu.Unlock()
		s.cache.stats.stale.Add(1)
		return nil
	}
	s.applied = seq
	s.value = v
	s.loaded = true
	s.version++
	s.mu.Unlock()

	s.cache.stats.refreshes.Add(1)
	s.cache.notify(s.name)
	return nil
}

// Apply replaces the value with fn(current) ahead of a remote write. fn must
// return a new value rather than mutate its argument. The returned undo
// restores the previous value unless something newer has landed since.
func (s *Scope[T]) Apply(fn func(T) T) (undo func()) {
	s.mu.Lock()
	prev := s.value
	s.value = fn(s.value)
	s.version++
	mine := s.version
	s.mu.Unlock()
	s.cache.notify(s.name)

	return func() {
		s.mu.Lock()
		if s.version != mine {
			s.mu.Unlock()
			return
		}
		s.value = prev
		s.version++
		s.mu.Unlock()
		s.cache.notify(s.name)
	}
}
