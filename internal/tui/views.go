package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/fampulse/internal/reconcile"
)

// views keeps only the visible module's cache polling and subscribed.
type views struct {
	caches map[string]*reconcile.Cache

	mu   sync.Mutex
	want string

	// syncMu is held while caches start and stop, which may wait on
	// refreshes that are sending to the program.
	syncMu sync.Mutex
}

func newViews(caches map[string]*reconcile.Cache) *views {
	return &views{caches: caches}
}

// show records mod as the visible module. It does not block; sync applies it.
func (v *views) show(mod string) {
	v.mu.Lock()
	v.want = mod
	v.mu.Unlock()
}

// sync stops every cache but the visible module's and starts that one,
// which refreshes it right away.
func (v *views) sync(ctx context.Context) error {
	v.syncMu.Lock()
	defer v.syncMu.Unlock()

	v.mu.Lock()
	visible := v.caches[v.want]
	v.mu.Unlock()

	for _, c := range v.caches {
		if c != visible {
			c.Stop()
		}
	}
	if visible == nil {
		return nil
	}
	return visible.Start(ctx)
}

// mount brings the caches in line with the current module off the UI
// goroutine.
func (m Model) mount() tea.Cmd {
	if m.views == nil || len(m.views.caches) == 0 {
		return nil
	}
	v, ctx := m.views, m.ctx
	return func() tea.Msg {
		if err := v.sync(ctx); err != nil {
			return doneMsg{err: err}
		}
		return nil
	}
}
