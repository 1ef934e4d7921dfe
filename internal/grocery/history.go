package grocery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/ledger"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// HistoryLimit caps the number of history records loaded.
const HistoryLimit = 50

// HistoryFilter narrows the history view. From and To are calendar days;
// zero values leave that end open.
type HistoryFilter struct {
	Search string
	From   time.Time
	To     time.Time
}

func (f HistoryFilter) filters() []recordstore.Filter {
	var fs []recordstore.Filter
	if term := strings.TrimSpace(f.Search); term != "" {
		fs = append(fs, recordstore.ILike("item_name", "%"+term+"%"))
	}
	if !f.From.IsZero() {
		fs = append(fs, recordstore.Gte("bought_at", dayStart(f.From)))
	}
	if !f.To.IsZero() {
		fs = append(fs, recordstore.Lt("bought_at", dayStart(f.To).AddDate(0, 0, 1)))
	}
	return fs
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Service) loadHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	s.mu.Lock()
	f := s.historyFilter
	s.mu.Unlock()

	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_history",
		Filters: append([]recordstore.Filter{s.family()}, f.filters()...),
		Order:   []recordstore.Order{recordstore.Desc("bought_at")},
		Limit:   HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	records := make([]model.HistoryRecord, len(rows))
	for i, r := range rows {
		records[i] = historyFromRow(r)
	}
	return records, nil
}

// ShowHistory activates or hides the history scope. Showing it loads it.
func (s *Service) ShowHistory(ctx context.Context, show bool) error {
	s.History.SetActive(show)
	if !show {
		return nil
	}
	return s.History.Refresh(ctx)
}

// SetHistoryFilter replaces the history filter and reloads the history.
func (s *Service) SetHistoryFilter(ctx context.Context, f HistoryFilter) error {
	if !f.From.IsZero() && !f.To.IsZero() && dayStart(f.To).Before(dayStart(f.From)) {
		return optimistic.Invalid("to", "end date is before start date")
	}
	s.mu.Lock()
	s.historyFilter = f
	s.mu.Unlock()
	if !s.History.Active() {
		return nil
	}
	return s.History.Refresh(ctx)
}

// HistoryFilter returns the current history filter.
func (s *Service) HistoryFilter() HistoryFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyFilter
}

// HistoryLine is a history record with its price change since the previous
// priced purchase of the same item.
type HistoryLine struct {
	model.HistoryRecord
	Trend decimal.NullDecimal
}

// HistoryLines pairs the history snapshot with price trends.
func (s *Service) HistoryLines() []HistoryLine {
	records := s.History.Get()
	trends := ledger.PriceTrends(records)
	lines := make([]HistoryLine, len(records))
	for i, r := range records {
		lines[i] = HistoryLine{HistoryRecord: r, Trend: trends[i]}
	}
	return lines
}

// Spent totals the priced records in the history snapshot.
func (s *Service) Spent() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.History.Get() {
		if r.Price != nil {
			total = total.Add(decimal.NewFromFloat(*r.Price))
		}
	}
	return total
}

// DeleteHistory removes a history record. Only admins may; the caller is
// expected to have confirmed.
func (s *Service) DeleteHistory(ctx context.Context, id string) error {
	if !family.CanDeleteHistory(s.session.Role) {
		return optimistic.Reject(ErrForbidden)
	}
	return s.mut.Do(ctx, optimistic.Command{
		Action: "delete history",
		Apply: func() func() {
			return s.History.Apply(func(cur []model.HistoryRecord) []model.HistoryRecord {
				return without(cur, func(r model.HistoryRecord) bool { return r.ID == id })
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Delete(ctx, "grocery_history", s.family(), recordstore.Eq("id", id))
		},
	})
}
