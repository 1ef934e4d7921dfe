package grocery

import (
	"context"

	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/gesture"
	"github.com/dukerupert/fampulse/internal/model"
)

// Swipe carries out the outcome of a released shopping-row gesture: Delete
// removes the entry and Buy completes the purchase at price, which may be
// nil. Other outcomes do nothing.
func (s *Service) Swipe(ctx context.Context, entryID string, outcome gesture.Outcome, price *float64) error {
	switch outcome {
	case gesture.Delete:
		return s.Delete(ctx, entryID)
	case gesture.Buy:
		return s.CompletePurchase(ctx, entryID, price)
	}
	return nil
}

// HistorySwipe returns the record a released history gesture asks to
// delete. Nothing is deleted until the caller confirms with DeleteHistory.
func (s *Service) HistorySwipe(id string, outcome gesture.Outcome) (model.HistoryRecord, bool) {
	if outcome != gesture.Delete || !family.CanDeleteHistory(s.session.Role) {
		return model.HistoryRecord{}, false
	}
	for _, r := range s.History.Get() {
		if r.ID == id {
			return r, true
		}
	}
	return model.HistoryRecord{}, false
}
