// Package notify records family activity notifications and lets a member
// read and watch their own.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

const DefaultLimit = 50

// Action types.
const (
	GroceryAdded   = "grocery_added"
	MemberJoined   = "member_joined"
	MilkPayment    = "milk_payment"
	DeliveryChange = "milk_delivery"
)

type Service struct {
	store  recordstore.Store
	logger *slog.Logger
}

func New(store recordstore.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// NotifyFamily inserts one unread notification for every member of the
// family except the actor. Failures are logged, never returned.
func (s *Service) NotifyFamily(ctx context.Context, familyID, actorID, actionType, message string) {
	members, err := s.store.Select(ctx, recordstore.Query{
		Table:   "family_members",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", familyID)},
	})
	if err != nil {
		s.logger.Error("list members for notification", "family_id", familyID, "error", err)
		return
	}

	var rows []recordstore.Row
	for _, m := range members {
		userID := m.String("user_id")
		if userID == "" || userID == actorID {
			continue
		}
		rows = append(rows, recordstore.Row{
			"family_id":   familyID,
			"user_id":     userID,
			"actor_id":    actorID,
			"action_type": actionType,
			"message":     message,
			"read":        false,
		})
	}
	if len(rows) == 0 {
		return
	}
	if _, err := s.store.Insert(ctx, "notifications", rows...); err != nil {
		s.logger.Error("insert notifications", "family_id", familyID, "action", actionType, "error", err)
		return
	}
	s.logger.Debug("family notified", "family_id", familyID, "action", actionType, "recipients", len(rows))
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "notifications",
		Filters: []recordstore.Filter{recordstore.Eq("user_id", userID)},
		Order:   []recordstore.Order{recordstore.Desc("created_at")},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]model.Notification, len(rows))
	for i, r := range rows {
		out[i] = FromRow(r)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "notifications",
		Filters: []recordstore.Filter{recordstore.Eq("user_id", userID), recordstore.Eq("read", false)},
	})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return len(rows), nil
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	if err := s.store.Update(ctx, "notifications", recordstore.Row{"read": true}, recordstore.Eq("id", id)); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	err := s.store.Update(ctx, "notifications", recordstore.Row{"read": true},
		recordstore.Eq("user_id", userID), recordstore.Eq("read", false))
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Watch calls fn for every new notification addressed to userID until the
// returned stop function is called.
func (s *Service) Watch(userID string, fn func(model.Notification)) (stop func(), err error) {
	filter := recordstore.Eq("user_id", userID)
	sub, err := s.store.Subscribe("notifications", &filter, func(ch recordstore.Change) {
		if ch.Type != recordstore.ChangeInsert || ch.New == nil {
			return
		}
		fn(FromRow(ch.New))
	})
	if err != nil {
		return nil, fmt.Errorf("watch notifications: %w", err)
	}
	return func() {
		if err := s.store.Unsubscribe(sub); err != nil {
			s.logger.Debug("unsubscribe notifications", "error", err)
		}
	}, nil
}

func FromRow(r recordstore.Row) model.Notification {
	return model.Notification{
		ID:         r.String("id"),
		FamilyID:   r.String("family_id"),
		UserID:     r.String("user_id"),
		ActorID:    r.String("actor_id"),
		ActionType: r.String("action_type"),
		Message:    r.String("message"),
		Read:       r.Bool("read"),
		CreatedAt:  r.Time("created_at"),
	}
}
