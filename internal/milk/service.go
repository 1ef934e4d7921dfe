// Package milk tracks the daily milk delivery calendar, the vendor's rates,
// and payments against the running bill.
package milk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/fampulse/internal/ledger"
	"github.com/dukerupert/fampulse/internal/messaging"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

var (
	ErrDayLocked  = errors.New("this day is already paid for and cannot be changed")
	ErrNoDefaults = errors.New("please set the default quantity and packet price first")
	ErrForbidden  = errors.New("only admins can restore a cancelled delivery")
	ErrNoVendor   = errors.New("no vendor contact saved")
	ErrPaidUp     = errors.New("nothing is due yet")
)

// Notifier tells the rest of the family about an action.
type Notifier interface {
	NotifyFamily(ctx context.Context, familyID, actorID, actionType, message string)
}

// Period is the unpaid stretch: the last payment, if any, and every
// delivery recorded after it.
type Period struct {
	LastPayment *model.MilkPayment
	Deliveries  []model.MilkDelivery
}

// Service is the milk view of one session.
type Service struct {
	store    recordstore.Store
	mut      *optimistic.Mutator
	notifier Notifier
	opener   messaging.Opener
	logger   *slog.Logger
	session  model.Session
	now      func() time.Time

	mu    sync.Mutex
	month time.Time

	Defaults *reconcile.Scope[*model.MilkDefaults]
	Advance  *reconcile.Scope[decimal.Decimal]
	Payments *reconcile.Scope[[]model.MilkPayment]
	Month    *reconcile.Scope[[]model.MilkDelivery]
	Period   *reconcile.Scope[Period]
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store recordstore.Store, cache *reconcile.Cache, mut *optimistic.Mutator, opener messaging.Opener, session model.Session, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		mut:     mut,
		opener:  opener,
		logger:  logger,
		session: session,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.month = firstOfMonth(s.today())

	s.Defaults = reconcile.NewScope(cache, "milk defaults", s.loadDefaults, "milk_defaults")
	s.Advance = reconcile.NewScope(cache, "milk advance", s.loadAdvance, "milk_advance")
	s.Payments = reconcile.NewScope(cache, "milk payments", s.loadPayments, "milk_payments")
	s.Month = reconcile.NewScope(cache, "milk month", s.loadMonth, "milk_deliveries")
	s.Period = reconcile.NewScope(cache, "milk pending", s.loadPeriod, "milk_deliveries", "milk_payments")
	return s
}

func (s *Service) today() time.Time { return ledger.Day(s.now()) }

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) family() recordstore.Filter { return recordstore.Eq("family_id", s.session.FamilyID) }

// DisplayedMonth is the first day of the month the calendar shows.
func (s *Service) DisplayedMonth() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.month
}

// SetMonth switches the calendar to the month containing t and reloads it.
func (s *Service) SetMonth(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	s.month = firstOfMonth(t)
	s.mu.Unlock()
	return s.Month.Refresh(ctx)
}

// ShiftMonth moves the calendar by n months.
func (s *Service) ShiftMonth(ctx context.Context, n int) error {
	return s.SetMonth(ctx, s.DisplayedMonth().AddDate(0, n, 0))
}

func (s *Service) loadDefaults(ctx context.Context) (*model.MilkDefaults, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "milk_defaults",
		Filters: []recordstore.Filter{s.family()},
	})
	if err != nil {
		return nil, fmt.Errorf("load milk defaults: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	d := defaultsFromRow(row)
	return &d, nil
}

func (s *Service) loadAdvance(ctx context.Context) (decimal.Decimal, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "milk_advance",
		Filters: []recordstore.Filter{s.family()},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("load milk advance: %w", err)
	}
	if row == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(row.Float("balance")), nil
}

func (s *Service) loadPayments(ctx context.Context) ([]model.MilkPayment, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "milk_payments",
		Filters: []recordstore.Filter{s.family()},
		Order:   []recordstore.Order{recordstore.Desc("to_date"), recordstore.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("load milk payments: %w", err)
	}
	payments := make([]model.MilkPayment, len(rows))
	for i, r := range rows {
		payments[i] = paymentFromRow(r)
	}
	return payments, nil
}

func (s *Service) loadMonth(ctx context.Context) ([]model.MilkDelivery, error) {
	first := s.DisplayedMonth()
	return s.deliveries(ctx,
		recordstore.Gte("delivery_date", first),
		recordstore.Lte("delivery_date", first.AddDate(0, 1, -1)))
}

func (s *Service) loadPeriod(ctx context.Context) (Period, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "milk_payments",
		Filters: []recordstore.Filter{s.family()},
		Order:   []recordstore.Order{recordstore.Desc("to_date"), recordstore.Desc("created_at")},
	})
	if err != nil {
		return Period{}, fmt.Errorf("load last milk payment: %w", err)
	}
	var p Period
	var filters []recordstore.Filter
	if row != nil {
		last := paymentFromRow(row)
		p.LastPayment = &last
		filters = append(filters, recordstore.Gt("delivery_date", last.ToDate))
	}
	if p.Deliveries, err = s.deliveries(ctx, filters...); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (s *Service) deliveries(ctx context.Context, filters ...recordstore.Filter) ([]model.MilkDelivery, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "milk_deliveries",
		Filters: append([]recordstore.Filter{s.family()}, filters...),
		Order:   []recordstore.Order{recordstore.Asc("delivery_date")},
	})
	if err != nil {
		return nil, fmt.Errorf("load milk deliveries: %w", err)
	}
	out := make([]model.MilkDelivery, len(rows))
	for i, r := range rows {
		out[i] = deliveryFromRow(r)
	}
	return out, nil
}

// rates returns the saved rates, or zero rates before defaults exist.
func (s *Service) rates() ledger.Rates {
	d := s.Defaults.Get()
	if d == nil {
		return ledger.Rates{ChargeType: model.ChargeMonthly}
	}
	return ledger.RatesFrom(*d)
}

// MonthSummary bills the displayed month.
func (s *Service) MonthSummary() ledger.Summary {
	first := s.DisplayedMonth()
	return ledger.MonthTotal(s.Month.Get(), first.Year(), first.Month(), s.rates())
}

// Pending bills everything delivered since the last payment, net of the
// advance.
func (s *Service) Pending() ledger.Pending {
	p := s.Period.Get()
	return ledger.PendingTotal(p.Deliveries, p.LastPayment, s.Advance.Get(), s.rates(), s.today())
}

// MessageVendor opens a message to the saved vendor contact.
func (s *Service) MessageVendor(ctx context.Context, text string) error {
	d := s.Defaults.Get()
	if d == nil || d.VendorContact == "" {
		return optimistic.Reject(ErrNoVendor)
	}
	if err := s.opener.Open(ctx, messaging.Link(d.VendorContact, text)); err != nil {
		return &optimistic.Error{Action: "message vendor", Err: err}
	}
	return nil
}

type refreshable interface {
	Name() string
	Refresh(ctx context.Context) error
}

func (s *Service) refresh(ctx context.Context, scopes ...refreshable) {
	for _, scope := range scopes {
		if err := scope.Refresh(ctx); err != nil {
			s.logger.Warn("refresh after mutation failed", "scope", scope.Name(), "error", err)
		}
	}
}
