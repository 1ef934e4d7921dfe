package milk

import (
	"context"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/ledger"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// Step is the smallest delivery quantity in liters: one packet.
const Step = 0.5

var phonePattern = regexp.MustCompile(`^[+]?[0-9]{10,13}$`)

// DayState is what the calendar shows for one day.
type DayState int

const (
	Empty DayState = iota
	Delivered
	Cancelled
)

func (d DayState) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Cancelled:
		return "cancelled"
	}
	return "empty"
}

// Day is one cell of the displayed month.
type Day struct {
	Date     time.Time
	State    DayState
	Quantity float64
	Locked   bool
}

func stateOf(d *model.MilkDelivery) DayState {
	switch {
	case d == nil:
		return Empty
	case d.Cancelled || d.Quantity <= 0:
		return Cancelled
	}
	return Delivered
}

// Calendar lays out every day of the displayed month.
func (s *Service) Calendar() []Day {
	first := s.DisplayedMonth()
	lastPaid := s.lastPaid()
	deliveries := s.Month.Get()

	var days []Day
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		d := Day{Date: day, Locked: ledger.Locked(day, lastPaid)}
		if del := find(deliveries, day); del != nil {
			d.State = stateOf(del)
			d.Quantity = del.Quantity
		}
		days = append(days, d)
	}
	return days
}

func find(deliveries []model.MilkDelivery, day time.Time) *model.MilkDelivery {
	for i := range deliveries {
		if ledger.Day(deliveries[i].Date).Equal(day) {
			return &deliveries[i]
		}
	}
	return nil
}

// lastPaid is the end of the most recent payment period, if any.
func (s *Service) lastPaid() *time.Time {
	if p := s.Period.Get().LastPayment; p != nil {
		return &p.ToDate
	}
	if payments := s.Payments.Get(); len(payments) > 0 {
		return &payments[0].ToDate
	}
	return nil
}

func (s *Service) checkUnlocked(ctx context.Context, day time.Time) error {
	if !s.Period.Loaded() {
		if err := s.Period.Refresh(ctx); err != nil {
			return &optimistic.Error{Action: "check payments", Err: err}
		}
	}
	if ledger.Locked(day, s.lastPaid()) {
		return optimistic.Reject(ErrDayLocked)
	}
	return nil
}

// delivery returns the row for day, from the month snapshot when the day is
// displayed and from the store otherwise.
func (s *Service) delivery(ctx context.Context, day time.Time) (*model.MilkDelivery, error) {
	if firstOfMonth(day).Equal(s.DisplayedMonth()) && s.Month.Loaded() {
		if d := find(s.Month.Get(), day); d != nil {
			c := *d
			return &c, nil
		}
		return nil, nil
	}
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "milk_deliveries",
		Filters: []recordstore.Filter{s.family(), recordstore.Eq("delivery_date", day)},
	})
	if err != nil || row == nil {
		return nil, err
	}
	d := deliveryFromRow(row)
	return &d, nil
}

// ToggleDay cycles a day through empty, delivered at the default quantity
// and cancelled. Only admins bring a cancelled day back to empty. Days
// covered by a payment cannot change.
func (s *Service) ToggleDay(ctx context.Context, date time.Time) error {
	day := ledger.Day(date)
	if err := s.checkUnlocked(ctx, day); err != nil {
		return err
	}
	defaults := s.Defaults.Get()
	if defaults == nil {
		return optimistic.Reject(ErrNoDefaults)
	}
	cur, err := s.delivery(ctx, day)
	if err != nil {
		return &optimistic.Error{Action: "update delivery", Err: err}
	}

	var (
		next   *model.MilkDelivery
		remote func(ctx context.Context) error
		note   string
	)
	switch stateOf(cur) {
	case Empty:
		next = &model.MilkDelivery{
			ID:       uuid.NewString(),
			FamilyID: s.session.FamilyID,
			Date:     day,
			Quantity: defaults.DefaultQuantity,
		}
		remote = func(ctx context.Context) error {
			_, err := s.store.Insert(ctx, "milk_deliveries", recordstore.Row{
				"id":            next.ID,
				"family_id":     next.FamilyID,
				"delivery_date": day,
				"quantity":      next.Quantity,
				"cancelled":     false,
			})
			return err
		}
	case Delivered:
		c := *cur
		c.Cancelled = true
		next = &c
		remote = func(ctx context.Context) error {
			return s.store.Update(ctx, "milk_deliveries", recordstore.Row{"cancelled": true}, recordstore.Eq("id", cur.ID))
		}
		note = "Milk cancelled for " + day.Format("2 Jan")
	case Cancelled:
		if !family.CanEditDeliveries(s.session.Role) {
			return optimistic.Reject(ErrForbidden)
		}
		remote = func(ctx context.Context) error {
			return s.store.Delete(ctx, "milk_deliveries", recordstore.Eq("id", cur.ID))
		}
		note = "Milk delivery restored for " + day.Format("2 Jan")
	}

	err = s.mut.Do(ctx, optimistic.Command{
		Action: "update delivery",
		Apply:  s.setDay(day, next),
		Remote: remote,
	})
	if err != nil {
		return err
	}
	if note != "" && s.notifier != nil {
		s.notifier.NotifyFamily(ctx, s.session.FamilyID, s.session.UserID, notify.DeliveryChange, note)
	}
	s.refresh(ctx, s.Month, s.Period)
	return nil
}

// SetDayQuantity records a delivery of liters on date, replacing whatever
// the day held.
func (s *Service) SetDayQuantity(ctx context.Context, date time.Time, liters float64) error {
	if liters < Step || math.Mod(liters, Step) != 0 {
		return optimistic.Invalidf("quantity must be a multiple of %.1f liters", Step)
	}
	day := ledger.Day(date)
	if err := s.checkUnlocked(ctx, day); err != nil {
		return err
	}
	cur, err := s.delivery(ctx, day)
	if err != nil {
		return &optimistic.Error{Action: "update delivery", Err: err}
	}
	next := &model.MilkDelivery{ID: uuid.NewString(), FamilyID: s.session.FamilyID, Date: day, Quantity: liters}
	if cur != nil {
		next.ID = cur.ID
	}

	err = s.mut.Do(ctx, optimistic.Command{
		Action: "update delivery",
		Apply:  s.setDay(day, next),
		Remote: func(ctx context.Context) error {
			return s.store.Upsert(ctx, "milk_deliveries", []recordstore.Row{{
				"id":            next.ID,
				"family_id":     next.FamilyID,
				"delivery_date": day,
				"quantity":      liters,
				"cancelled":     false,
			}}, "family_id", "delivery_date")
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Month, s.Period)
	return nil
}

// setDay replaces the month snapshot's row for day with next, or removes it
// when next is nil.
func (s *Service) setDay(day time.Time, next *model.MilkDelivery) func() func() {
	return func() func() {
		return s.Month.Apply(func(cur []model.MilkDelivery) []model.MilkDelivery {
			out := slices.DeleteFunc(slices.Clone(cur), func(d model.MilkDelivery) bool {
				return ledger.Day(d.Date).Equal(day)
			})
			if next != nil && firstOfMonth(day).Equal(s.DisplayedMonth()) {
				out = append(out, *next)
				slices.SortFunc(out, func(a, b model.MilkDelivery) int { return a.Date.Compare(b.Date) })
			}
			return out
		})
	}
}

// SaveDefaults stores the family's delivery quantity, rates and vendor
// contact as a whole.
func (s *Service) SaveDefaults(ctx context.Context, d model.MilkDefaults) error {
	if !family.CanEditDeliveries(s.session.Role) {
		return optimistic.Invalid("defaults", "only admins can change milk settings")
	}
	switch {
	case d.DefaultQuantity < Step || math.Mod(d.DefaultQuantity, Step) != 0:
		return optimistic.Invalidf("default quantity must be a multiple of %.1f liters", Step)
	case d.PacketPrice <= 0:
		return optimistic.Invalid("packet_price", "packet price must be greater than zero")
	case !d.DeliveryChargeType.Valid():
		return optimistic.Invalid("delivery_charge_type", "choose per packet or monthly delivery charge")
	case d.DeliveryChargeAmount < 0:
		return optimistic.Invalid("delivery_charge_amount", "delivery charge cannot be negative")
	case d.VendorContact != "" && !phonePattern.MatchString(d.VendorContact):
		return optimistic.Invalid("vendor_contact", "please enter a valid phone number")
	}
	d.FamilyID = s.session.FamilyID
	d.UpdatedAt = s.now().UTC()

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "save milk settings",
		Apply: func() func() {
			return s.Defaults.Apply(func(*model.MilkDefaults) *model.MilkDefaults { return &d })
		},
		Remote: func(ctx context.Context) error {
			var vendor any
			if d.VendorContact != "" {
				vendor = d.VendorContact
			}
			return s.store.Upsert(ctx, "milk_defaults", []recordstore.Row{{
				"family_id":              d.FamilyID,
				"default_quantity":       d.DefaultQuantity,
				"packet_price":           d.PacketPrice,
				"delivery_charge_type":   string(d.DeliveryChargeType),
				"delivery_charge_amount": d.DeliveryChargeAmount,
				"vendor_contact":         vendor,
			}})
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Defaults)
	return nil
}
