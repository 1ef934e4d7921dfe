package milk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/fampulse/internal/ledger"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// Receipt summarizes a recorded payment.
type Receipt struct {
	Payment      model.MilkPayment
	Due          decimal.Decimal
	AdvanceAfter decimal.Decimal
}

// RecordPayment settles the pending period with amount, which may differ
// from what is due. Any excess over the bill, after the existing advance is
// used, becomes the new advance balance.
func (s *Service) RecordPayment(ctx context.Context, amount decimal.Decimal) (Receipt, error) {
	if !amount.IsPositive() {
		return Receipt{}, optimistic.Invalid("amount", "please enter the amount paid")
	}
	for _, scope := range []refreshable{s.Defaults, s.Advance, s.Period} {
		if err := scope.Refresh(ctx); err != nil {
			return Receipt{}, &optimistic.Error{Action: "record payment", Err: err}
		}
	}
	if s.Defaults.Get() == nil {
		return Receipt{}, optimistic.Reject(ErrNoDefaults)
	}
	pending := s.Pending()
	if pending.From.After(pending.To) {
		return Receipt{}, optimistic.Reject(ErrPaidUp)
	}

	due, advanceAfter := ledger.Settle(pending.TotalCost, pending.Advance, amount)
	payment := model.MilkPayment{
		ID:                  uuid.NewString(),
		FamilyID:            s.session.FamilyID,
		PaymentDate:         s.today(),
		Amount:              amount.InexactFloat64(),
		FromDate:            pending.From,
		ToDate:              pending.To,
		AdvanceBalanceAfter: advanceAfter.InexactFloat64(),
	}

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "record payment",
		Apply: func() func() {
			undoPayments := s.Payments.Apply(func(cur []model.MilkPayment) []model.MilkPayment {
				return append([]model.MilkPayment{payment}, cur...)
			})
			undoAdvance := s.Advance.Apply(func(decimal.Decimal) decimal.Decimal { return advanceAfter })
			return func() {
				undoAdvance()
				undoPayments()
			}
		},
		Remote: func(ctx context.Context) error {
			_, err := s.store.Insert(ctx, "milk_payments", recordstore.Row{
				"id":                    payment.ID,
				"family_id":             payment.FamilyID,
				"payment_date":          payment.PaymentDate,
				"amount":                payment.Amount,
				"from_date":             payment.FromDate,
				"to_date":               payment.ToDate,
				"advance_balance_after": payment.AdvanceBalanceAfter,
			})
			if err != nil {
				return err
			}
			err = s.store.Upsert(ctx, "milk_advance", []recordstore.Row{{
				"family_id": payment.FamilyID,
				"balance":   payment.AdvanceBalanceAfter,
			}})
			if err != nil {
				// The period stays open only if the payment row goes too.
				if derr := s.store.Delete(ctx, "milk_payments", recordstore.Eq("id", payment.ID)); derr != nil {
					s.logger.Error("payment stored without its advance", "payment", payment.ID, "error", derr)
				}
				return err
			}
			return nil
		},
	})
	if err != nil {
		return Receipt{}, err
	}
	if s.notifier != nil {
		s.notifier.NotifyFamily(ctx, s.session.FamilyID, s.session.UserID, notify.MilkPayment,
			fmt.Sprintf("Milk bill of ₹%s paid for %s to %s", amount.StringFixed(2),
				payment.FromDate.Format("2 Jan"), payment.ToDate.Format("2 Jan")))
	}
	s.refresh(ctx, s.Payments, s.Advance, s.Period, s.Month)
	return Receipt{Payment: payment, Due: due, AdvanceAfter: advanceAfter}, nil
}
