// Package ledger derives milk bills and grocery price trends from cached
// rows. Every function is pure: the same rows always give the same result.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/fampulse/internal/model"
)

// PacketSize is the volume of one milk packet in liters.
var PacketSize = decimal.NewFromFloat(0.5)

// Rates is the pricing part of a family's milk defaults.
type Rates struct {
	PacketPrice  decimal.Decimal
	ChargeType   model.ChargeType
	ChargeAmount decimal.Decimal
}

func RatesFrom(d model.MilkDefaults) Rates {
	return Rates{
		PacketPrice:  decimal.NewFromFloat(d.PacketPrice),
		ChargeType:   d.DeliveryChargeType,
		ChargeAmount: decimal.NewFromFloat(d.DeliveryChargeAmount),
	}
}

// Summary is the cost breakdown of a set of deliveries.
type Summary struct {
	TotalLiters  decimal.Decimal
	TotalPackets decimal.Decimal
	MilkCost     decimal.Decimal
	DeliveryCost decimal.Decimal
	TotalCost    decimal.Decimal
}

// Day truncates t to its calendar date, expressed as midnight UTC so dates
// from different sources compare equal.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Packets converts liters to packets.
func Packets(liters decimal.Decimal) decimal.Decimal {
	return liters.Div(PacketSize)
}

func deliveredLiters(deliveries []model.MilkDelivery, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, d := range deliveries {
		day := Day(d.Date)
		if d.Cancelled || day.Before(from) || day.After(to) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(d.Quantity))
	}
	return total
}

func summarize(liters decimal.Decimal, rates Rates, months int) Summary {
	packets := Packets(liters)
	milk := packets.Mul(rates.PacketPrice)
	var delivery decimal.Decimal
	if rates.ChargeType == model.ChargePerPacket {
		delivery = packets.Mul(rates.ChargeAmount)
	} else {
		delivery = rates.ChargeAmount.Mul(decimal.NewFromInt(int64(months)))
	}
	return Summary{
		TotalLiters:  liters,
		TotalPackets: packets,
		MilkCost:     milk,
		DeliveryCost: delivery,
		TotalCost:    milk.Add(delivery),
	}
}

// MonthTotal bills the non-cancelled deliveries of one calendar month. A
// monthly charge type adds the flat charge once.
func MonthTotal(deliveries []model.MilkDelivery, year int, month time.Month, rates Rates) Summary {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	return summarize(deliveredLiters(deliveries, from, to), rates, 1)
}

// MonthsSpanned counts the calendar months touched by [from, to] using the
// month-index difference plus one. An empty period spans zero months.
func MonthsSpanned(from, to time.Time) int {
	if Day(to).Before(Day(from)) {
		return 0
	}
	return (to.Year()*12 + int(to.Month())) - (from.Year()*12 + int(from.Month())) + 1
}

// Pending is the bill for everything delivered since the last payment.
type Pending struct {
	Summary
	From         time.Time
	To           time.Time
	Months       int
	Advance      decimal.Decimal
	NetAmount    decimal.Decimal
	NotDelivered []time.Time
}

// PendingStart is the first unpaid day: the day after the last payment's
// period, else the earliest delivery, else today.
func PendingStart(deliveries []model.MilkDelivery, lastPayment *model.MilkPayment, today time.Time) time.Time {
	if lastPayment != nil {
		return Day(lastPayment.ToDate).AddDate(0, 0, 1)
	}
	var earliest time.Time
	for _, d := range deliveries {
		day := Day(d.Date)
		if earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
	}
	if earliest.IsZero() {
		return Day(today)
	}
	return earliest
}

// PendingTotal bills [PendingStart, today]. A monthly charge is multiplied by
// the calendar months the period spans, not prorated by days. The advance is
// consumed first; the net amount never goes negative.
func PendingTotal(deliveries []model.MilkDelivery, lastPayment *model.MilkPayment, advance decimal.Decimal, rates Rates, today time.Time) Pending {
	from := PendingStart(deliveries, lastPayment, today)
	to := Day(today)
	months := MonthsSpanned(from, to)

	p := Pending{
		Summary: summarize(deliveredLiters(deliveries, from, to), rates, months),
		From:    from,
		To:      to,
		Months:  months,
		Advance: advance,
	}
	p.NetAmount = decimal.Max(decimal.Zero, p.TotalCost.Sub(advance))
	p.NotDelivered = missingDays(deliveries, from, to)
	return p
}

// missingDays lists the dates in [from, to] with no delivery row at all.
// Cancelled days have a row and are not listed.
func missingDays(deliveries []model.MilkDelivery, from, to time.Time) []time.Time {
	have := make(map[time.Time]bool, len(deliveries))
	for _, d := range deliveries {
		have[Day(d.Date)] = true
	}
	var missing []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !have[day] {
			missing = append(missing, day)
		}
	}
	return missing
}

// Settle returns what is due after the advance and the advance left once
// paid is applied. Underpayment is not carried as debt.
func Settle(totalCost, advanceBefore, paid decimal.Decimal) (due, advanceAfter decimal.Decimal) {
	due = decimal.Max(decimal.Zero, totalCost.Sub(advanceBefore))
	advanceAfter = decimal.Max(decimal.Zero, advanceBefore.Add(paid).Sub(totalCost))
	return due, advanceAfter
}

// Locked reports whether day falls on or before the last paid date.
func Locked(day time.Time, lastToDate *time.Time) bool {
	if lastToDate == nil {
		return false
	}
	return !Day(day).After(Day(*lastToDate))
}

// PriceTrends computes, for history ordered newest first, each record's price
// minus the price of the nearest older priced record with the same item name.
// Records without a price, or without an older match, have no trend.
func PriceTrends(history []model.HistoryRecord) []decimal.NullDecimal {
	trends := make([]decimal.NullDecimal, len(history))
	for i, rec := range history {
		if rec.Price == nil {
			continue
		}
		for _, older := range history[i+1:] {
			if older.ItemName != rec.ItemName || older.Price == nil {
				continue
			}
			trends[i] = decimal.NewNullDecimal(decimal.NewFromFloat(*rec.Price).Sub(decimal.NewFromFloat(*older.Price)))
			break
		}
	}
	return trends
}
