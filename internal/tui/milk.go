package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/fampulse/internal/ledger"
	"github.com/dukerupert/fampulse/internal/milk"
	"github.com/dukerupert/fampulse/internal/model"
)

type milkView struct {
	cursor time.Time
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func (m Model) handleMilkKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := &m.milkView
	move := 0
	switch {
	case key.Matches(msg, m.keys.Left):
		move = -1
	case key.Matches(msg, m.keys.Right):
		move = 1
	case key.Matches(msg, m.keys.Up):
		move = -7
	case key.Matches(msg, m.keys.Down):
		move = 7
	case key.Matches(msg, m.keys.PrevMonth), key.Matches(msg, m.keys.NextMonth):
		n := -1
		if key.Matches(msg, m.keys.NextMonth) {
			n = 1
		}
		v.cursor = m.milk.DisplayedMonth().AddDate(0, n, 0)
		return m, m.do("", func(ctx context.Context) error {
			return m.milk.ShiftMonth(ctx, n)
		})
	case key.Matches(msg, m.keys.Toggle):
		day := v.cursor
		return m, m.do("", func(ctx context.Context) error {
			return m.milk.ToggleDay(ctx, day)
		})
	case key.Matches(msg, m.keys.Quantity):
		day := v.cursor
		m.prompt = newPrompt("Liters on "+day.Format("2 Jan"), "multiple of 0.5", "", func(s string) tea.Cmd {
			liters, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return failed(fmt.Errorf("%q is not a quantity", s))
			}
			return m.do("Delivery updated", func(ctx context.Context) error {
				return m.milk.SetDayQuantity(ctx, day, liters)
			})
		})
	case key.Matches(msg, m.keys.Pay):
		due := m.milk.Pending().NetAmount
		m.prompt = newPrompt("Amount paid (₹)", "", due.StringFixed(2), func(s string) tea.Cmd {
			amount, err := decimal.NewFromString(strings.TrimSpace(s))
			if err != nil {
				return failed(fmt.Errorf("%q is not an amount", s))
			}
			return m.recordPayment(amount)
		})
	case key.Matches(msg, m.keys.Vendor):
		m.prompt = newPrompt("Message to vendor", "", "", func(text string) tea.Cmd {
			return m.do("Opened message to vendor", func(ctx context.Context) error {
				return m.milk.MessageVendor(ctx, text)
			})
		})
	case key.Matches(msg, m.keys.Defaults):
		m.prompt = newPrompt("Defaults", "liters price per_packet|monthly charge [vendor phone]",
			formatDefaults(m.milk.Defaults.Get()), func(s string) tea.Cmd {
				d, err := parseDefaults(s)
				if err != nil {
					return failed(err)
				}
				return m.do("Milk settings saved", func(ctx context.Context) error {
					return m.milk.SaveDefaults(ctx, d)
				})
			})
	}
	if move == 0 {
		return m, nil
	}

	next := v.cursor.AddDate(0, 0, move)
	v.cursor = next
	if sameMonth(next, m.milk.DisplayedMonth()) {
		return m, nil
	}
	return m, m.do("", func(ctx context.Context) error {
		return m.milk.SetMonth(ctx, next)
	})
}

func (m Model) recordPayment(amount decimal.Decimal) tea.Cmd {
	ctx, svc := m.ctx, m.milk
	return func() tea.Msg {
		r, err := svc.RecordPayment(ctx, amount)
		if err != nil {
			return doneMsg{err: err}
		}
		status := fmt.Sprintf("Paid ₹%s for %s to %s", amount.StringFixed(2),
			r.Payment.FromDate.Format("2 Jan"), r.Payment.ToDate.Format("2 Jan"))
		if r.AdvanceAfter.IsPositive() {
			status += ", advance ₹" + r.AdvanceAfter.StringFixed(2)
		}
		return doneMsg{status: status}
	}
}

func failed(err error) tea.Cmd {
	return func() tea.Msg { return doneMsg{err: err} }
}

func formatDefaults(d *model.MilkDefaults) string {
	if d == nil {
		return ""
	}
	s := fmt.Sprintf("%s %s %s %s",
		strconv.FormatFloat(d.DefaultQuantity, 'f', -1, 64),
		strconv.FormatFloat(d.PacketPrice, 'f', -1, 64),
		d.DeliveryChargeType,
		strconv.FormatFloat(d.DeliveryChargeAmount, 'f', -1, 64))
	if d.VendorContact != "" {
		s += " " + d.VendorContact
	}
	return s
}

// parseDefaults reads "liters price chargeType chargeAmount [vendor]".
func parseDefaults(s string) (model.MilkDefaults, error) {
	f := strings.Fields(s)
	if len(f) < 4 || len(f) > 5 {
		return model.MilkDefaults{}, fmt.Errorf("enter liters, packet price, charge type and charge amount")
	}
	var d model.MilkDefaults
	var err error
	if d.DefaultQuantity, err = strconv.ParseFloat(f[0], 64); err != nil {
		return d, fmt.Errorf("%q is not a quantity", f[0])
	}
	if d.PacketPrice, err = strconv.ParseFloat(f[1], 64); err != nil {
		return d, fmt.Errorf("%q is not a price", f[1])
	}
	d.DeliveryChargeType = model.ChargeType(f[2])
	if d.DeliveryChargeAmount, err = strconv.ParseFloat(f[3], 64); err != nil {
		return d, fmt.Errorf("%q is not a charge", f[3])
	}
	if len(f) == 5 {
		d.VendorContact = f[4]
	}
	return d, nil
}

func (m Model) renderMilk() string {
	t := m.theme
	first := m.milk.DisplayedMonth()
	var b strings.Builder

	b.WriteString(t.Title.Render(first.Format("January 2006")))
	b.WriteString("\n")
	b.WriteString(t.Muted.Render(" Mo  Tu  We  Th  Fr  Sa  Su"))
	b.WriteString("\n")

	// Monday-first grid.
	lead := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("    ", lead))
	for i, day := range m.milk.Calendar() {
		b.WriteString(m.renderDay(day))
		if (lead+i+1)%7 == 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\n")
	b.WriteString(t.Delivered.Render("■ delivered") + "  " + t.Cancelled.Render("■ cancelled") + "  " + t.Locked.Render("■ paid"))
	b.WriteString("\n\n")

	if m.milk.Defaults.Get() == nil {
		b.WriteString(t.Danger.Render(milk.ErrNoDefaults.Error()) + "\n")
		return b.String()
	}

	s := m.milk.MonthSummary()
	b.WriteString(t.Title.Render("This month") + "\n")
	b.WriteString(fmt.Sprintf("  %s L in %s packets\n", s.TotalLiters.String(), s.TotalPackets.String()))
	b.WriteString(fmt.Sprintf("  milk ₹%s + delivery ₹%s = ₹%s\n",
		s.MilkCost.StringFixed(2), s.DeliveryCost.StringFixed(2), s.TotalCost.StringFixed(2)))

	p := m.milk.Pending()
	b.WriteString("\n" + t.Title.Render("Pending") + "\n")
	if p.From.After(p.To) {
		b.WriteString(t.Success.Render("  All paid up") + "\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("  %s to %s (%d month", p.From.Format("2 Jan"), p.To.Format("2 Jan 2006"), p.Months))
	if p.Months != 1 {
		b.WriteString("s")
	}
	b.WriteString(")\n")
	b.WriteString(fmt.Sprintf("  %s L, total ₹%s", p.TotalLiters.String(), p.TotalCost.StringFixed(2)))
	if p.Advance.IsPositive() {
		b.WriteString(fmt.Sprintf(", advance ₹%s", p.Advance.StringFixed(2)))
	}
	b.WriteString("\n")
	b.WriteString(t.Accent.Render("  Due ₹"+p.NetAmount.StringFixed(2)) + "\n")
	if n := len(p.NotDelivered); n > 0 {
		b.WriteString(t.Muted.Render(fmt.Sprintf("  %d day(s) not marked", n)) + "\n")
	}
	return b.String()
}

func (m Model) renderDay(d milk.Day) string {
	t := m.theme
	cell := fmt.Sprintf(" %2d ", d.Date.Day())
	style := t.Muted
	switch {
	case d.Locked:
		style = t.Locked
	case d.State == milk.Delivered:
		style = t.Delivered
	case d.State == milk.Cancelled:
		style = t.Cancelled
	}
	if ledger.Day(m.milkView.cursor).Equal(d.Date) {
		cell = fmt.Sprintf("[%2d]", d.Date.Day())
		style = style.Inherit(t.Selected)
	}
	return style.Render(cell)
}
