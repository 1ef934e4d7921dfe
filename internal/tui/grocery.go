package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/fampulse/internal/gesture"
	"github.com/dukerupert/fampulse/internal/grocery"
	"github.com/dukerupert/fampulse/internal/model"
)

// cellScale converts one key press of swipe into gesture offset units.
const cellScale = 25

type groceryView struct {
	cursor  int
	history bool
	results grocery.SearchResult

	swipe   *gesture.Swipe
	swipeID string
	x       float64
}

func (v groceryView) capturing() bool {
	return v.swipe != nil || len(v.results.Items) > 0 || v.results.OfferNew
}

func (v *groceryView) endSwipe() {
	v.swipe, v.swipeID, v.x = nil, "", 0
}

type searchMsg struct {
	res grocery.SearchResult
	err error
}

// groceryRow is one selectable line: an active entry, a bought entry
// waiting for its price, or a history record.
type groceryRow struct {
	entry    *model.ShoppingEntry
	unpriced bool
	history  *grocery.HistoryLine
}

func (m Model) groceryRows() []groceryRow {
	var rows []groceryRow
	if m.groceryView.history {
		for _, l := range m.grocery.HistoryLines() {
			l := l
			rows = append(rows, groceryRow{history: &l})
		}
		return rows
	}
	for _, e := range m.grocery.Active.Get() {
		e := e
		rows = append(rows, groceryRow{entry: &e})
	}
	for _, e := range m.grocery.Unpriced.Get() {
		e := e
		rows = append(rows, groceryRow{entry: &e, unpriced: true})
	}
	return rows
}

func (m Model) selectedGroceryRow() (groceryRow, bool) {
	rows := m.groceryRows()
	if len(rows) == 0 {
		return groceryRow{}, false
	}
	c := min(m.groceryView.cursor, len(rows)-1)
	return rows[c], true
}

func (m Model) handleSearch(msg searchMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setError(msg.err)
		return m, nil
	}
	m.groceryView.results = msg.res
	if len(msg.res.Items) == 0 && !msg.res.OfferNew {
		m.setStatus("Nothing found")
	}
	return m, nil
}

func (m Model) handleGroceryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := &m.groceryView
	if v.swipe != nil {
		return m.handleSwipeKey(msg)
	}
	if len(v.results.Items) > 0 || v.results.OfferNew {
		switch {
		case key.Matches(msg, m.keys.Escape):
			v.results = grocery.SearchResult{}
			return m, nil
		case key.Matches(msg, m.keys.Pick):
			i := int(msg.Runes[0] - '1')
			if i < len(v.results.Items) {
				item := v.results.Items[i]
				v.results = grocery.SearchResult{}
				return m, m.do(item.Name+" added", func(ctx context.Context) error {
					return m.grocery.AddToList(ctx, item.ID)
				})
			}
			return m, nil
		case key.Matches(msg, m.keys.NewItem) && v.results.OfferNew:
			name := v.results.Term
			v.results = grocery.SearchResult{}
			m.prompt = newPrompt("Unit for "+grocery.TitleCase(name), unitHint(), string(model.Pieces), func(unit string) tea.Cmd {
				return m.do(grocery.TitleCase(name)+" added", func(ctx context.Context) error {
					return m.grocery.CreateAndAdd(ctx, name, model.QuantityType(strings.ToLower(strings.TrimSpace(unit))), "")
				})
			})
			return m, nil
		}
	}

	rows := m.groceryRows()
	switch {
	case key.Matches(msg, m.keys.Up):
		if v.cursor > 0 {
			v.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if v.cursor < len(rows)-1 {
			v.cursor++
		}
	case key.Matches(msg, m.keys.Search):
		m.prompt = newPrompt("Search items", "e.g. milk", m.grocery.SearchTerm(), func(term string) tea.Cmd {
			return m.searchCmd(term)
		})
	case key.Matches(msg, m.keys.NewCategory):
		m.prompt = newPrompt("New category", "", "", func(name string) tea.Cmd {
			return m.do("Category added", func(ctx context.Context) error {
				return m.grocery.AddCategory(ctx, name)
			})
		})
	case key.Matches(msg, m.keys.History):
		show := !v.history
		v.history, v.cursor = show, 0
		return m, m.do("", func(ctx context.Context) error {
			return m.grocery.ShowHistory(ctx, show)
		})
	case key.Matches(msg, m.keys.Filter) && v.history:
		cur := m.grocery.HistoryFilter()
		m.prompt = newPrompt("Filter history", "term [from YYYY-MM-DD] [to YYYY-MM-DD]", formatHistoryFilter(cur), func(s string) tea.Cmd {
			f := parseHistoryFilter(s)
			return m.do("", func(ctx context.Context) error {
				return m.grocery.SetHistoryFilter(ctx, f)
			})
		})
	case key.Matches(msg, m.keys.Archive) && !v.history:
		return m, m.do("Priced items moved to history", m.grocery.ArchivePriced)
	case key.Matches(msg, m.keys.More), key.Matches(msg, m.keys.Less):
		row, ok := m.selectedGroceryRow()
		if !ok || row.entry == nil || row.unpriced {
			return m, nil
		}
		dir := 1
		if key.Matches(msg, m.keys.Less) {
			dir = -1
		}
		id := row.entry.ID
		return m, m.do("", func(ctx context.Context) error {
			return m.grocery.UpdateQuantity(ctx, id, dir)
		})
	case key.Matches(msg, m.keys.Price):
		row, ok := m.selectedGroceryRow()
		if !ok || row.entry == nil || !row.unpriced {
			return m, nil
		}
		m.prompt = m.pricePrompt(*row.entry, func(ctx context.Context, id string, p *float64) error {
			if p == nil {
				return nil
			}
			return m.grocery.SavePrices(ctx, map[string]float64{id: *p})
		})
	case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Right):
		return m.startSwipe(msg)
	}
	return m, nil
}

func (m Model) searchCmd(term string) tea.Cmd {
	ctx, svc := m.ctx, m.grocery
	return func() tea.Msg {
		res, err := svc.Search(ctx, term)
		return searchMsg{res: res, err: err}
	}
}

func (m Model) startSwipe(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	row, ok := m.selectedGroceryRow()
	if !ok || row.unpriced {
		return m, nil
	}
	v := &m.groceryView
	cfg := gesture.ShoppingRow
	v.swipeID = ""
	if row.history != nil {
		cfg = gesture.HistoryRow
		v.swipeID = row.history.ID
	} else {
		v.swipeID = row.entry.ID
	}
	v.swipe = gesture.New(cfg.WithScale(cellScale))
	v.x = 0
	v.swipe.Start(0)
	return m.handleSwipeKey(msg)
}

// handleSwipeKey drives the row gesture: arrows drag, release commits or
// reverts, and a revealed buy panel waits for b or esc.
func (m Model) handleSwipeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := &m.groceryView
	sw := v.swipe
	switch {
	case key.Matches(msg, m.keys.Escape):
		sw.Reset()
		v.endSwipe()
	case key.Matches(msg, m.keys.Left) && sw.State() == gesture.Dragging:
		v.x--
		sw.Move(v.x)
	case key.Matches(msg, m.keys.Right) && sw.State() == gesture.Dragging:
		v.x++
		sw.Move(v.x)
	case key.Matches(msg, m.keys.Release) && sw.State() == gesture.Dragging:
		return m.releaseSwipe()
	case key.Matches(msg, m.keys.Buy) && sw.State() == gesture.BuyRevealed:
		sw.ConfirmBuy()
		row, ok := m.selectedGroceryRow()
		id := v.swipeID
		v.endSwipe()
		if !ok || row.entry == nil || row.entry.ID != id {
			return m, nil
		}
		m.prompt = m.pricePrompt(*row.entry, func(ctx context.Context, id string, p *float64) error {
			return m.grocery.Swipe(ctx, id, gesture.Buy, p)
		})
	}
	return m, nil
}

func (m Model) releaseSwipe() (tea.Model, tea.Cmd) {
	v := &m.groceryView
	id := v.swipeID
	outcome := v.swipe.End()
	switch outcome {
	case gesture.RevealBuy:
		return m, nil
	case gesture.Delete:
		v.endSwipe()
		if v.history {
			rec, ok := m.grocery.HistorySwipe(id, outcome)
			if !ok {
				m.setError(grocery.ErrForbidden)
				return m, nil
			}
			m.prompt = confirm("Delete "+rec.ItemName+" from history?", func() tea.Cmd {
				return m.do("History entry deleted", func(ctx context.Context) error {
					return m.grocery.DeleteHistory(ctx, rec.ID)
				})
			})
			return m, nil
		}
		return m, m.do("Removed from list", func(ctx context.Context) error {
			return m.grocery.Swipe(ctx, id, gesture.Delete, nil)
		})
	}
	v.endSwipe()
	return m, nil
}

// pricePrompt asks for an optional price; an empty answer passes nil.
func (m Model) pricePrompt(e model.ShoppingEntry, save func(ctx context.Context, id string, p *float64) error) *prompt {
	return newPrompt("Price for "+e.Name()+" (₹, blank to skip)", "", "", func(s string) tea.Cmd {
		s = strings.TrimSpace(s)
		var price *float64
		if s != "" {
			p, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return failed(fmt.Errorf("%q is not a price", s))
			}
			price = &p
		}
		return m.do(e.Name()+" bought", func(ctx context.Context) error {
			return save(ctx, e.ID, price)
		})
	})
}

func unitHint() string {
	units := make([]string, len(model.QuantityTypes))
	for i, u := range model.QuantityTypes {
		units[i] = string(u)
	}
	return strings.Join(units, "/")
}

// parseHistoryFilter reads "term from 2025-01-01 to 2025-01-31"; the date
// parts are optional.
func parseHistoryFilter(s string) grocery.HistoryFilter {
	var f grocery.HistoryFilter
	var terms []string
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		word := strings.ToLower(fields[i])
		if (word == "from" || word == "to") && i+1 < len(fields) {
			if d, err := time.Parse(time.DateOnly, fields[i+1]); err == nil {
				if word == "from" {
					f.From = d
				} else {
					f.To = d
				}
				i++
				continue
			}
		}
		terms = append(terms, fields[i])
	}
	f.Search = strings.Join(terms, " ")
	return f
}

func formatHistoryFilter(f grocery.HistoryFilter) string {
	parts := []string{}
	if f.Search != "" {
		parts = append(parts, f.Search)
	}
	if !f.From.IsZero() {
		parts = append(parts, "from", f.From.Format(time.DateOnly))
	}
	if !f.To.IsZero() {
		parts = append(parts, "to", f.To.Format(time.DateOnly))
	}
	return strings.Join(parts, " ")
}

func formatQuantity(q float64, unit model.QuantityType) string {
	return strconv.FormatFloat(q, 'f', -1, 64) + " " + string(unit)
}

func (m Model) renderGrocery() string {
	t := m.theme
	v := m.groceryView
	var b strings.Builder

	if v.history {
		b.WriteString(t.Title.Render("Purchase history"))
		if f := formatHistoryFilter(m.grocery.HistoryFilter()); f != "" {
			b.WriteString(t.Muted.Render("  filter: " + f))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(t.Title.Render("Shopping list"))
		b.WriteString("\n")
	}

	rows := m.groceryRows()
	if len(rows) == 0 {
		if v.history {
			b.WriteString(t.Muted.Render("No purchases yet"))
		} else {
			b.WriteString(t.Muted.Render("The list is empty. Press / to add items."))
		}
		b.WriteString("\n")
	}
	shownUnpriced := false
	for i, row := range rows {
		if row.unpriced && !shownUnpriced {
			b.WriteString("\n" + t.Title.Render("Add prices") + "\n")
			shownUnpriced = true
		}
		line := m.renderGroceryRow(row)
		if i == min(v.cursor, len(rows)-1) {
			line = m.swipeDecorate(row, line)
			line = t.Selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	if v.history {
		b.WriteString("\n" + t.Accent.Render("Spent: ₹"+m.grocery.Spent().StringFixed(2)) + "\n")
	}

	if len(v.results.Items) > 0 || v.results.OfferNew {
		b.WriteString("\n" + t.Title.Render("Results for \""+v.results.Term+"\"") + "\n")
		for i, it := range v.results.Items {
			cat := ""
			if it.Category != nil {
				cat = t.Muted.Render("  [" + it.Category.Name + "]")
			}
			b.WriteString(fmt.Sprintf("  %d  %s%s\n", i+1, it.Name, cat))
		}
		if v.results.OfferNew {
			b.WriteString(t.Accent.Render("  n  create \""+grocery.TitleCase(v.results.Term)+"\"") + "\n")
		}
	}
	return b.String()
}

func (m Model) renderGroceryRow(row groceryRow) string {
	t := m.theme
	if row.history != nil {
		h := row.history
		price := t.Muted.Render("no price")
		if h.Price != nil {
			price = "₹" + strconv.FormatFloat(*h.Price, 'f', 2, 64)
		}
		trend := ""
		if h.Trend.Valid {
			switch d := h.Trend.Decimal; {
			case d.IsPositive():
				trend = t.Danger.Render(" ↑" + d.StringFixed(2))
			case d.IsNegative():
				trend = t.Success.Render(" ↓" + d.Abs().StringFixed(2))
			}
		}
		return fmt.Sprintf("%-20s %-12s %s%s  %s", h.ItemName, formatQuantity(h.Quantity, h.QuantityType),
			price, trend, t.Muted.Render(h.BoughtAt.Local().Format("2 Jan 15:04")))
	}
	e := row.entry
	cat := ""
	if e.Item != nil && e.Item.Category != nil {
		cat = t.Muted.Render("[" + e.Item.Category.Name + "]")
	}
	return fmt.Sprintf("%-20s %-12s %s", e.Name(), formatQuantity(e.Quantity, e.Unit()), cat)
}

// swipeDecorate shifts the selected row by the gesture offset and shows
// what a release would do.
func (m Model) swipeDecorate(row groceryRow, line string) string {
	sw := m.groceryView.swipe
	if sw == nil {
		return line
	}
	t := m.theme
	cells := int(sw.Offset() / cellScale)
	cfg := sw.Config()
	switch {
	case sw.State() == gesture.BuyRevealed:
		return line + "  " + t.Success.Render("[b] buy  [esc] cancel")
	case cells > 0:
		hint := t.Muted.Render(" delete")
		if sw.Offset() > cfg.Threshold {
			hint = t.Danger.Render(" delete")
		}
		return strings.Repeat("»", cells) + hint + " " + line
	case cells < 0:
		hint := t.Muted.Render(" buy")
		if -sw.Offset() > cfg.Threshold && cfg.RevealBuy {
			hint = t.Success.Render(" buy")
		}
		return line + " " + strings.Repeat("«", -cells) + hint
	}
	return line
}
