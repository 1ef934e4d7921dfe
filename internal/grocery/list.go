package grocery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// AddToList puts a catalog item on the active list, pre-filled with the
// quantity of its last purchase. An item already on the list is left alone;
// a bought entry of the same item is replaced, after a priced one is moved to
// history. The search input is cleared either way.
func (s *Service) AddToList(ctx context.Context, itemID string) error {
	item, err := s.item(ctx, itemID)
	if err != nil {
		return err
	}

	existing, err := s.store.Select(ctx, recordstore.Query{
		Table:   "shopping_list",
		Filters: []recordstore.Filter{s.family(), recordstore.Eq("item_id", itemID)},
	})
	if err != nil {
		return &optimistic.Error{Action: "add item", Err: err}
	}
	var (
		stale  []string
		priced []model.ShoppingEntry
	)
	for _, r := range existing {
		if !r.Bool("is_bought") {
			s.clearSearch()
			return nil
		}
		stale = append(stale, r.String("id"))
		if e := entryFromRow(r); e.Price != nil {
			e.Item = &item
			priced = append(priced, e)
		}
	}

	quantity, err := s.lastQuantity(ctx, item)
	if err != nil {
		return &optimistic.Error{Action: "add item", Err: err}
	}

	entry := model.ShoppingEntry{
		ID:       uuid.NewString(),
		FamilyID: s.session.FamilyID,
		ItemID:   item.ID,
		Item:     &item,
		Quantity: quantity,
		AddedBy:  s.session.UserID,
		AddedAt:  s.timestamp(),
	}
	err = s.mut.Do(ctx, optimistic.Command{
		Action: "add item",
		Apply: func() func() {
			return s.Active.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return append([]model.ShoppingEntry{entry}, cur...)
			})
		},
		Remote: func(ctx context.Context) error {
			for _, e := range priced {
				if err := s.fold(ctx, e); err != nil {
					return err
				}
			}
			if len(stale) > 0 {
				if err := s.store.Delete(ctx, "shopping_list", recordstore.In("id", stale)); err != nil {
					return err
				}
			}
			_, err := s.store.Insert(ctx, "shopping_list", recordstore.Row{
				"id":        entry.ID,
				"family_id": entry.FamilyID,
				"item_id":   entry.ItemID,
				"quantity":  entry.Quantity,
				"added_by":  entry.AddedBy,
				"is_bought": false,
			})
			return err
		},
	})
	if err != nil {
		return err
	}
	s.clearSearch()
	if s.notifier != nil {
		s.notifier.NotifyFamily(ctx, s.session.FamilyID, s.session.UserID, notify.GroceryAdded,
			fmt.Sprintf("%s added to the shopping list", item.Name))
	}
	s.refresh(ctx, s.Active, s.Unpriced)
	return nil
}

// lastQuantity is the quantity of the most recent purchase of item, or the
// unit default.
func (s *Service) lastQuantity(ctx context.Context, item model.GroceryItem) (float64, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "grocery_history",
		Filters: []recordstore.Filter{s.family(), recordstore.Eq("item_name", item.Name)},
		Order:   []recordstore.Order{recordstore.Desc("bought_at")},
	})
	if err != nil {
		return 0, err
	}
	if row != nil {
		if q := row.Float("quantity"); q > 0 {
			return q, nil
		}
	}
	return DefaultQuantity(item.QuantityType), nil
}

// CreateAndAdd creates a catalog item and adds it to the list. Without a
// category the item is placed in the family category its name suggests; if
// none fits the caller must choose one. A name already in the catalog is
// added as is.
func (s *Service) CreateAndAdd(ctx context.Context, name string, unit model.QuantityType, categoryID string) error {
	name = TitleCase(name)
	if name == "" {
		return optimistic.Invalid("name", "please enter an item name")
	}
	if !unit.Valid() {
		return optimistic.Invalid("quantity_type", "please choose a unit")
	}

	existing, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_items",
		Filters: []recordstore.Filter{s.family(), recordstore.ILike("name", name)},
	})
	if err != nil {
		return &optimistic.Error{Action: "create item", Err: err}
	}
	for _, r := range existing {
		if strings.EqualFold(r.String("name"), name) {
			return s.AddToList(ctx, r.String("id"))
		}
	}

	var category *model.GroceryCategory
	if categoryID == "" {
		c, ok := Suggest(name, s.Categories.Get())
		if !ok {
			return optimistic.Reject(ErrCategoryRequired)
		}
		category = &c
	} else {
		c, ok := s.category(categoryID)
		if !ok {
			return optimistic.Invalid("category", "unknown category")
		}
		category = &c
	}

	item := model.GroceryItem{
		ID:           uuid.NewString(),
		FamilyID:     s.session.FamilyID,
		Name:         name,
		QuantityType: unit,
		CategoryID:   category.ID,
		Category:     category,
		CreatedBy:    s.session.UserID,
	}
	err = s.mut.Do(ctx, optimistic.Command{
		Action: "create item",
		Apply: func() func() {
			return s.Catalog.Apply(func(cur []model.GroceryItem) []model.GroceryItem {
				return append(append([]model.GroceryItem(nil), cur...), item)
			})
		},
		Remote: func(ctx context.Context) error {
			_, err := s.store.Insert(ctx, "grocery_items", recordstore.Row{
				"id":            item.ID,
				"family_id":     item.FamilyID,
				"name":          item.Name,
				"quantity_type": string(item.QuantityType),
				"category_id":   item.CategoryID,
				"created_by":    item.CreatedBy,
			})
			return err
		},
	})
	if err != nil {
		return err
	}
	return s.AddToList(ctx, item.ID)
}

// UpdateQuantity moves an active entry's quantity by dir unit steps and
// writes the resulting absolute value.
func (s *Service) UpdateQuantity(ctx context.Context, entryID string, dir int) error {
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return err
	}
	quantity := Adjust(entry.Unit(), entry.Quantity, dir)
	if quantity == entry.Quantity {
		return nil
	}
	err = s.mut.Do(ctx, optimistic.Command{
		Action: "update quantity",
		Apply:  s.editActive(entryID, func(e *model.ShoppingEntry) { e.Quantity = quantity }),
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "shopping_list", recordstore.Row{"quantity": quantity}, recordstore.Eq("id", entryID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Active)
	return nil
}

// CompletePurchase marks an active entry bought by the current user. A
// purchase with a price goes straight to history; one without waits in the
// unpriced list and is recorded in history without a price.
func (s *Service) CompletePurchase(ctx context.Context, entryID string, p *float64) error {
	if p != nil && *p < 0 {
		return optimistic.Invalid("price", "price cannot be negative")
	}
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.IsBought {
		return nil
	}
	boughtAt := s.timestamp()
	entry.IsBought = true
	entry.BoughtBy = s.session.UserID
	entry.BoughtAt = &boughtAt
	entry.Price = p

	err = s.mut.Do(ctx, optimistic.Command{
		Action: "complete purchase",
		Apply: func() func() {
			undoActive := s.Active.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.ID == entryID })
			})
			if p != nil {
				return undoActive
			}
			undoUnpriced := s.Unpriced.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return append([]model.ShoppingEntry{entry}, cur...)
			})
			return func() {
				undoUnpriced()
				undoActive()
			}
		},
		Remote: func(ctx context.Context) error {
			if _, err := s.store.Insert(ctx, "grocery_history", historyRow(entry)); err != nil {
				return err
			}
			if p != nil {
				return s.store.Delete(ctx, "shopping_list", recordstore.Eq("id", entryID))
			}
			return s.store.Update(ctx, "shopping_list", recordstore.Row{
				"is_bought": true,
				"bought_by": entry.BoughtBy,
				"bought_at": boughtAt,
				"price":     nil,
			}, recordstore.Eq("id", entryID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Active, s.Unpriced)
	if s.History.Active() {
		s.refresh(ctx, s.History)
	}
	return nil
}

// MarkBought ticks an entry off in shopping mode, without a price.
func (s *Service) MarkBought(ctx context.Context, entryID string) error {
	return s.CompletePurchase(ctx, entryID, nil)
}

// SetPrice records the price of a bought entry. The entry stays on the list
// until ArchivePriced moves it to history.
func (s *Service) SetPrice(ctx context.Context, entryID string, p float64) error {
	if p < 0 {
		return optimistic.Invalid("price", "price cannot be negative")
	}
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return err
	}
	if !entry.IsBought {
		return optimistic.Invalidf("%s has not been bought yet", entry.Name())
	}
	return s.mut.Do(ctx, optimistic.Command{
		Action: "save price",
		Apply: func() func() {
			return s.Unpriced.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.ID == entryID })
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "shopping_list", recordstore.Row{"price": p}, recordstore.Eq("id", entryID))
		},
	})
}

// SavePrices sets the given prices and archives every priced entry.
func (s *Service) SavePrices(ctx context.Context, prices map[string]float64) error {
	for id, p := range prices {
		if err := s.SetPrice(ctx, id, p); err != nil {
			return err
		}
	}
	return s.ArchivePriced(ctx)
}

// ArchivePriced moves every bought entry that has a price into history and
// off the list. An unpriced history record of the same purchase is replaced
// rather than duplicated.
func (s *Service) ArchivePriced(ctx context.Context) error {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table: "shopping_list",
		Filters: []recordstore.Filter{
			s.family(),
			recordstore.Eq("is_bought", true),
			recordstore.Gte("price", 0.0),
		},
	})
	if err != nil {
		return &optimistic.Error{Action: "save prices", Err: err}
	}
	if len(rows) == 0 {
		return nil
	}
	entries := make([]model.ShoppingEntry, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		entries[i] = entryFromRow(r)
		ids[i] = entries[i].ID
	}
	if err := s.attachItems(ctx, entries); err != nil {
		return &optimistic.Error{Action: "save prices", Err: err}
	}

	err = s.mut.Do(ctx, optimistic.Command{
		Action: "save prices",
		Apply: func() func() {
			return s.Unpriced.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.Price != nil })
			})
		},
		Remote: func(ctx context.Context) error {
			for _, e := range entries {
				if err := s.fold(ctx, e); err != nil {
					return err
				}
			}
			return s.store.Delete(ctx, "shopping_list", recordstore.In("id", ids))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Unpriced)
	if s.History.Active() {
		s.refresh(ctx, s.History)
	}
	return nil
}

// Archive moves one bought entry to history without a price.
func (s *Service) Archive(ctx context.Context, entryID string) error {
	entry, err := s.entry(ctx, entryID)
	if err != nil {
		return err
	}
	if !entry.IsBought {
		return optimistic.Invalidf("%s has not been bought yet", entry.Name())
	}
	entry.Price = nil
	err = s.mut.Do(ctx, optimistic.Command{
		Action: "archive item",
		Apply: func() func() {
			return s.Unpriced.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.ID == entryID })
			})
		},
		Remote: func(ctx context.Context) error {
			if err := s.fold(ctx, entry); err != nil {
				return err
			}
			return s.store.Delete(ctx, "shopping_list", recordstore.Eq("id", entryID))
		},
	})
	if err != nil {
		return err
	}
	if s.History.Active() {
		s.refresh(ctx, s.History)
	}
	return nil
}

// fold writes the history record of a bought entry. Records of the same
// purchase are matched by item name and purchase time.
func (s *Service) fold(ctx context.Context, e model.ShoppingEntry) error {
	if e.BoughtAt == nil {
		t := s.timestamp()
		e.BoughtAt = &t
	}
	same := []recordstore.Filter{
		s.family(),
		recordstore.Eq("item_name", e.Name()),
		recordstore.Eq("bought_at", *e.BoughtAt),
	}

	if e.Price == nil {
		existing, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{Table: "grocery_history", Filters: same})
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		_, err = s.store.Insert(ctx, "grocery_history", historyRow(e))
		return err
	}

	if err := s.store.Delete(ctx, "grocery_history", append(same, recordstore.IsNull("price"))...); err != nil {
		return err
	}
	priced, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{Table: "grocery_history", Filters: same})
	if err != nil {
		return err
	}
	if priced != nil {
		return s.store.Update(ctx, "grocery_history", recordstore.Row{
			"price":    *e.Price,
			"quantity": e.Quantity,
		}, recordstore.Eq("id", priced.String("id")))
	}
	_, err = s.store.Insert(ctx, "grocery_history", historyRow(e))
	return err
}

func (s *Service) attachItems(ctx context.Context, entries []model.ShoppingEntry) error {
	for i := range entries {
		if entries[i].Item != nil {
			continue
		}
		it, err := s.item(ctx, entries[i].ItemID)
		if err != nil {
			if optimistic.IsValidation(err) {
				continue
			}
			return err
		}
		entries[i].Item = &it
	}
	return nil
}

// Delete removes a list entry.
func (s *Service) Delete(ctx context.Context, entryID string) error {
	err := s.mut.Do(ctx, optimistic.Command{
		Action: "delete item",
		Apply: func() func() {
			undoActive := s.Active.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.ID == entryID })
			})
			undoUnpriced := s.Unpriced.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
				return without(cur, func(e model.ShoppingEntry) bool { return e.ID == entryID })
			})
			return func() {
				undoUnpriced()
				undoActive()
			}
		},
		Remote: func(ctx context.Context) error {
			return s.store.Delete(ctx, "shopping_list", s.family(), recordstore.Eq("id", entryID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Active)
	return nil
}

func (s *Service) editActive(entryID string, fn func(*model.ShoppingEntry)) func() func() {
	return func() func() {
		return s.Active.Apply(func(cur []model.ShoppingEntry) []model.ShoppingEntry {
			next := append([]model.ShoppingEntry(nil), cur...)
			for i := range next {
				if next[i].ID == entryID {
					fn(&next[i])
				}
			}
			return next
		})
	}
}

func historyRow(e model.ShoppingEntry) recordstore.Row {
	boughtAt := time.Time{}
	if e.BoughtAt != nil {
		boughtAt = *e.BoughtAt
	}
	return recordstore.Row{
		"family_id":     e.FamilyID,
		"item_name":     e.Name(),
		"quantity":      e.Quantity,
		"quantity_type": string(e.Unit()),
		"price":         price(e.Price),
		"bought_by":     nullable(e.BoughtBy),
		"bought_at":     boughtAt,
	}
}
