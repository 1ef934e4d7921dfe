package grocery

import (
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

func categoryFromRow(r recordstore.Row) model.GroceryCategory {
	return model.GroceryCategory{
		ID:        r.String("id"),
		FamilyID:  r.String("family_id"),
		Name:      r.String("name"),
		CreatedBy: r.String("created_by"),
		CreatedAt: r.Time("created_at"),
	}
}

func itemFromRow(r recordstore.Row) model.GroceryItem {
	return model.GroceryItem{
		ID:           r.String("id"),
		FamilyID:     r.String("family_id"),
		Name:         r.String("name"),
		QuantityType: model.QuantityType(r.String("quantity_type")),
		CategoryID:   r.String("category_id"),
		CreatedBy:    r.String("created_by"),
		CreatedAt:    r.Time("created_at"),
	}
}

func entryFromRow(r recordstore.Row) model.ShoppingEntry {
	return model.ShoppingEntry{
		ID:       r.String("id"),
		FamilyID: r.String("family_id"),
		ItemID:   r.String("item_id"),
		Quantity: r.Float("quantity"),
		AddedBy:  r.String("added_by"),
		AddedAt:  r.Time("added_at"),
		IsBought: r.Bool("is_bought"),
		BoughtBy: r.String("bought_by"),
		BoughtAt: r.TimePtr("bought_at"),
		Price:    r.FloatPtr("price"),
	}
}

func historyFromRow(r recordstore.Row) model.HistoryRecord {
	return model.HistoryRecord{
		ID:           r.String("id"),
		FamilyID:     r.String("family_id"),
		ItemName:     r.String("item_name"),
		Quantity:     r.Float("quantity"),
		QuantityType: model.QuantityType(r.String("quantity_type")),
		Price:        r.FloatPtr("price"),
		BoughtBy:     r.String("bought_by"),
		BoughtAt:     r.Time("bought_at"),
	}
}

// price maps a missing price to NULL.
func price(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
