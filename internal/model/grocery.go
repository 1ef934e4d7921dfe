package model

import "time"

// QuantityType is the unit a grocery item is bought in.
type QuantityType string

const (
	Kgs     QuantityType = "kgs"
	Liters  QuantityType = "liters"
	Dozens  QuantityType = "dozens"
	Pieces  QuantityType = "pieces"
	Packets QuantityType = "packets"
)

// QuantityTypes lists the units offered when creating an item.
var QuantityTypes = []QuantityType{Kgs, Liters, Dozens, Pieces, Packets}

func (q QuantityType) Valid() bool {
	for _, t := range QuantityTypes {
		if q == t {
			return true
		}
	}
	return false
}

type GroceryCategory struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GroceryItem is a catalog entry. Category is resolved from CategoryID when
// the catalog is loaded.
type GroceryItem struct {
	ID           string           `json:"id"`
	FamilyID     string           `json:"family_id"`
	Name         string           `json:"name"`
	QuantityType QuantityType     `json:"quantity_type"`
	CategoryID   string           `json:"category_id,omitempty"`
	Category     *GroceryCategory `json:"category,omitempty"`
	CreatedBy    string           `json:"created_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ShoppingEntry is one line of the shopping list. An entry is active until
// bought; a bought entry without a price waits in the "add prices" list.
type ShoppingEntry struct {
	ID       string       `json:"id"`
	FamilyID string       `json:"family_id"`
	ItemID   string       `json:"item_id"`
	Item     *GroceryItem `json:"item,omitempty"`
	Quantity float64      `json:"quantity"`
	AddedBy  string       `json:"added_by,omitempty"`
	AddedAt  time.Time    `json:"added_at"`
	IsBought bool         `json:"is_bought"`
	BoughtBy string       `json:"bought_by,omitempty"`
	BoughtAt *time.Time   `json:"bought_at,omitempty"`
	Price    *float64     `json:"price,omitempty"`
}

// Unit returns the entry's item unit, or pieces when the item is unknown.
func (e ShoppingEntry) Unit() QuantityType {
	if e.Item == nil {
		return Pieces
	}
	return e.Item.QuantityType
}

// Name returns the entry's item name.
func (e ShoppingEntry) Name() string {
	if e.Item == nil {
		return ""
	}
	return e.Item.Name
}

// HistoryRecord is a completed purchase, denormalized by item name.
type HistoryRecord struct {
	ID           string       `json:"id"`
	FamilyID     string       `json:"family_id"`
	ItemName     string       `json:"item_name"`
	Quantity     float64      `json:"quantity"`
	QuantityType QuantityType `json:"quantity_type"`
	Price        *float64     `json:"price,omitempty"`
	BoughtBy     string       `json:"bought_by,omitempty"`
	BoughtAt     time.Time    `json:"bought_at"`
}
