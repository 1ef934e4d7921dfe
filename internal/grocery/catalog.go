package grocery

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

func (s *Service) category(id string) (model.GroceryCategory, bool) {
	for _, c := range s.Categories.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return model.GroceryCategory{}, false
}

// EditItem changes a catalog item's name, unit and category.
func (s *Service) EditItem(ctx context.Context, itemID, name string, unit model.QuantityType, categoryID string) error {
	name = TitleCase(name)
	if name == "" {
		return optimistic.Invalid("name", "please enter an item name")
	}
	if !unit.Valid() {
		return optimistic.Invalid("quantity_type", "please choose a unit")
	}
	var category *model.GroceryCategory
	if categoryID != "" {
		c, ok := s.category(categoryID)
		if !ok {
			return optimistic.Invalid("category", "unknown category")
		}
		category = &c
	}

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "update item",
		Apply: func() func() {
			return s.Catalog.Apply(func(cur []model.GroceryItem) []model.GroceryItem {
				next := slices.Clone(cur)
				for i := range next {
					if next[i].ID == itemID {
						next[i].Name = name
						next[i].QuantityType = unit
						next[i].CategoryID = categoryID
						next[i].Category = category
					}
				}
				return next
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "grocery_items", recordstore.Row{
				"name":          name,
				"quantity_type": string(unit),
				"category_id":   nullable(categoryID),
			}, s.family(), recordstore.Eq("id", itemID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Catalog, s.Active)
	return nil
}

// AddCategory creates a family category.
func (s *Service) AddCategory(ctx context.Context, name string) error {
	name = TitleCase(name)
	if name == "" {
		return optimistic.Invalid("category", "please enter a category name")
	}
	for _, c := range s.Categories.Get() {
		if strings.EqualFold(c.Name, name) {
			return optimistic.Invalidf("category %q already exists", name)
		}
	}
	c := model.GroceryCategory{
		ID:        uuid.NewString(),
		FamilyID:  s.session.FamilyID,
		Name:      name,
		CreatedBy: s.session.UserID,
	}
	err := s.mut.Do(ctx, optimistic.Command{
		Action: "add category",
		Apply: func() func() {
			return s.Categories.Apply(func(cur []model.GroceryCategory) []model.GroceryCategory {
				return append(slices.Clone(cur), c)
			})
		},
		Remote: func(ctx context.Context) error {
			_, err := s.store.Insert(ctx, "grocery_categories", recordstore.Row{
				"id":         c.ID,
				"family_id":  c.FamilyID,
				"name":       c.Name,
				"created_by": c.CreatedBy,
			})
			return err
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Categories)
	return nil
}

// RenameCategory changes a category's display name. Items keep their
// category id.
func (s *Service) RenameCategory(ctx context.Context, id, name string) error {
	name = TitleCase(name)
	if name == "" {
		return optimistic.Invalid("category", "please enter a category name")
	}
	if _, ok := s.category(id); !ok {
		return optimistic.Reject(ErrNotFound)
	}
	err := s.mut.Do(ctx, optimistic.Command{
		Action: "rename category",
		Apply: func() func() {
			undoCategories := s.Categories.Apply(func(cur []model.GroceryCategory) []model.GroceryCategory {
				next := slices.Clone(cur)
				for i := range next {
					if next[i].ID == id {
						next[i].Name = name
					}
				}
				return next
			})
			undoCatalog := s.Catalog.Apply(func(cur []model.GroceryItem) []model.GroceryItem {
				next := slices.Clone(cur)
				for i := range next {
					if next[i].Category != nil && next[i].Category.ID == id {
						c := *next[i].Category
						c.Name = name
						next[i].Category = &c
					}
				}
				return next
			})
			return func() {
				undoCatalog()
				undoCategories()
			}
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "grocery_categories", recordstore.Row{"name": name}, s.family(), recordstore.Eq("id", id))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Categories, s.Catalog)
	return nil
}

// DeleteCategory removes a category. Its items stay in the catalog without
// a category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, ok := s.category(id); !ok {
		return optimistic.Reject(ErrNotFound)
	}
	err := s.mut.Do(ctx, optimistic.Command{
		Action: "delete category",
		Apply: func() func() {
			undoCategories := s.Categories.Apply(func(cur []model.GroceryCategory) []model.GroceryCategory {
				return without(cur, func(c model.GroceryCategory) bool { return c.ID == id })
			})
			undoCatalog := s.Catalog.Apply(func(cur []model.GroceryItem) []model.GroceryItem {
				next := slices.Clone(cur)
				for i := range next {
					if next[i].CategoryID == id {
						next[i].CategoryID = ""
						next[i].Category = nil
					}
				}
				return next
			})
			return func() {
				undoCatalog()
				undoCategories()
			}
		},
		Remote: func(ctx context.Context) error {
			err := s.store.Update(ctx, "grocery_items", recordstore.Row{"category_id": nil},
				s.family(), recordstore.Eq("category_id", id))
			if err != nil {
				return err
			}
			return s.store.Delete(ctx, "grocery_categories", s.family(), recordstore.Eq("id", id))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Categories, s.Catalog)
	return nil
}
