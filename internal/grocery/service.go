// Package grocery is the family shopping list: the item catalog and its
// categories, the active list, bought items waiting for a price, and the
// purchase history.
package grocery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// SearchLimit caps the suggestions returned by Search.
const SearchLimit = 5

var (
	ErrNotFound         = errors.New("item not found")
	ErrForbidden        = errors.New("only admins can delete history")
	ErrCategoryRequired = errors.New("please choose a category")
)

// Notifier tells the rest of the family about an action.
type Notifier interface {
	NotifyFamily(ctx context.Context, familyID, actorID, actionType, message string)
}

// Service is the grocery view of one session.
type Service struct {
	store    recordstore.Store
	cache    *reconcile.Cache
	mut      *optimistic.Mutator
	notifier Notifier
	logger   *slog.Logger
	session  model.Session
	now      func() time.Time

	mu            sync.Mutex
	search        string
	historyFilter HistoryFilter

	Active     *reconcile.Scope[[]model.ShoppingEntry]
	Unpriced   *reconcile.Scope[[]model.ShoppingEntry]
	Catalog    *reconcile.Scope[[]model.GroceryItem]
	Categories *reconcile.Scope[[]model.GroceryCategory]
	History    *reconcile.Scope[[]model.HistoryRecord]
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock sets the time source used for purchase timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store recordstore.Store, cache *reconcile.Cache, mut *optimistic.Mutator, session model.Session, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cache:   cache,
		mut:     mut,
		logger:  logger,
		session: session,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Active = reconcile.NewScope(cache, "shopping list", s.loadActive, "shopping_list", "grocery_items")
	s.Unpriced = reconcile.NewScope(cache, "unpriced", s.loadUnpriced, "shopping_list", "grocery_items")
	s.Catalog = reconcile.NewScope(cache, "catalog", s.loadCatalog, "grocery_items", "grocery_categories")
	s.Categories = reconcile.NewScope(cache, "categories", s.loadCategories, "grocery_categories")
	s.History = reconcile.NewScope(cache, "history", s.loadHistory, "grocery_history")
	s.History.SetActive(false)
	return s
}

// TitleCase normalizes item and category names.
func TitleCase(name string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}

func (s *Service) family() recordstore.Filter { return recordstore.Eq("family_id", s.session.FamilyID) }

// timestamp is the current time at the store's precision, so it compares
// equal after a round trip.
func (s *Service) timestamp() time.Time { return s.now().UTC().Truncate(time.Microsecond) }

func (s *Service) loadCategories(ctx context.Context) ([]model.GroceryCategory, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_categories",
		Filters: []recordstore.Filter{s.family()},
		Order:   []recordstore.Order{recordstore.Asc("name")},
	})
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	categories := make([]model.GroceryCategory, len(rows))
	for i, r := range rows {
		categories[i] = categoryFromRow(r)
	}
	return categories, nil
}

func (s *Service) loadCatalog(ctx context.Context) ([]model.GroceryItem, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_items",
		Filters: []recordstore.Filter{s.family()},
		Order:   []recordstore.Order{recordstore.Asc("name")},
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	categories, err := s.loadCategories(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.GroceryCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	items := make([]model.GroceryItem, len(rows))
	for i, r := range rows {
		items[i] = itemFromRow(r)
		if c, ok := byID[items[i].CategoryID]; ok {
			items[i].Category = &c
		}
	}
	return items, nil
}

func (s *Service) loadActive(ctx context.Context) ([]model.ShoppingEntry, error) {
	return s.loadEntries(ctx, recordstore.Desc("added_at"), recordstore.Eq("is_bought", false))
}

func (s *Service) loadUnpriced(ctx context.Context) ([]model.ShoppingEntry, error) {
	return s.loadEntries(ctx, recordstore.Desc("bought_at"), recordstore.Eq("is_bought", true), recordstore.IsNull("price"))
}

// loadEntries reads the family's list entries matching filters and attaches
// their catalog items.
func (s *Service) loadEntries(ctx context.Context, order recordstore.Order, filters ...recordstore.Filter) ([]model.ShoppingEntry, error) {
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "shopping_list",
		Filters: append([]recordstore.Filter{s.family()}, filters...),
		Order:   []recordstore.Order{order},
	})
	if err != nil {
		return nil, fmt.Errorf("load shopping list: %w", err)
	}
	entries := make([]model.ShoppingEntry, len(rows))
	var ids []string
	for i, r := range rows {
		entries[i] = entryFromRow(r)
		if !slices.Contains(ids, entries[i].ItemID) {
			ids = append(ids, entries[i].ItemID)
		}
	}
	if len(ids) == 0 {
		return entries, nil
	}

	itemRows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_items",
		Filters: []recordstore.Filter{recordstore.In("id", ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("load shopping list items: %w", err)
	}
	items := make(map[string]model.GroceryItem, len(itemRows))
	for _, r := range itemRows {
		it := itemFromRow(r)
		items[it.ID] = it
	}
	for i := range entries {
		if it, ok := items[entries[i].ItemID]; ok {
			entries[i].Item = &it
		}
	}
	return entries, nil
}

// SearchResult holds the suggestions for a search term. OfferNew is set
// when no suggestion matches the term exactly, ignoring case.
type SearchResult struct {
	Term     string
	Items    []model.GroceryItem
	OfferNew bool
}

// Search records term as the current search input and looks up to
// SearchLimit catalog items whose name contains it.
func (s *Service) Search(ctx context.Context, term string) (SearchResult, error) {
	s.mu.Lock()
	s.search = term
	s.mu.Unlock()

	term = strings.TrimSpace(term)
	if term == "" {
		return SearchResult{}, nil
	}
	rows, err := s.store.Select(ctx, recordstore.Query{
		Table:   "grocery_items",
		Filters: []recordstore.Filter{s.family(), recordstore.ILike("name", "%"+term+"%")},
		Order:   []recordstore.Order{recordstore.Asc("name")},
		Limit:   SearchLimit,
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search items: %w", err)
	}
	res := SearchResult{Term: term, OfferNew: true}
	for _, r := range rows {
		it := itemFromRow(r)
		if strings.EqualFold(it.Name, term) {
			res.OfferNew = false
		}
		res.Items = append(res.Items, it)
	}
	return res, nil
}

// SearchTerm is the current search input.
func (s *Service) SearchTerm() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

func (s *Service) clearSearch() {
	s.mu.Lock()
	s.search = ""
	s.mu.Unlock()
}

func (s *Service) item(ctx context.Context, itemID string) (model.GroceryItem, error) {
	for _, it := range s.Catalog.Get() {
		if it.ID == itemID {
			return it, nil
		}
	}
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "grocery_items",
		Filters: []recordstore.Filter{s.family(), recordstore.Eq("id", itemID)},
	})
	if err != nil {
		return model.GroceryItem{}, &optimistic.Error{Action: "load item", Err: err}
	}
	if row == nil {
		return model.GroceryItem{}, optimistic.Reject(ErrNotFound)
	}
	return itemFromRow(row), nil
}

// entry finds a list entry in the active or unpriced snapshots, falling
// back to the store.
func (s *Service) entry(ctx context.Context, entryID string) (model.ShoppingEntry, error) {
	for _, scope := range []*reconcile.Scope[[]model.ShoppingEntry]{s.Active, s.Unpriced} {
		for _, e := range scope.Get() {
			if e.ID == entryID {
				return e, nil
			}
		}
	}
	entries, err := s.loadEntries(ctx, recordstore.Asc("added_at"), recordstore.Eq("id", entryID))
	if err != nil {
		return model.ShoppingEntry{}, &optimistic.Error{Action: "load entry", Err: err}
	}
	if len(entries) == 0 {
		return model.ShoppingEntry{}, optimistic.Reject(ErrNotFound)
	}
	return entries[0], nil
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

// without returns a copy of list minus the elements that match.
func without[T any](list []T, match func(T) bool) []T {
	return slices.DeleteFunc(slices.Clone(list), match)
}
