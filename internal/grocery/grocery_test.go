package grocery

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/fampulse/internal/gesture"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/storetest"
)

const familyID = "fam-1"

// countingStore records the mutating calls made through it.
type countingStore struct {
	recordstore.Store

	mu      sync.Mutex
	deletes map[string]int
}

func (c *countingStore) Delete(ctx context.Context, table string, filters ...recordstore.Filter) error {
	c.mu.Lock()
	c.deletes[table]++
	c.mu.Unlock()
	return c.Store.Delete(ctx, table, filters...)
}

func (c *countingStore) deleteCount(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletes[table]
}

type fixture struct {
	store *countingStore
	svc   *Service
	cache *reconcile.Cache
	clock time.Time
}

func newFixture(t *testing.T, role model.Role, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: &countingStore{Store: storetest.New(t), deletes: map[string]int{}},
		clock: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.cache = reconcile.New(f.store, storetest.Logger())
	session := model.Session{UserID: "asha", FamilyID: familyID, Role: role}
	opts = append([]Option{WithClock(f.now)}, opts...)
	f.svc = New(f.store, f.cache, optimistic.New(storetest.Logger()), session, storetest.Logger(), opts...)
	return f
}

// now advances one minute per call so purchases get distinct times.
func (f *fixture) now() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fixture) insert(t *testing.T, table string, row recordstore.Row) string {
	t.Helper()
	rows, err := f.store.Insert(context.Background(), table, row)
	require.NoError(t, err)
	return rows[0].String("id")
}

func (f *fixture) category(t *testing.T, name string) string {
	return f.insert(t, "grocery_categories", recordstore.Row{"family_id": familyID, "name": name})
}

func (f *fixture) item(t *testing.T, name string, unit model.QuantityType, categoryID string) string {
	return f.insert(t, "grocery_items", recordstore.Row{
		"family_id": familyID, "name": name, "quantity_type": string(unit), "category_id": categoryID,
	})
}

func (f *fixture) entries(t *testing.T, filters ...recordstore.Filter) []recordstore.Row {
	t.Helper()
	rows, err := f.store.Select(context.Background(), recordstore.Query{
		Table:   "shopping_list",
		Filters: append([]recordstore.Filter{recordstore.Eq("family_id", familyID)}, filters...),
	})
	require.NoError(t, err)
	return rows
}

func (f *fixture) history(t *testing.T) []recordstore.Row {
	t.Helper()
	rows, err := f.store.Select(context.Background(), recordstore.Query{
		Table:   "grocery_history",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", familyID)},
		Order:   []recordstore.Order{recordstore.Desc("bought_at")},
	})
	require.NoError(t, err)
	return rows
}

func ptr(f float64) *float64 { return &f }

func TestAddToListIsIdempotent(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	itemID := f.item(t, "Rice", model.Kgs, f.category(t, "Staples"))
	f.cache.RefreshAll(ctx)

	require.NoError(t, f.svc.AddToList(ctx, itemID))
	_, err := f.svc.Search(ctx, "ric")
	require.NoError(t, err)
	require.NoError(t, f.svc.AddToList(ctx, itemID))

	assert.Len(t, f.entries(t, recordstore.Eq("is_bought", false)), 1)
	assert.Len(t, f.svc.Active.Get(), 1)
	assert.Empty(t, f.svc.SearchTerm())
}

func TestAddToListPrefillsQuantity(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	cat := f.category(t, "Staples")
	rice := f.item(t, "Rice", model.Kgs, cat)
	eggs := f.item(t, "Eggs", model.Dozens, cat)
	f.insert(t, "grocery_history", recordstore.Row{
		"family_id": familyID, "item_name": "Rice", "quantity": 5.0, "quantity_type": "kgs",
		"bought_at": time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	})
	f.insert(t, "grocery_history", recordstore.Row{
		"family_id": familyID, "item_name": "Rice", "quantity": 2.0, "quantity_type": "kgs",
		"bought_at": time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	})

	require.NoError(t, f.svc.AddToList(ctx, rice))
	require.NoError(t, f.svc.AddToList(ctx, eggs))

	quantities := map[string]float64{}
	for _, r := range f.entries(t) {
		quantities[r.String("item_id")] = r.Float("quantity")
	}
	assert.Equal(t, 5.0, quantities[rice])
	assert.Equal(t, 0.5, quantities[eggs])
}

func TestAddToListReplacesBoughtEntry(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	itemID := f.item(t, "Milk Powder", model.Packets, "")
	f.insert(t, "shopping_list", recordstore.Row{
		"family_id": familyID, "item_id": itemID, "quantity": 1.0, "is_bought": true,
		"bought_at": time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	})

	require.NoError(t, f.svc.AddToList(ctx, itemID))

	rows := f.entries(t)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Bool("is_bought"))
	assert.Empty(t, f.svc.Unpriced.Get())
}

func TestAddToListKeepsPriceOfBoughtEntry(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	paneer := f.item(t, "Paneer", model.Packets, f.category(t, "Dairy"))
	require.NoError(t, f.svc.AddToList(ctx, paneer))
	entryID := f.svc.Active.Get()[0].ID
	require.NoError(t, f.svc.MarkBought(ctx, entryID))
	require.NoError(t, f.svc.SetPrice(ctx, entryID, 90))

	require.NoError(t, f.svc.AddToList(ctx, paneer))

	hist := f.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "Paneer", hist[0].String("item_name"))
	assert.Equal(t, 90.0, hist[0].Float("price"))

	rows := f.entries(t)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Bool("is_bought"))
}

func TestAddToListNotifiesFamily(t *testing.T) {
	store := storetest.New(t)
	notifier := notify.New(store, storetest.Logger())
	ctx := context.Background()
	for _, user := range []string{"asha", "ravi"} {
		_, err := store.Insert(ctx, "family_members", recordstore.Row{"family_id": familyID, "user_id": user, "role": "kid"})
		require.NoError(t, err)
	}
	cache := reconcile.New(store, storetest.Logger())
	svc := New(store, cache, optimistic.New(storetest.Logger()),
		model.Session{UserID: "asha", FamilyID: familyID, Role: model.RoleAdmin}, storetest.Logger(), WithNotifier(notifier))
	rows, err := store.Insert(ctx, "grocery_items", recordstore.Row{"family_id": familyID, "name": "Bread", "quantity_type": "packets"})
	require.NoError(t, err)

	require.NoError(t, svc.AddToList(ctx, rows[0].String("id")))

	list, err := notifier.List(ctx, "ravi", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bread added to the shopping list", list[0].Message)
	count, err := notifier.UnreadCount(ctx, "asha")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddToListUnknownItem(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	err := f.svc.AddToList(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, optimistic.IsValidation(err))
}

func TestAdjustStaysOnSteps(t *testing.T) {
	dirs := []int{1, 1, -1, -1, -1, -1, 1, 1, 1, -1, 1, -1, -1, -1, -1, -1, 1}
	for _, unit := range model.QuantityTypes {
		step := Step(unit)
		q := DefaultQuantity(unit)
		for _, dir := range dirs {
			q = Adjust(unit, q, dir)
			assert.GreaterOrEqual(t, q, step, "%s below one step", unit)
			assert.Zero(t, math.Mod(q, step), "%s off the step grid: %v", unit, q)
		}
	}
}

func TestStep(t *testing.T) {
	tests := []struct {
		unit model.QuantityType
		want float64
	}{
		{model.Kgs, 0.25},
		{model.Liters, 0.5},
		{model.Dozens, 0.5},
		{model.Pieces, 1},
		{model.Packets, 1},
	}
	for _, tt := range tests {
		if got := Step(tt.unit); got != tt.want {
			t.Errorf("Step(%s) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestUpdateQuantityWritesAbsoluteValue(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	itemID := f.item(t, "Onions", model.Kgs, "")
	require.NoError(t, f.svc.AddToList(ctx, itemID))
	entryID := f.svc.Active.Get()[0].ID

	require.NoError(t, f.svc.UpdateQuantity(ctx, entryID, 1))
	assert.Equal(t, 1.25, f.entries(t)[0].Float("quantity"))

	for range 10 {
		require.NoError(t, f.svc.UpdateQuantity(ctx, entryID, -1))
	}
	assert.Equal(t, 0.25, f.entries(t)[0].Float("quantity"))
	assert.Equal(t, 0.25, f.svc.Active.Get()[0].Quantity)
}

func TestSwipeThresholds(t *testing.T) {
	tests := []struct {
		name    string
		to      float64
		deletes int
	}{
		{"short right swipe reverts", 99, 0},
		{"short left swipe reverts", -60, 0},
		{"right swipe past threshold deletes", 180, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.RoleAdmin)
			ctx := context.Background()
			require.NoError(t, f.svc.AddToList(ctx, f.item(t, "Tomatoes", model.Kgs, "")))
			entryID := f.svc.Active.Get()[0].ID

			g := gesture.New(gesture.ShoppingRow)
			g.Start(400)
			g.Move(400 + tt.to)
			outcome := g.End()
			require.NoError(t, f.svc.Swipe(ctx, entryID, outcome, nil))

			assert.Equal(t, tt.deletes, f.store.deleteCount("shopping_list"))
			assert.Len(t, f.entries(t), 1-tt.deletes)
			if tt.deletes == 0 {
				assert.Zero(t, g.Offset())
			}
		})
	}
}

func TestSwipeBuyRequiresConfirm(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	require.NoError(t, f.svc.AddToList(ctx, f.item(t, "Bananas", model.Dozens, "")))
	entryID := f.svc.Active.Get()[0].ID

	g := gesture.New(gesture.ShoppingRow)
	g.Start(300)
	g.Move(100)
	outcome := g.End()
	require.Equal(t, gesture.RevealBuy, outcome)
	require.NoError(t, f.svc.Swipe(ctx, entryID, outcome, nil))
	assert.False(t, f.entries(t)[0].Bool("is_bought"))

	require.NoError(t, f.svc.Swipe(ctx, entryID, g.ConfirmBuy(), ptr(60)))
	assert.Empty(t, f.entries(t))
	hist := f.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, 60.0, hist[0].Float("price"))
	assert.Equal(t, "asha", hist[0].String("bought_by"))
}

func TestPurchaseWithoutPriceThenSavePrices(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	cat := f.category(t, "Dairy")
	paneer := f.item(t, "Paneer", model.Packets, cat)
	curd := f.item(t, "Curd", model.Packets, cat)
	require.NoError(t, f.svc.AddToList(ctx, paneer))
	require.NoError(t, f.svc.AddToList(ctx, curd))

	for _, e := range f.svc.Active.Get() {
		require.NoError(t, f.svc.MarkBought(ctx, e.ID))
	}
	assert.Empty(t, f.svc.Active.Get())
	require.Len(t, f.svc.Unpriced.Get(), 2)
	hist := f.history(t)
	require.Len(t, hist, 2)
	for _, h := range hist {
		assert.Nil(t, h["price"])
	}

	var paneerEntry string
	for _, e := range f.svc.Unpriced.Get() {
		if e.ItemID == paneer {
			paneerEntry = e.ID
		}
	}
	require.NoError(t, f.svc.SavePrices(ctx, map[string]float64{paneerEntry: 90}))

	hist = f.history(t)
	require.Len(t, hist, 2, "priced record replaces the unpriced one")
	byName := map[string]recordstore.Row{}
	for _, h := range hist {
		byName[h.String("item_name")] = h
	}
	assert.Equal(t, 90.0, byName["Paneer"].Float("price"))
	assert.Nil(t, byName["Curd"]["price"])

	rows := f.entries(t)
	require.Len(t, rows, 1)
	assert.Equal(t, curd, rows[0].String("item_id"))
	require.Len(t, f.svc.Unpriced.Get(), 1)

	require.NoError(t, f.svc.Archive(ctx, rows[0].String("id")))
	assert.Empty(t, f.entries(t))
	assert.Len(t, f.history(t), 2)
}

func TestCompletePurchaseRejectsNegativePrice(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	err := f.svc.CompletePurchase(context.Background(), "any", ptr(-1))
	assert.True(t, optimistic.IsValidation(err))
}

func TestRenameCategoryKeepsItems(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	cat := f.category(t, "Veg")
	other := f.category(t, "Fruit")
	ids := []string{
		f.item(t, "Okra", model.Kgs, cat),
		f.item(t, "Carrot", model.Kgs, cat),
		f.item(t, "Mango", model.Kgs, other),
	}
	f.cache.RefreshAll(ctx)

	require.NoError(t, f.svc.RenameCategory(ctx, cat, "green vegetables"))

	require.NoError(t, f.svc.Catalog.Refresh(ctx))
	byID := map[string]model.GroceryItem{}
	for _, it := range f.svc.Catalog.Get() {
		byID[it.ID] = it
	}
	for _, id := range ids[:2] {
		require.NotNil(t, byID[id].Category)
		assert.Equal(t, cat, byID[id].CategoryID)
		assert.Equal(t, "Green Vegetables", byID[id].Category.Name)
	}
	assert.Equal(t, other, byID[ids[2]].CategoryID)
	assert.Equal(t, "Fruit", byID[ids[2]].Category.Name)
}

func TestDeleteCategoryNullsItems(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	cat := f.category(t, "Snacks")
	itemID := f.item(t, "Chips", model.Packets, cat)
	f.cache.RefreshAll(ctx)

	require.NoError(t, f.svc.DeleteCategory(ctx, cat))

	assert.Empty(t, f.svc.Categories.Get())
	require.Len(t, f.svc.Catalog.Get(), 1)
	assert.Equal(t, itemID, f.svc.Catalog.Get()[0].ID)
	assert.Empty(t, f.svc.Catalog.Get()[0].CategoryID)
	assert.Nil(t, f.svc.Catalog.Get()[0].Category)
}

func TestAddCategoryRejectsDuplicate(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	require.NoError(t, f.svc.AddCategory(ctx, "  personal   care "))
	require.Len(t, f.svc.Categories.Get(), 1)
	assert.Equal(t, "Personal Care", f.svc.Categories.Get()[0].Name)

	err := f.svc.AddCategory(ctx, "PERSONAL CARE")
	assert.True(t, optimistic.IsValidation(err))
}

func TestSearch(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	for _, name := range []string{"Toor Dal", "Moong Dal", "Chana Dal", "Urad Dal", "Masoor Dal", "Dal Makhani Mix", "Rice"} {
		f.item(t, name, model.Kgs, "")
	}

	res, err := f.svc.Search(ctx, "dal")
	require.NoError(t, err)
	assert.Len(t, res.Items, SearchLimit)
	assert.True(t, res.OfferNew)

	res, err = f.svc.Search(ctx, "RICE")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.False(t, res.OfferNew)
	assert.Equal(t, "RICE", f.svc.SearchTerm())

	res, err = f.svc.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.OfferNew)
}

func TestCreateAndAdd(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	veg := f.category(t, "Sabzi")
	f.cache.RefreshAll(ctx)

	require.NoError(t, f.svc.CreateAndAdd(ctx, "fresh  tomatoes", model.Kgs, ""))
	require.Len(t, f.svc.Active.Get(), 1)
	entry := f.svc.Active.Get()[0]
	require.NotNil(t, entry.Item)
	assert.Equal(t, "Fresh Tomatoes", entry.Item.Name)
	assert.Equal(t, veg, entry.Item.CategoryID)

	err := f.svc.CreateAndAdd(ctx, "widget", model.Pieces, "")
	require.ErrorIs(t, err, ErrCategoryRequired)

	err = f.svc.CreateAndAdd(ctx, "Sugar", "boxes", veg)
	assert.True(t, optimistic.IsValidation(err))

	// An existing name is added rather than duplicated.
	require.NoError(t, f.svc.CreateAndAdd(ctx, "FRESH TOMATOES", model.Kgs, ""))
	rows, err := f.store.Select(ctx, recordstore.Query{Table: "grocery_items"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEditItem(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	cat := f.category(t, "Dairy")
	itemID := f.item(t, "Milk", model.Liters, "")
	require.NoError(t, f.svc.AddToList(ctx, itemID))
	f.cache.RefreshAll(ctx)

	require.NoError(t, f.svc.EditItem(ctx, itemID, "toned milk", model.Packets, cat))

	require.Len(t, f.svc.Active.Get(), 1)
	assert.Equal(t, "Toned Milk", f.svc.Active.Get()[0].Name())
	assert.Equal(t, model.Packets, f.svc.Active.Get()[0].Unit())
	assert.Equal(t, cat, f.svc.Catalog.Get()[0].CategoryID)
}

func TestDeleteHistoryRequiresAdmin(t *testing.T) {
	for _, role := range []model.Role{model.RoleAdminLite, model.RoleKid} {
		f := newFixture(t, role)
		err := f.svc.DeleteHistory(context.Background(), "h1")
		require.ErrorIs(t, err, ErrForbidden, role)
		assert.Zero(t, f.store.deleteCount("grocery_history"))
	}
}

func TestHistorySwipeAndDelete(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	id := f.insert(t, "grocery_history", recordstore.Row{
		"family_id": familyID, "item_name": "Ghee", "quantity": 1.0, "quantity_type": "liters", "price": 650.0,
		"bought_at": time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, f.svc.ShowHistory(ctx, true))

	g := gesture.New(gesture.HistoryRow)
	g.Start(0)
	g.Move(40)
	_, ok := f.svc.HistorySwipe(id, g.End())
	assert.False(t, ok)

	g.Start(0)
	g.Move(70)
	rec, ok := f.svc.HistorySwipe(id, g.End())
	require.True(t, ok)
	assert.Equal(t, "Ghee", rec.ItemName)
	assert.Zero(t, f.store.deleteCount("grocery_history"), "delete waits for confirmation")

	require.NoError(t, f.svc.DeleteHistory(ctx, id))
	assert.Empty(t, f.svc.History.Get())
	assert.Empty(t, f.history(t))
}

func TestHistoryFilterAndTrends(t *testing.T) {
	f := newFixture(t, model.RoleAdmin)
	ctx := context.Background()
	add := func(name string, price float64, day int) {
		f.insert(t, "grocery_history", recordstore.Row{
			"family_id": familyID, "item_name": name, "quantity": 1.0, "quantity_type": "liters", "price": price,
			"bought_at": time.Date(2025, 1, day, 18, 30, 0, 0, time.UTC),
		})
	}
	add("Milk", 30, 5)
	add("Oil", 180, 8)
	add("Milk", 32, 12)
	add("Milk", 31, 20)

	require.NoError(t, f.svc.ShowHistory(ctx, true))
	lines := f.svc.HistoryLines()
	require.Len(t, lines, 4)
	assert.Equal(t, "-1", lines[0].Trend.Decimal.String())
	assert.Equal(t, "2", lines[1].Trend.Decimal.String())
	assert.False(t, lines[2].Trend.Valid)
	assert.False(t, lines[3].Trend.Valid)
	assert.Equal(t, "273", f.svc.Spent().String())

	require.NoError(t, f.svc.SetHistoryFilter(ctx, HistoryFilter{
		Search: "mil",
		From:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
	}))
	records := f.svc.History.Get()
	require.Len(t, records, 1)
	assert.Equal(t, 32.0, *records[0].Price)

	err := f.svc.SetHistoryFilter(ctx, HistoryFilter{
		From: time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, optimistic.IsValidation(err))
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"basmati rice", "Basmati Rice"},
		{"  AMUL   butter ", "Amul Butter"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleCase(tt.in); got != tt.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
