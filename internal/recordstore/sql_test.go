package recordstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/storetest"
)

type changeLog struct {
	mu      sync.Mutex
	changes []recordstore.Change
}

func (l *changeLog) add(ch recordstore.Change) {
	l.mu.Lock()
	l.changes = append(l.changes, ch)
	l.mu.Unlock()
}

func (l *changeLog) all() []recordstore.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordstore.Change(nil), l.changes...)
}

func TestInsertGeneratesIDAndTimestamps(t *testing.T) {
	fixed := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	s := storetest.New(t, recordstore.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	rows, err := s.Insert(ctx, "grocery_items", recordstore.Row{
		"family_id": "f1", "name": "Milk", "quantity_type": "liters",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.NotEmpty(t, got.String("id"))
	assert.Equal(t, "Milk", got.String("name"))
	assert.Equal(t, fixed, got.Time("created_at"))
	assert.Nil(t, got["category_id"])
}

func TestSelectFiltersOrderLimit(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "grocery_history",
		recordstore.Row{"family_id": "f1", "item_name": "Rice", "quantity": 2.0, "quantity_type": "kgs", "price": 120.0, "bought_at": "2024-01-03T08:00:00Z"},
		recordstore.Row{"family_id": "f1", "item_name": "Brown Rice", "quantity": 1.0, "quantity_type": "kgs", "bought_at": "2024-01-05T08:00:00Z"},
		recordstore.Row{"family_id": "f1", "item_name": "Eggs", "quantity": 0.5, "quantity_type": "dozens", "price": 40.0, "bought_at": "2024-01-04T08:00:00Z"},
		recordstore.Row{"family_id": "f2", "item_name": "Rice", "quantity": 1.0, "quantity_type": "kgs", "bought_at": "2024-01-06T08:00:00Z"},
	)
	require.NoError(t, err)

	rows, err := s.Select(ctx, recordstore.Query{
		Table:   "grocery_history",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", "f1"), recordstore.ILike("item_name", "%RICE%")},
		Order:   []recordstore.Order{recordstore.Desc("bought_at")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Brown Rice", rows[0].String("item_name"))
	assert.Nil(t, rows[0].FloatPtr("price"))
	assert.Equal(t, 120.0, rows[1].Float("price"))

	rows, err = s.Select(ctx, recordstore.Query{
		Table: "grocery_history",
		Filters: []recordstore.Filter{
			recordstore.Eq("family_id", "f1"),
			recordstore.IsNull("price"),
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = s.Select(ctx, recordstore.Query{
		Table: "grocery_history",
		Filters: []recordstore.Filter{
			recordstore.Gte("bought_at", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)),
			recordstore.In("item_name", []string{"Rice", "Eggs"}),
		},
		Order: []recordstore.Order{recordstore.Asc("bought_at")},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Eggs", rows[0].String("item_name"))
}

func TestUnknownNamesRejected(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.Select(ctx, recordstore.Query{Table: "users"})
	assert.True(t, errors.Is(err, recordstore.ErrInvalid))

	_, err = s.Select(ctx, recordstore.Query{Table: "profiles", Filters: []recordstore.Filter{recordstore.Eq("password", "x")}})
	assert.True(t, errors.Is(err, recordstore.ErrInvalid))

	_, err = s.Insert(ctx, "profiles", recordstore.Row{"id": "u1", "shoe_size": 9.0})
	assert.True(t, errors.Is(err, recordstore.ErrInvalid))

	_, err = s.Insert(ctx, "milk_deliveries", recordstore.Row{"family_id": "f1", "delivery_date": "05/01/2024"})
	assert.True(t, errors.Is(err, recordstore.ErrInvalid))

	err = s.Delete(ctx, "shopping_list")
	assert.True(t, errors.Is(err, recordstore.ErrInvalid), "unfiltered delete must be refused")
}

func TestUpdatePublishesOldAndNew(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	log := &changeLog{}

	rows, err := s.Insert(ctx, "shopping_list", recordstore.Row{"family_id": "f1", "item_id": "i1", "quantity": 1.0})
	require.NoError(t, err)
	id := rows[0].String("id")

	_, err = s.Subscribe("shopping_list", &recordstore.Filter{Column: "family_id", Op: recordstore.OpEq, Value: "f1"}, log.add)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "shopping_list", recordstore.Row{"quantity": 2.5}, recordstore.Eq("id", id)))

	got, err := recordstore.SelectOne(ctx, s, recordstore.Query{Table: "shopping_list", Filters: []recordstore.Filter{recordstore.Eq("id", id)}})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.Float("quantity"))
	assert.False(t, got.Bool("is_bought"))

	changes := log.all()
	require.Len(t, changes, 1)
	assert.Equal(t, recordstore.ChangeUpdate, changes[0].Type)
	assert.Equal(t, 1.0, changes[0].Old.Float("quantity"))
	assert.Equal(t, 2.5, changes[0].New.Float("quantity"))

	// An update matching nothing is a no-op, not an error.
	require.NoError(t, s.Update(ctx, "shopping_list", recordstore.Row{"quantity": 3.0}, recordstore.Eq("id", "missing")))
	assert.Len(t, log.all(), 1)
}

func TestUpsertOnCompositeConflict(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	log := &changeLog{}
	_, err := s.Subscribe("milk_deliveries", nil, log.add)
	require.NoError(t, err)

	day := recordstore.Row{"family_id": "f1", "delivery_date": "2024-05-01", "quantity": 1.0, "cancelled": false}
	require.NoError(t, s.Upsert(ctx, "milk_deliveries", []recordstore.Row{day}, "family_id", "delivery_date"))

	first, err := recordstore.SelectOne(ctx, s, recordstore.Query{Table: "milk_deliveries"})
	require.NoError(t, err)

	day = recordstore.Row{"family_id": "f1", "delivery_date": "2024-05-01", "quantity": 1.5, "cancelled": true}
	require.NoError(t, s.Upsert(ctx, "milk_deliveries", []recordstore.Row{day}, "family_id", "delivery_date"))

	rows, err := s.Select(ctx, recordstore.Query{Table: "milk_deliveries"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.String("id"), rows[0].String("id"), "id survives the upsert")
	assert.Equal(t, 1.5, rows[0].Float("quantity"))
	assert.True(t, rows[0].Bool("cancelled"))

	changes := log.all()
	require.Len(t, changes, 2)
	assert.Equal(t, recordstore.ChangeInsert, changes[0].Type)
	assert.Equal(t, recordstore.ChangeUpdate, changes[1].Type)
	assert.Less(t, changes[0].Seq, changes[1].Seq)
}

func TestUpsertSingletonByKey(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "milk_advance", []recordstore.Row{{"family_id": "f1", "balance": 20.0}}))
	require.NoError(t, s.Upsert(ctx, "milk_advance", []recordstore.Row{{"family_id": "f1", "balance": 5.0}}))

	rows, err := s.Select(ctx, recordstore.Query{Table: "milk_advance"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0].Float("balance"))
	assert.False(t, rows[0].Time("updated_at").IsZero())
}

func TestDeletePublishesOldRow(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	log := &changeLog{}

	rows, err := s.Insert(ctx, "shopping_list",
		recordstore.Row{"family_id": "f1", "item_id": "i1", "quantity": 1.0},
		recordstore.Row{"family_id": "f2", "item_id": "i1", "quantity": 1.0},
	)
	require.NoError(t, err)
	_, err = s.Subscribe("shopping_list", &recordstore.Filter{Column: "family_id", Op: recordstore.OpEq, Value: "f1"}, log.add)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "shopping_list", recordstore.In("id", []string{rows[0].String("id"), rows[1].String("id")})))

	left, err := s.Select(ctx, recordstore.Query{Table: "shopping_list"})
	require.NoError(t, err)
	assert.Empty(t, left)

	changes := log.all()
	require.Len(t, changes, 1, "only the f1 row matches the subscription filter")
	assert.Equal(t, recordstore.ChangeDelete, changes[0].Type)
	assert.Equal(t, rows[0].String("id"), changes[0].Old.String("id"))
}

func TestActiveEntryBackstop(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "shopping_list", recordstore.Row{"family_id": "f1", "item_id": "i1", "quantity": 1.0})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "shopping_list", recordstore.Row{"family_id": "f1", "item_id": "i1", "quantity": 1.0})
	assert.Error(t, err)
}

func TestObserverSeesOperations(t *testing.T) {
	var ops []string
	s := storetest.New(t, recordstore.WithObserver(func(table, op string, _ time.Duration, _ error) {
		ops = append(ops, table+":"+op)
	}))
	ctx := context.Background()

	_, _ = s.Select(ctx, recordstore.Query{Table: "families"})
	_, _ = s.Insert(ctx, "families", recordstore.Row{"name": "Rao", "invite_code": "ABC123"})
	assert.Equal(t, []string{"families:select", "families:insert"}, ops)
}

func TestEncodeFilterNormalizesValues(t *testing.T) {
	tbl, err := recordstore.Lookup("milk_deliveries")
	require.NoError(t, err)

	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	f, err := tbl.EncodeFilter(recordstore.Gt("delivery_date", day))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", f.Value)

	f, err = tbl.EncodeFilter(recordstore.In("quantity", []int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, f.Value)

	_, err = tbl.EncodeFilter(recordstore.Eq("vendor", "x"))
	assert.ErrorIs(t, err, recordstore.ErrInvalid)
}
