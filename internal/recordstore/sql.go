package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/fampulse/internal/database"
)

// Observer is told about every store operation, e.g. to record metrics.
type Observer func(table, op string, elapsed time.Duration, err error)

// SQLStore is the Store implementation over database/sql. Every write is
// published on its Feed after it lands.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	feed    *Feed
	logger  *slog.Logger
	now     func() time.Time
	observe Observer
}

type Option func(*SQLStore)

// WithClock overrides the time source used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *SQLStore) { s.observe = o }
}

func NewSQLStore(db *sql.DB, dialect database.Dialect, logger *slog.Logger, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		feed:    NewFeed(logger.With("component", "feed")),
		logger:  logger,
		now:     time.Now,
		observe: func(string, string, time.Duration, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed returns the store's change feed.
func (s *SQLStore) Feed() *Feed { return s.feed }

func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()
	rows, err := s.selectQuery(ctx, q)
	s.observe(q.Table, "select", time.Since(start), err)
	return rows, err
}

func (s *SQLStore) Insert(ctx context.Context, table string, rows ...Row) ([]Row, error) {
	start := time.Now()
	out, err := s.insert(ctx, table, rows)
	s.observe(table, "insert", time.Since(start), err)
	return out, err
}

func (s *SQLStore) Update(ctx context.Context, table string, patch Row, filters ...Filter) error {
	start := time.Now()
	err := s.update(ctx, table, patch, filters)
	s.observe(table, "update", time.Since(start), err)
	return err
}

func (s *SQLStore) Upsert(ctx context.Context, table string, rows []Row, conflict ...string) error {
	start := time.Now()
	err := s.upsert(ctx, table, rows, conflict)
	s.observe(table, "upsert", time.Since(start), err)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, table string, filters ...Filter) error {
	start := time.Now()
	err := s.delete(ctx, table, filters)
	s.observe(table, "delete", time.Since(start), err)
	return err
}

func (s *SQLStore) Subscribe(table string, filter *Filter, onChange func(Change)) (Subscription, error) {
	t, err := Lookup(table)
	if err != nil {
		return Subscription{}, err
	}
	if filter != nil {
		if err := t.checkFilter(*filter); err != nil {
			return Subscription{}, err
		}
	}
	return s.feed.Subscribe(table, filter, onChange), nil
}

func (s *SQLStore) Unsubscribe(sub Subscription) error {
	s.feed.Unsubscribe(sub)
	return nil
}

func (s *SQLStore) selectQuery(ctx context.Context, q Query) ([]Row, error) {
	t, err := Lookup(q.Table)
	if err != nil {
		return nil, err
	}
	for _, o := range q.Order {
		if !t.HasColumn(o.Column) {
			return nil, invalidf("unknown order column %s.%s", t.Name, o.Column)
		}
	}
	return s.selectRows(ctx, t, q.Filters, q.Order, q.Limit)
}

func (s *SQLStore) selectRows(ctx context.Context, t *Table, filters []Filter, order []Order, limit int) ([]Row, error) {
	where, args, err := s.where(t, filters)
	if err != nil {
		return nil, err
	}
	cols := t.ColumnNames()
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM ` + t.Name + where
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = o.Column + " " + dir
		}
		query += ` ORDER BY ` + strings.Join(parts, ", ")
	}
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		r := make(Row, len(cols))
		for i, col := range cols {
			r[col] = t.Decode(col, vals[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var comparisons = map[Op]string{OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}

func (s *SQLStore) where(t *Table, filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		if err := t.checkFilter(f); err != nil {
			return "", nil, err
		}
		switch f.Op {
		case OpIs:
			if f.Value != nil {
				return "", nil, invalidf("is filter on %s only supports null", f.Column)
			}
			parts = append(parts, f.Column+" IS NULL")
		case OpEq, OpNeq:
			if f.Value == nil {
				if f.Op == OpEq {
					parts = append(parts, f.Column+" IS NULL")
				} else {
					parts = append(parts, f.Column+" IS NOT NULL")
				}
				continue
			}
			v, err := t.Encode(f.Column, f.Value)
			if err != nil {
				return "", nil, err
			}
			op := " = ?"
			if f.Op == OpNeq {
				op = " <> ?"
			}
			parts = append(parts, f.Column+op)
			args = append(args, v)
		case OpIn:
			vals := listValues(f.Value)
			if len(vals) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			marks := make([]string, len(vals))
			for i, raw := range vals {
				v, err := t.Encode(f.Column, raw)
				if err != nil {
					return "", nil, err
				}
				marks[i] = "?"
				args = append(args, v)
			}
			parts = append(parts, f.Column+" IN ("+strings.Join(marks, ", ")+")")
		case OpILike:
			pattern, ok := f.Value.(string)
			if !ok {
				return "", nil, invalidf("ilike filter on %s needs a text pattern", f.Column)
			}
			parts = append(parts, "LOWER("+f.Column+") LIKE LOWER(?)")
			args = append(args, pattern)
		default:
			if f.Value == nil {
				return "", nil, invalidf("%s filter on %s needs a value", f.Op, f.Column)
			}
			v, err := t.Encode(f.Column, f.Value)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, f.Column+" "+comparisons[f.Op]+" ?")
			args = append(args, v)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// fillDefaults assigns generated ids and timestamps the caller left out.
func (s *SQLStore) fillDefaults(t *Table, r Row, insert bool) {
	now := FormatTime(s.now())
	if insert {
		if t.Key == "id" {
			if id, _ := r["id"].(string); id == "" {
				r["id"] = uuid.NewString()
			}
		}
		for _, col := range []string{"created_at", "added_at"} {
			if t.HasColumn(col) && r[col] == nil {
				r[col] = now
			}
		}
	}
	if t.HasColumn("updated_at") && r["updated_at"] == nil {
		r["updated_at"] = now
	}
}

func sortedColumns(r Row) []string {
	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLStore) insert(ctx context.Context, table string, rows []Row) ([]Row, error) {
	t, err := Lookup(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	encoded := make([]Row, len(rows))
	for i, r := range rows {
		enc, err := t.EncodeRow(r)
		if err != nil {
			return nil, err
		}
		s.fillDefaults(t, enc, true)
		if enc[t.Key] == nil {
			return nil, invalidf("%s: missing %s", t.Name, t.Key)
		}
		encoded[i] = enc
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert %s: %w", t.Name, err)
	}
	defer tx.Rollback()

	for _, enc := range encoded {
		cols := sortedColumns(enc)
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = enc[col]
		}
		query := `INSERT INTO ` + t.Name + ` (` + strings.Join(cols, ", ") + `) VALUES (` + placeholders(len(cols)) + `)`
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert %s: %w", t.Name, err)
	}

	out := make([]Row, 0, len(encoded))
	for _, enc := range encoded {
		stored, err := s.selectRows(ctx, t, []Filter{Eq(t.Key, enc[t.Key])}, nil, 1)
		if err != nil {
			return nil, err
		}
		if len(stored) == 0 {
			continue
		}
		out = append(out, stored[0])
		s.feed.Publish(Change{Table: t.Name, Type: ChangeInsert, New: stored[0]})
	}
	return out, nil
}

func (s *SQLStore) update(ctx context.Context, table string, patch Row, filters []Filter) error {
	t, err := Lookup(table)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return invalidf("update %s without filters", t.Name)
	}
	if len(patch) == 0 {
		return invalidf("update %s with empty patch", t.Name)
	}
	if _, ok := patch[t.Key]; ok {
		return invalidf("update %s: key column %s is immutable", t.Name, t.Key)
	}
	enc, err := t.EncodeRow(patch)
	if err != nil {
		return err
	}
	s.fillDefaults(t, enc, false)

	old, err := s.selectRows(ctx, t, filters, nil, 0)
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}
	keys := keyValues(t, old)

	cols := sortedColumns(enc)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(keys))
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, enc[col])
	}
	args = append(args, keys...)
	query := `UPDATE ` + t.Name + ` SET ` + strings.Join(sets, ", ") +
		` WHERE ` + t.Key + ` IN (` + placeholders(len(keys)) + `)`
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("update %s: %w", t.Name, err)
	}

	for _, o := range old {
		stored, err := s.selectRows(ctx, t, []Filter{Eq(t.Key, o[t.Key])}, nil, 1)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			continue
		}
		s.feed.Publish(Change{Table: t.Name, Type: ChangeUpdate, New: stored[0], Old: o})
	}
	return nil
}

func (s *SQLStore) upsert(ctx context.Context, table string, rows []Row, conflict []string) error {
	t, err := Lookup(table)
	if err != nil {
		return err
	}
	if len(conflict) == 0 {
		conflict = []string{t.Key}
	}
	for _, col := range conflict {
		if !t.HasColumn(col) {
			return invalidf("unknown conflict column %s.%s", t.Name, col)
		}
	}
	isConflict := make(map[string]bool, len(conflict))
	for _, col := range conflict {
		isConflict[col] = true
	}

	for _, r := range rows {
		enc, err := t.EncodeRow(r)
		if err != nil {
			return err
		}
		s.fillDefaults(t, enc, true)

		match := make([]Filter, len(conflict))
		for i, col := range conflict {
			if enc[col] == nil {
				return invalidf("upsert %s: missing conflict column %s", t.Name, col)
			}
			match[i] = Eq(col, enc[col])
		}
		old, err := s.selectRows(ctx, t, match, nil, 1)
		if err != nil {
			return err
		}

		cols := sortedColumns(enc)
		args := make([]any, len(cols))
		var sets []string
		for i, col := range cols {
			args[i] = enc[col]
			if isConflict[col] || col == t.Key || col == "created_at" {
				continue
			}
			sets = append(sets, col+" = excluded."+col)
		}
		action := ` DO NOTHING`
		if len(sets) > 0 {
			action = ` DO UPDATE SET ` + strings.Join(sets, ", ")
		}
		query := `INSERT INTO ` + t.Name + ` (` + strings.Join(cols, ", ") + `) VALUES (` + placeholders(len(cols)) +
			`) ON CONFLICT (` + strings.Join(conflict, ", ") + `)` + action
		if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
			return fmt.Errorf("upsert %s: %w", t.Name, err)
		}

		stored, err := s.selectRows(ctx, t, match, nil, 1)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			continue
		}
		ch := Change{Table: t.Name, Type: ChangeInsert, New: stored[0]}
		if len(old) > 0 {
			ch.Type = ChangeUpdate
			ch.Old = old[0]
		}
		s.feed.Publish(ch)
	}
	return nil
}

func (s *SQLStore) delete(ctx context.Context, table string, filters []Filter) error {
	t, err := Lookup(table)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		return invalidf("delete from %s without filters", t.Name)
	}
	old, err := s.selectRows(ctx, t, filters, nil, 0)
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}
	keys := keyValues(t, old)
	query := `DELETE FROM ` + t.Name + ` WHERE ` + t.Key + ` IN (` + placeholders(len(keys)) + `)`
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), keys...); err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	for _, o := range old {
		s.feed.Publish(Change{Table: t.Name, Type: ChangeDelete, Old: o})
	}
	return nil
}

func keyValues(t *Table, rows []Row) []any {
	keys := make([]any, len(rows))
	for i, r := range rows {
		keys[i] = r[t.Key]
	}
	return keys
}
