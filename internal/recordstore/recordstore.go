// Package recordstore is the generic table access the client core is written
// against: filtered reads, inserts, updates, upserts, deletes and a
// change-notification feed keyed by table and row filter.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalid marks requests the store refuses before touching data: unknown
// tables or columns, malformed values, unfiltered bulk writes.
var ErrInvalid = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Op is a filter operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpIs    Op = "is"
	OpIn    Op = "in"
	OpILike Op = "ilike"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
)

// Filter restricts a read, write or subscription to matching rows.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }
func IsNull(column string) Filter         { return Filter{Column: column, Op: OpIs} }
func ILike(column, pattern string) Filter { return Filter{Column: column, Op: OpILike, Value: pattern} }
func Gt(column string, value any) Filter  { return Filter{Column: column, Op: OpGt, Value: value} }
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }
func Lt(column string, value any) Filter  { return Filter{Column: column, Op: OpLt, Value: value} }
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }
func In[T any](column string, values []T) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vs}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s=%s.%v", f.Column, f.Op, f.Value)
}

// Order sorts a read.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query describes a filtered read. Limit <= 0 means no limit.
type Query struct {
	Table   string   `json:"table"`
	Filters []Filter `json:"filters,omitempty"`
	Order   []Order  `json:"order,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// ChangeType is the kind of row change carried by the feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-level change notification.
type Change struct {
	Table string     `json:"table"`
	Type  ChangeType `json:"type"`
	New   Row        `json:"new,omitempty"`
	Old   Row        `json:"old,omitempty"`
	Seq   int64      `json:"seq"`
	At    time.Time  `json:"at"`
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID     int64   `json:"id"`
	Table  string  `json:"table"`
	Filter *Filter `json:"filter,omitempty"`
}

// Store is the remote record store as seen by the client.
type Store interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	Update(ctx context.Context, table string, patch Row, filters ...Filter) error
	Upsert(ctx context.Context, table string, rows []Row, conflict ...string) error
	Delete(ctx context.Context, table string, filters ...Filter) error
	Subscribe(table string, filter *Filter, onChange func(Change)) (Subscription, error)
	Unsubscribe(sub Subscription) error
}

// SelectOne returns the first row of q, or nil when nothing matches.
func SelectOne(ctx context.Context, s Store, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
