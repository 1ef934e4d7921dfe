package recordstore

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindFloat
	KindBool
	KindDate
	KindTime
)

// Table describes one table of the schema. Key is the primary key column; it is
// also the default upsert conflict target.
type Table struct {
	Name    string
	Key     string
	Columns map[string]Kind
}

// HasColumn reports whether col belongs to the table.
func (t *Table) HasColumn(col string) bool {
	_, ok := t.Columns[col]
	return ok
}

// ColumnNames returns the table's columns in a stable order.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var tables = map[string]*Table{
	"families": {Name: "families", Key: "id", Columns: map[string]Kind{
		"id": KindText, "name": KindText, "invite_code": KindText, "created_by": KindText, "created_at": KindTime,
	}},
	"profiles": {Name: "profiles", Key: "id", Columns: map[string]Kind{
		"id": KindText, "full_name": KindText, "nickname": KindText, "email": KindText, "phone": KindText,
		"avatar_url": KindText, "gender": KindText, "date_of_birth": KindDate, "anniversary_date": KindDate,
		"spouse_id": KindText, "created_at": KindTime,
	}},
	"family_members": {Name: "family_members", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "user_id": KindText, "role": KindText, "relation": KindText,
		"father_id": KindText, "mother_id": KindText, "added_by": KindText, "created_at": KindTime,
	}},
	"grocery_categories": {Name: "grocery_categories", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "name": KindText, "created_by": KindText, "created_at": KindTime,
	}},
	"grocery_items": {Name: "grocery_items", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "name": KindText, "quantity_type": KindText,
		"category_id": KindText, "created_by": KindText, "created_at": KindTime,
	}},
	"shopping_list": {Name: "shopping_list", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "item_id": KindText, "quantity": KindFloat, "added_by": KindText,
		"added_at": KindTime, "is_bought": KindBool, "bought_by": KindText, "bought_at": KindTime, "price": KindFloat,
	}},
	"grocery_history": {Name: "grocery_history", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "item_name": KindText, "quantity": KindFloat,
		"quantity_type": KindText, "price": KindFloat, "bought_by": KindText, "bought_at": KindTime,
	}},
	"milk_deliveries": {Name: "milk_deliveries", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "delivery_date": KindDate, "quantity": KindFloat,
		"cancelled": KindBool, "created_at": KindTime,
	}},
	"milk_defaults": {Name: "milk_defaults", Key: "family_id", Columns: map[string]Kind{
		"family_id": KindText, "default_quantity": KindFloat, "packet_price": KindFloat,
		"delivery_charge_type": KindText, "delivery_charge_amount": KindFloat, "vendor_contact": KindText,
		"updated_at": KindTime,
	}},
	"milk_payments": {Name: "milk_payments", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "payment_date": KindDate, "amount": KindFloat,
		"from_date": KindDate, "to_date": KindDate, "advance_balance_after": KindFloat, "created_at": KindTime,
	}},
	"milk_advance": {Name: "milk_advance", Key: "family_id", Columns: map[string]Kind{
		"family_id": KindText, "balance": KindFloat, "updated_at": KindTime,
	}},
	"notifications": {Name: "notifications", Key: "id", Columns: map[string]Kind{
		"id": KindText, "family_id": KindText, "user_id": KindText, "actor_id": KindText,
		"action_type": KindText, "message": KindText, "read": KindBool, "created_at": KindTime,
	}},
}

// Lookup returns the schema entry for name.
func Lookup(name string) (*Table, error) {
	t, ok := tables[name]
	if !ok {
		return nil, invalidf("unknown table %q", name)
	}
	return t, nil
}

// Tables lists every table name.
func Tables() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode converts a client value into the column's storage form.
func (t *Table) Encode(col string, v any) (any, error) {
	kind, ok := t.Columns[col]
	if !ok {
		return nil, invalidf("unknown column %s.%s", t.Name, col)
	}
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, invalidf("%s.%s: expected number, got %T", t.Name, col, v)
		}
		return f, nil
	case KindBool:
		b, ok := toBool(v)
		if !ok {
			return nil, invalidf("%s.%s: expected boolean, got %T", t.Name, col, v)
		}
		return b, nil
	case KindDate:
		switch d := v.(type) {
		case time.Time:
			return FormatDate(d), nil
		case string:
			if _, err := ParseDate(d); err != nil {
				return nil, invalidf("%s.%s: bad date %q", t.Name, col, d)
			}
			return strings.TrimSpace(d), nil
		}
		return nil, invalidf("%s.%s: expected date, got %T", t.Name, col, v)
	case KindTime:
		switch ts := v.(type) {
		case time.Time:
			return FormatTime(ts), nil
		case string:
			parsed, err := ParseTime(ts)
			if err != nil {
				return nil, invalidf("%s.%s: bad timestamp %q", t.Name, col, ts)
			}
			return FormatTime(parsed), nil
		}
		return nil, invalidf("%s.%s: expected timestamp, got %T", t.Name, col, v)
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case json.Number:
			return s.String(), nil
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		}
		return nil, invalidf("%s.%s: expected text, got %T", t.Name, col, v)
	}
}

// Decode converts a driver value read from col into its Row form.
func (t *Table) Decode(col string, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t.Columns[col] {
	case KindFloat:
		if f, ok := toFloat(v); ok {
			return f
		}
	case KindBool:
		if b, ok := toBool(v); ok {
			return b
		}
	case KindDate:
		if ts, ok := v.(time.Time); ok {
			return FormatDate(ts)
		}
	case KindTime:
		if ts, ok := v.(time.Time); ok {
			return FormatTime(ts)
		}
		if s, ok := v.(string); ok && s == "" {
			return nil
		}
	}
	return v
}

// EncodeRow validates and converts every column of r.
func (t *Table) EncodeRow(r Row) (Row, error) {
	out := make(Row, len(r))
	for col, v := range r {
		enc, err := t.Encode(col, v)
		if err != nil {
			return nil, err
		}
		out[col] = enc
	}
	return out, nil
}

// EncodeFilter converts f's value into storage form so it survives a JSON
// round trip unchanged. Ilike patterns and null checks pass through.
func (t *Table) EncodeFilter(f Filter) (Filter, error) {
	if err := t.checkFilter(f); err != nil {
		return Filter{}, err
	}
	if f.Value == nil || f.Op == OpILike || f.Op == OpIs {
		return f, nil
	}
	if f.Op == OpIn {
		vals := listValues(f.Value)
		enc := make([]any, len(vals))
		for i, v := range vals {
			ev, err := t.Encode(f.Column, v)
			if err != nil {
				return Filter{}, err
			}
			enc[i] = ev
		}
		f.Value = enc
		return f, nil
	}
	v, err := t.Encode(f.Column, f.Value)
	if err != nil {
		return Filter{}, err
	}
	f.Value = v
	return f, nil
}

// DecodeRow converts a stored row into its client form.
func (t *Table) DecodeRow(r Row) Row {
	out := make(Row, len(r))
	for col, v := range r {
		out[col] = t.Decode(col, v)
	}
	return out
}

func (t *Table) checkFilter(f Filter) error {
	if !t.HasColumn(f.Column) {
		return invalidf("unknown column %s.%s", t.Name, f.Column)
	}
	switch f.Op {
	case OpEq, OpNeq, OpIs, OpIn, OpILike, OpGt, OpGte, OpLt, OpLte:
		return nil
	}
	return invalidf("unknown operator %q", f.Op)
}
