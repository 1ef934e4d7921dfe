package recordstore

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Date and timestamp layouts used for every stored date/time column. The
// timestamp layout is fixed-width so text ordering matches time ordering.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02T15:04:05.000000Z"
)

// FormatDate renders t's calendar date.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatTime renders t in UTC with the stored timestamp layout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseDate parses a stored date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// ParseTime parses a stored timestamp, accepting RFC 3339 as well.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Row is one record as exchanged with the store: text columns are strings,
// numbers float64, booleans bool, dates and timestamps their text layouts.
type Row map[string]any

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return strings.Trim(string(b), `"`)
	}
}

// StringPtr returns nil for NULL or empty text.
func (r Row) StringPtr(col string) *string {
	s := r.String(col)
	if s == "" {
		return nil
	}
	return &s
}

func (r Row) Float(col string) float64 {
	f, _ := toFloat(r[col])
	return f
}

// FloatPtr returns nil for NULL.
func (r Row) FloatPtr(col string) *float64 {
	f, ok := toFloat(r[col])
	if !ok {
		return nil
	}
	return &f
}

func (r Row) Bool(col string) bool {
	b, _ := toBool(r[col])
	return b
}

// Date returns the zero time when the column is NULL or malformed.
func (r Row) Date(col string) time.Time {
	t, err := ParseDate(r.String(col))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Time returns the zero time when the column is NULL or malformed.
func (r Row) Time(col string) time.Time {
	t, err := ParseTime(r.String(col))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r Row) TimePtr(col string) *time.Time {
	t := r.Time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		p, err := strconv.ParseBool(b)
		return p, err == nil
	case []byte:
		p, err := strconv.ParseBool(string(b))
		return p, err == nil
	}
	return false, false
}
