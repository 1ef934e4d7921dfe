package recordstore

import (
	"fmt"
	"strings"
)

// Match reports whether r satisfies f. It mirrors the SQL semantics of the
// operator so the change feed and in-memory views filter like Select does.
func (f Filter) Match(r Row) bool {
	v, present := r[f.Column]
	if !present {
		v = nil
	}
	switch f.Op {
	case OpIs:
		return v == nil
	case OpEq:
		if f.Value == nil {
			return v == nil
		}
		return v != nil && compare(v, f.Value) == 0
	case OpNeq:
		if f.Value == nil {
			return v != nil
		}
		return v != nil && compare(v, f.Value) != 0
	case OpIn:
		if v == nil {
			return false
		}
		for _, want := range listValues(f.Value) {
			if compare(v, want) == 0 {
				return true
			}
		}
		return false
	case OpILike:
		if v == nil {
			return false
		}
		return likeMatch(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(f.Value)))
	case OpGt:
		return v != nil && f.Value != nil && compare(v, f.Value) > 0
	case OpGte:
		return v != nil && f.Value != nil && compare(v, f.Value) >= 0
	case OpLt:
		return v != nil && f.Value != nil && compare(v, f.Value) < 0
	case OpLte:
		return v != nil && f.Value != nil && compare(v, f.Value) <= 0
	}
	return false
}

// MatchAll reports whether r satisfies every filter.
func MatchAll(r Row, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(r) {
			return false
		}
	}
	return true
}

func listValues(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(vs))
		for i, f := range vs {
			out[i] = f
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

// compare orders numbers numerically, booleans false<true and everything
// else by its text form.
func compare(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := toBool(b); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return s != "" && likeMatch(s[1:], pattern[1:])
	}
	return s != "" && s[0] == pattern[0] && likeMatch(s[1:], pattern[1:])
}
