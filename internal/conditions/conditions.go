// Package conditions evaluates condition sets against product data.
package conditions

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/kosarica/feed-service/internal/types"
)

// Lookup resolves an attribute name to a value
type Lookup func(attribute string) (any, bool)

// MapLookup returns a Lookup over a plain map
func MapLookup(m map[string]any) Lookup {
	return func(attribute string) (any, bool) {
		v, ok := m[attribute]
		return v, ok
	}
}

// Operators
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNin      = "nin"
	OpLike     = "like"
	OpNlike    = "nlike"
	OpContains = "contains"
	OpNull     = "null"
	OpNotNull  = "notnull"
	OpEmpty    = "empty"
	OpNotEmpty = "notempty"
)

var operatorAliases = map[string]string{
	"=": OpEq, "==": OpEq, "!=": OpNeq, "<>": OpNeq,
	">": OpGt, ">=": OpGte, "<": OpLt, "<=": OpLte,
	"not_in": OpNin, "not_like": OpNlike, "not_null": OpNotNull, "not_empty": OpNotEmpty,
}

// Normalize maps operator aliases onto canonical names
func Normalize(op string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if canonical, ok := operatorAliases[op]; ok {
		return canonical
	}
	return op
}

// Match reports whether every condition holds. An empty set always matches.
func Match(conds []types.Condition, lookup Lookup) bool {
	for _, c := range conds {
		if !Evaluate(c, lookup) {
			return false
		}
	}
	return true
}

// Evaluate checks a single condition. Unknown operators never match.
func Evaluate(c types.Condition, lookup Lookup) bool {
	actual, present := lookup(c.Attribute)
	if !present {
		actual = nil
	}

	switch Normalize(c.Operator) {
	case OpNull:
		return isNil(actual)
	case OpNotNull:
		return !isNil(actual)
	case OpEmpty:
		return types.IsEmpty(actual)
	case OpNotEmpty:
		return !types.IsEmpty(actual)
	case OpEq:
		return equals(actual, c.Value)
	case OpNeq:
		return !equals(actual, c.Value)
	case OpGt:
		return compare(actual, c.Value) > 0
	case OpGte:
		return compare(actual, c.Value) >= 0
	case OpLt:
		return actual != nil && compare(actual, c.Value) < 0
	case OpLte:
		return actual != nil && compare(actual, c.Value) <= 0
	case OpIn:
		return inList(actual, c.Value)
	case OpNin:
		return !inList(actual, c.Value)
	case OpLike:
		return like(types.ToString(actual), types.ToString(c.Value))
	case OpNlike:
		return !like(types.ToString(actual), types.ToString(c.Value))
	case OpContains:
		return strings.Contains(strings.ToLower(types.ToString(actual)), strings.ToLower(types.ToString(c.Value)))
	}
	return false
}

// isNil also treats typed nil pointers, maps and slices as null
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func equals(a, b any) bool {
	if af, ok := types.ToFloat(a); ok {
		if bf, ok := types.ToFloat(b); ok {
			return af == bf
		}
	}
	return types.ToString(a) == types.ToString(b)
}

// compare returns -1, 0 or 1; numbers compare numerically, everything else as text
func compare(a, b any) int {
	if af, ok := types.ToFloat(a); ok {
		if bf, ok := types.ToFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(types.ToString(a), types.ToString(b))
}

func inList(actual, list any) bool {
	for _, candidate := range listValues(list) {
		if equals(actual, candidate) {
			return true
		}
	}
	// multi-valued attributes (category ids) match when any element is listed
	if values, ok := actual.([]int64); ok {
		for _, v := range values {
			for _, candidate := range listValues(list) {
				if equals(v, candidate) {
					return true
				}
			}
		}
	}
	return false
}

func listValues(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(t, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

var (
	likeMu    sync.RWMutex
	likeCache = make(map[string]*regexp.Regexp)
)

// like implements SQL LIKE with % and _ wildcards, case-insensitive
func like(value, pattern string) bool {
	likeMu.RLock()
	re, ok := likeCache[pattern]
	likeMu.RUnlock()
	if !ok {
		var b strings.Builder
		b.WriteString("(?is)^")
		for _, r := range pattern {
			switch r {
			case '%':
				b.WriteString(".*")
			case '_':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re = regexp.MustCompile(b.String())
		likeMu.Lock()
		likeCache[pattern] = re
		likeMu.Unlock()
	}
	return re.MatchString(value)
}
