package datastore

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"relfind/internal/filter"
)

// Match evaluates cond against one record. A nil or empty condition matches
// everything. Missing fields read as nil.
func Match(node Node, cond filter.Condition) (bool, error) {
	keys := make([]string, 0, len(cond))
	for key := range cond {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := cond[key]
		var ok bool
		var err error
		switch key {
		case filter.KeyAnd:
			ok, err = matchAll(node, value)
		case filter.KeyOr:
			ok, err = matchAny(node, value)
		default:
			ok, err = matchField(node[key], key, value)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAll(node Node, value any) (bool, error) {
	items, err := conditionList(filter.KeyAnd, value)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		ok, err := Match(node, item)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(node Node, value any) (bool, error) {
	items, err := conditionList(filter.KeyOr, value)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		ok, err := Match(node, item)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func conditionList(key string, value any) ([]filter.Condition, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, invalid("%s must be an array", key)
	}
	out := make([]filter.Condition, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("%s array items must be objects", key)
		}
		out = append(out, m)
	}
	return out, nil
}

// isOperatorObject reports whether v is an {op: operand} object rather than a
// literal to compare for equality.
func isOperatorObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	return m, true
}

func matchField(actual any, field string, expected any) (bool, error) {
	ops, ok := isOperatorObject(expected)
	if !ok {
		return valuesEqual(actual, expected), nil
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	for _, op := range names {
		ok, err := applyOperator(actual, field, op, ops[op])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func applyOperator(actual any, field, op string, operand any) (bool, error) {
	switch op {
	case filter.OpEq:
		return valuesEqual(actual, operand), nil
	case filter.OpNeq:
		return !valuesEqual(actual, operand), nil
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		if actual == nil || operand == nil {
			return false, nil
		}
		c, ok := compareValues(actual, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case filter.OpGt:
			return c > 0, nil
		case filter.OpGte:
			return c >= 0, nil
		case filter.OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case filter.OpIn, filter.OpInq, filter.OpNin:
		arr, ok := operand.([]any)
		if !ok {
			return false, invalid("%s operator on %s requires an array", op, field)
		}
		found := false
		for _, v := range arr {
			if valuesEqual(actual, v) {
				found = true
				break
			}
		}
		if op == filter.OpNin {
			return !found, nil
		}
		return found, nil
	case filter.OpLike, filter.OpNlike:
		pattern, ok := operand.(string)
		if !ok {
			return false, invalid("%s operator on %s requires a string", op, field)
		}
		s, isString := asString(actual)
		if !isString {
			return false, nil
		}
		matched := likePattern(pattern).MatchString(s)
		if op == filter.OpNlike {
			return !matched, nil
		}
		return matched, nil
	case filter.OpBetween:
		arr, ok := operand.([]any)
		if !ok || len(arr) != 2 {
			return false, invalid("between operator on %s requires a two-element array", field)
		}
		if actual == nil {
			return false, nil
		}
		lo, okLo := compareValues(actual, arr[0])
		hi, okHi := compareValues(actual, arr[1])
		return okLo && okHi && lo >= 0 && hi <= 0, nil
	case filter.OpExists:
		want, ok := operand.(bool)
		if !ok {
			return false, invalid("exists operator on %s requires a boolean", field)
		}
		return (actual != nil) == want, nil
	default:
		return false, invalid("unknown operator %q on %s", op, field)
	}
}

// likePattern translates a SQL LIKE pattern into a case-insensitive regexp.
func likePattern(pattern string) *regexp.Regexp {
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
	return regexp.MustCompile(b.String())
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalars. Numbers compare numerically, including a
// number against a numeric string; strings compare lexically.
func compareValues(a, b any) (int, bool) {
	if x, ok := asNumber(a); ok {
		if y, ok := asNumber(b); ok {
			return compareFloat(x, y), true
		}
		if s, ok := b.(string); ok {
			if y, err := strconv.ParseFloat(s, 64); err == nil {
				return compareFloat(x, y), true
			}
		}
		return 0, false
	}
	if s, ok := asString(a); ok {
		if t, ok := asString(b); ok {
			return strings.Compare(s, t), true
		}
		if y, ok := asNumber(b); ok {
			if x, err := strconv.ParseFloat(s, 64); err == nil {
				return compareFloat(x, y), true
			}
		}
		return 0, false
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
