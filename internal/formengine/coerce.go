package formengine

import (
	"strconv"
	"strings"
)

// Coercion helpers for condition and rule evaluation. Conditions never
// error on type mismatch: a value that cannot be coerced numerically
// simply makes numeric conditions false, and RANGE rules treat it as
// out of the rule's reach.

// toNumber converts a value to float64 for numeric comparison. Accepts
// float64, int, int64 and numeric strings; everything else (including
// nil, booleans and empty strings) does not coerce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringify renders a value the way the form layer displays it:
// nil becomes "", numbers drop trailing zeros, multi-value fields join
// with commas.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case []any:
		parts := make([]string, 0, len(s))
		for _, elem := range s {
			parts = append(parts, stringify(elem))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(s, ",")
	default:
		return ""
	}
}

// isEmptyValue reports the falsy-or-empty-string notion of empty:
// nil, false, numeric zero and "" are all empty. Slices are not, even
// when they have no elements.
func isEmptyValue(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	case bool:
		return !s
	case float64:
		return s == 0
	case int:
		return s == 0
	case int64:
		return s == 0
	default:
		return false
	}
}

// strictEqual compares without cross-type coercion: a numeric string
// never equals a number. Two numbers compare numerically regardless of
// Go kind (JSON decodes to float64, programmatic callers may pass int).
// Uncomparable kinds (slices, maps) never compare equal; two nils do.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, okA := numericKind(a); okA {
		nb, okB := numericKind(b)
		return okB && na == nb
	}
	if !scalarKind(a) || !scalarKind(b) {
		return false
	}
	return a == b
}

func numericKind(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func scalarKind(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		return false
	}
}
