package formengine

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// compiled PATTERN rules are cached per expression; forms re-validate
// on every keystroke.
var patternCache sync.Map

// ValidateValue checks a candidate value against the field's declared
// rules, independent of visibility and requiredness. Rules apply in
// declaration order and do not short-circuit; every failing rule
// contributes its message. Unknown rule types and malformed rule
// parameters count as satisfied.
func ValidateValue(f FieldSpec, value any) []Violation {
	var out []Violation
	for _, rule := range f.ValidationRules {
		if ruleFails(rule, value) {
			out = append(out, Violation{Rule: rule.Type, Message: rule.Message, Severity: rule.Severity})
		}
	}
	return out
}

func ruleFails(rule ValidationRule, value any) bool {
	switch rule.Type {
	case RuleRequired:
		return value == nil || value == ""
	case RuleRange:
		min, max, ok := parseBounds(rule.Rule)
		if !ok {
			return false
		}
		n, numeric := toNumber(value)
		if !numeric {
			// Non-numeric values pass RANGE. Intentional carry-over of
			// the source behavior; see the range tests.
			return false
		}
		return n < min || n > max
	case RulePattern:
		re, ok := compiledPattern(rule.Rule)
		if !ok {
			return false
		}
		return !re.MatchString(stringify(value))
	case RuleLength:
		min, max, ok := parseBounds(rule.Rule)
		if !ok {
			return false
		}
		n := float64(utf8.RuneCountInString(stringify(value)))
		return n < min || n > max
	default:
		return false
	}
}

// parseBounds parses the "min,max" rule parameter encoding shared by
// RANGE and LENGTH.
func parseBounds(rule string) (min float64, max float64, ok bool) {
	lo, hi, found := strings.Cut(rule, ",")
	if !found {
		return 0, 0, false
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, false
	}
	max, err = strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return 0, 0, false
	}
	return min, max, true
}

func compiledPattern(expr string) (*regexp.Regexp, bool) {
	if cached, ok := patternCache.Load(expr); ok {
		re, valid := cached.(*regexp.Regexp)
		return re, valid
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		patternCache.Store(expr, false)
		return nil, false
	}
	patternCache.Store(expr, re)
	return re, true
}
