package formengine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fieldWithRule(rt RuleType, rule string, msg string) FieldSpec {
	return FieldSpec{
		FieldID:         "f",
		FieldType:       FieldTypeText,
		ValidationRules: []ValidationRule{{Type: rt, Rule: rule, Message: msg, Severity: SeverityError}},
	}
}

func TestValidateValue_Required(t *testing.T) {
	f := fieldWithRule(RuleRequired, "", "value required")

	for _, v := range []any{nil, ""} {
		if got := ValidateValue(f, v); len(got) != 1 || got[0].Message != "value required" {
			t.Fatalf("value=%v got=%v", v, got)
		}
	}
	for _, v := range []any{"x", float64(0), false} {
		if got := ValidateValue(f, v); len(got) != 0 {
			t.Fatalf("value=%v got=%v", v, got)
		}
	}
}

func TestValidateValue_Range(t *testing.T) {
	f := fieldWithRule(RuleRange, "10,20", "out of range")

	tests := []struct {
		name  string
		value any
		fails bool
	}{
		{"inside", float64(15), false},
		{"below", float64(9), true},
		{"above", float64(25), true},
		{"min inclusive", float64(10), false},
		{"max inclusive", float64(20), false},
		{"numeric string", "17", false},
		{"numeric string above", "21", true},
		// Non-numeric values pass RANGE. Carried over from the source
		// system unchanged; do not "fix" without a ruling.
		{"non numeric passes", "abc", false},
		{"empty passes", "", false},
		{"nil passes", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateValue(f, tt.value)
			if (len(got) == 1) != tt.fails {
				t.Fatalf("value=%v got=%v fails=%v", tt.value, got, tt.fails)
			}
		})
	}
}

func TestValidateValue_Pattern(t *testing.T) {
	f := fieldWithRule(RulePattern, "^[0-9]+$", "digits only")

	if got := ValidateValue(f, "123"); len(got) != 0 {
		t.Fatalf("got=%v", got)
	}
	if got := ValidateValue(f, "12a"); len(got) != 1 {
		t.Fatalf("got=%v", got)
	}
	// malformed patterns degrade to pass
	bad := fieldWithRule(RulePattern, "(", "never")
	if got := ValidateValue(bad, "anything"); len(got) != 0 {
		t.Fatalf("got=%v", got)
	}
}

func TestValidateValue_Length(t *testing.T) {
	f := fieldWithRule(RuleLength, "2,5", "bad length")

	tests := []struct {
		value any
		fails bool
	}{
		{"ab", false},
		{"a", true},
		{"abcdef", true},
		{"abcde", false},
		{float64(123), false}, // "123"
	}
	for _, tt := range tests {
		got := ValidateValue(f, tt.value)
		if (len(got) == 1) != tt.fails {
			t.Fatalf("value=%v got=%v fails=%v", tt.value, got, tt.fails)
		}
	}
}

func TestValidateValue_RulesAccumulate(t *testing.T) {
	f := FieldSpec{
		FieldID:   "f",
		FieldType: FieldTypeText,
		ValidationRules: []ValidationRule{
			{Type: RulePattern, Rule: "^[0-9]+$", Message: "digits only", Severity: SeverityError},
			{Type: RuleLength, Rule: "4,8", Message: "too short", Severity: SeverityWarning},
			{Type: RuleType("FUTURE_RULE"), Rule: "", Message: "never fires"},
		},
	}

	got := ValidateValue(f, "ab")
	want := []Violation{
		{Rule: RulePattern, Message: "digits only", Severity: SeverityError},
		{Rule: RuleLength, Message: "too short", Severity: SeverityWarning},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateValue_SeverityDoesNotBranch(t *testing.T) {
	f := FieldSpec{
		FieldID:   "f",
		FieldType: FieldTypeText,
		ValidationRules: []ValidationRule{
			{Type: RuleLength, Rule: "5,10", Message: "info note", Severity: SeverityInfo},
		},
	}
	got := ValidateValue(f, "ab")
	if len(got) != 1 || got[0].Severity != SeverityInfo {
		t.Fatalf("got=%v", got)
	}
}
