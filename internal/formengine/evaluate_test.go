package formengine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvaluateField_NoDependencies(t *testing.T) {
	tests := []struct {
		name  string
		field FieldSpec
		want  Outcome
	}{
		{
			name:  "defaults",
			field: FieldSpec{FieldID: "a", FieldType: FieldTypeText},
			want:  Outcome{Visible: true, Enabled: true, Required: false},
		},
		{
			name:  "base required",
			field: FieldSpec{FieldID: "a", FieldType: FieldTypeText, Required: true},
			want:  Outcome{Visible: true, Enabled: true, Required: true},
		},
		{
			name:  "read only disables",
			field: FieldSpec{FieldID: "a", FieldType: FieldTypeText, ReadOnly: true},
			want:  Outcome{Visible: true, Enabled: false, Required: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateField(tt.field, FormValues{})
			if got != tt.want {
				t.Fatalf("got=%+v want=%+v", got, tt.want)
			}
		})
	}
}

func TestEvaluateField_Actions(t *testing.T) {
	dep := func(cond Condition, action Action, value any) Dependency {
		return Dependency{DependentFieldID: "trigger", Condition: cond, Action: action, Value: value}
	}

	tests := []struct {
		name   string
		field  FieldSpec
		values FormValues
		want   Outcome
	}{
		{
			name:   "show met keeps visible",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionEquals, ActionShow, "yes")}},
			values: FormValues{"trigger": "yes"},
			want:   Outcome{Visible: true, Enabled: true},
		},
		{
			name:   "show unmet hides",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionEquals, ActionShow, "yes")}},
			values: FormValues{"trigger": "no"},
			want:   Outcome{Visible: false, Enabled: true},
		},
		{
			name:   "hide met hides",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionEquals, ActionHide, "yes")}},
			values: FormValues{"trigger": "yes"},
			want:   Outcome{Visible: false, Enabled: true},
		},
		{
			name:   "require met requires",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionEquals, ActionRequire, "X")}},
			values: FormValues{"trigger": "X"},
			want:   Outcome{Visible: true, Enabled: true, Required: true},
		},
		{
			name:   "optional met clears base required",
			field:  FieldSpec{FieldID: "b", Required: true, Dependencies: []Dependency{dep(ConditionIsEmpty, ActionOptional, nil)}},
			values: FormValues{},
			want:   Outcome{Visible: true, Enabled: true, Required: false},
		},
		{
			name:   "disable met disables",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionIsNotEmpty, ActionDisable, nil)}},
			values: FormValues{"trigger": "locked"},
			want:   Outcome{Visible: true, Enabled: false},
		},
		{
			name: "unmet show wins over met show (AND fold)",
			field: FieldSpec{FieldID: "b", Dependencies: []Dependency{
				dep(ConditionEquals, ActionShow, "yes"),
				{DependentFieldID: "other", Condition: ConditionEquals, Action: ActionShow, Value: "on"},
			}},
			values: FormValues{"trigger": "yes", "other": "off"},
			want:   Outcome{Visible: false, Enabled: true},
		},
		{
			name: "require sticks across later unmet require (OR fold)",
			field: FieldSpec{FieldID: "b", Dependencies: []Dependency{
				dep(ConditionEquals, ActionRequire, "X"),
				{DependentFieldID: "other", Condition: ConditionEquals, Action: ActionRequire, Value: "Y"},
			}},
			values: FormValues{"trigger": "X", "other": "nope"},
			want:   Outcome{Visible: true, Enabled: true, Required: true},
		},
		{
			name:   "unknown action is a no-op",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(ConditionEquals, Action("EXPLODE"), "yes")}},
			values: FormValues{"trigger": "yes"},
			want:   Outcome{Visible: true, Enabled: true},
		},
		{
			name:   "unknown condition reads false",
			field:  FieldSpec{FieldID: "b", Dependencies: []Dependency{dep(Condition("SOUNDS_LIKE"), ActionShow, "yes")}},
			values: FormValues{"trigger": "yes"},
			want:   Outcome{Visible: false, Enabled: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateField(tt.field, tt.values)
			if got != tt.want {
				t.Fatalf("got=%+v want=%+v", got, tt.want)
			}
		})
	}
}

func TestConditionMet(t *testing.T) {
	tests := []struct {
		name   string
		dep    Dependency
		values FormValues
		want   bool
	}{
		{"equals strict match", Dependency{DependentFieldID: "a", Condition: ConditionEquals, Value: "X"}, FormValues{"a": "X"}, true},
		{"equals no coercion string vs number", Dependency{DependentFieldID: "a", Condition: ConditionEquals, Value: float64(5)}, FormValues{"a": "5"}, false},
		{"equals numeric kinds mix", Dependency{DependentFieldID: "a", Condition: ConditionEquals, Value: 5}, FormValues{"a": float64(5)}, true},
		{"not equals", Dependency{DependentFieldID: "a", Condition: ConditionNotEquals, Value: "X"}, FormValues{"a": "Y"}, true},
		{"contains", Dependency{DependentFieldID: "a", Condition: ConditionContains, Value: "bc"}, FormValues{"a": "abcd"}, true},
		{"contains coerces number", Dependency{DependentFieldID: "a", Condition: ConditionContains, Value: "2"}, FormValues{"a": float64(123)}, true},
		{"contains over multiselect", Dependency{DependentFieldID: "a", Condition: ConditionContains, Value: "DM"}, FormValues{"a": []any{"AE", "DM"}}, true},
		{"greater than", Dependency{DependentFieldID: "a", Condition: ConditionGreaterThan, Value: float64(10)}, FormValues{"a": float64(11)}, true},
		{"greater than NaN is false", Dependency{DependentFieldID: "a", Condition: ConditionGreaterThan, Value: float64(10)}, FormValues{"a": "abc"}, false},
		{"less than numeric string", Dependency{DependentFieldID: "a", Condition: ConditionLessThan, Value: "10"}, FormValues{"a": "9"}, true},
		{"less than missing field is false", Dependency{DependentFieldID: "a", Condition: ConditionLessThan, Value: float64(10)}, FormValues{}, false},
		{"is empty on empty string", Dependency{DependentFieldID: "a", Condition: ConditionIsEmpty}, FormValues{"a": ""}, true},
		{"is empty on zero", Dependency{DependentFieldID: "a", Condition: ConditionIsEmpty}, FormValues{"a": float64(0)}, true},
		{"is empty on false", Dependency{DependentFieldID: "a", Condition: ConditionIsEmpty}, FormValues{"a": false}, true},
		{"is empty on missing", Dependency{DependentFieldID: "a", Condition: ConditionIsEmpty}, FormValues{}, true},
		{"is empty on text", Dependency{DependentFieldID: "a", Condition: ConditionIsEmpty}, FormValues{"a": "a"}, false},
		{"is not empty complements falsy emptiness", Dependency{DependentFieldID: "a", Condition: ConditionIsNotEmpty}, FormValues{"a": float64(0)}, false},
		{"is not empty on text", Dependency{DependentFieldID: "a", Condition: ConditionIsNotEmpty}, FormValues{"a": "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conditionMet(tt.dep, tt.values); got != tt.want {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
		})
	}
}

func TestEvaluateForm_EndToEnd(t *testing.T) {
	form := FormSpec{
		FormID: "F1",
		Sections: []Section{{
			Fields: []FieldSpec{
				{FieldID: "A", FieldType: FieldTypeSelect, CodeListValues: []CodeListValue{
					{Code: "X", Label: "X", Active: true},
					{Code: "Y", Label: "Y", Active: true},
				}},
				{FieldID: "B", FieldType: FieldTypeText, Dependencies: []Dependency{
					{DependentFieldID: "A", Condition: ConditionEquals, Value: "X", Action: ActionRequire},
				}},
			},
		}},
	}

	withX := EvaluateForm(form, FormValues{"A": "X"})
	if !withX["B"].Required {
		t.Fatal("B should be required when A=X")
	}
	withY := EvaluateForm(form, FormValues{"A": "Y"})
	if withY["B"].Required {
		t.Fatal("B should fall back to base required when A=Y")
	}

	want := map[string]FieldState{
		"A": {Visible: true, Enabled: true},
		"B": {Visible: true, Enabled: true, Required: true},
	}
	if diff := cmp.Diff(want, withX); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}
