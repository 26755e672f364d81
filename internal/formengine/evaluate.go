package formengine

import "strings"

// Outcome is the dependency evaluator's result for one field.
type Outcome struct {
	Visible  bool `json:"visible"`
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
}

// EvaluateField computes a field's visible/enabled/required state from
// the current values snapshot.
//
// Starting from the defaults (visible, enabled unless read-only,
// required per the base flag), dependencies apply as a left-to-right
// fold in declaration order: SHOW and ENABLE restrict with AND, HIDE
// and DISABLE restrict with AND NOT, REQUIRE relaxes upward with OR,
// OPTIONAL relaxes downward with AND NOT. All applicable rules
// accumulate; there is no priority or last-rule-wins.
func EvaluateField(f FieldSpec, values FormValues) Outcome {
	out := Outcome{Visible: true, Enabled: !f.ReadOnly, Required: f.Required}
	for _, dep := range f.Dependencies {
		met := conditionMet(dep, values)
		switch dep.Action {
		case ActionShow:
			out.Visible = out.Visible && met
		case ActionHide:
			out.Visible = out.Visible && !met
		case ActionRequire:
			out.Required = out.Required || met
		case ActionOptional:
			out.Required = out.Required && !met
		case ActionEnable:
			out.Enabled = out.Enabled && met
		case ActionDisable:
			out.Enabled = out.Enabled && !met
		default:
			// unrecognized actions change nothing
		}
	}
	return out
}

// DependencyTrace records how one dependency evaluated during an
// explain pass.
type DependencyTrace struct {
	DependentFieldID string    `json:"dependentFieldId"`
	Condition        Condition `json:"condition"`
	Action           Action    `json:"action"`
	Value            any       `json:"value,omitempty"`
	Met              bool      `json:"met"`
}

// ExplainField evaluates a field like EvaluateField but also reports
// each dependency's predicate result, for rule debugging surfaces.
func ExplainField(f FieldSpec, values FormValues) (Outcome, []DependencyTrace) {
	var traces []DependencyTrace
	for _, dep := range f.Dependencies {
		traces = append(traces, DependencyTrace{
			DependentFieldID: dep.DependentFieldID,
			Condition:        dep.Condition,
			Action:           dep.Action,
			Value:            dep.Value,
			Met:              conditionMet(dep, values),
		})
	}
	return EvaluateField(f, values), traces
}

// conditionMet evaluates one dependency predicate against the target
// field's current value. A fieldId absent from values reads as nil.
// Unknown conditions are false.
func conditionMet(dep Dependency, values FormValues) bool {
	v := values[dep.DependentFieldID]
	switch dep.Condition {
	case ConditionEquals:
		return strictEqual(v, dep.Value)
	case ConditionNotEquals:
		return !strictEqual(v, dep.Value)
	case ConditionContains:
		return strings.Contains(stringify(v), stringify(dep.Value))
	case ConditionGreaterThan:
		a, okA := toNumber(v)
		b, okB := toNumber(dep.Value)
		return okA && okB && a > b
	case ConditionLessThan:
		a, okA := toNumber(v)
		b, okB := toNumber(dep.Value)
		return okA && okB && a < b
	case ConditionIsEmpty:
		return isEmptyValue(v)
	case ConditionIsNotEmpty:
		return !isEmptyValue(v)
	default:
		return false
	}
}
