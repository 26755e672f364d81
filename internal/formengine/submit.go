package formengine

// SubmitPolicy selects which fields the submission validator visits.
// The two builders in the legacy system disagreed on this; the policy
// makes the choice explicit instead of implicit.
type SubmitPolicy string

const (
	// SubmitPolicyRequiredVisible validates only fields that evaluate
	// both visible and required. Default.
	SubmitPolicyRequiredVisible SubmitPolicy = "REQUIRED_VISIBLE"
	// SubmitPolicyAllRuled validates every field carrying at least one
	// validation rule, regardless of derived state.
	SubmitPolicyAllRuled SubmitPolicy = "ALL_RULED"
)

// ParseSubmitPolicy maps a wire value to a policy, defaulting to
// REQUIRED_VISIBLE for empty input.
func ParseSubmitPolicy(s string) (SubmitPolicy, bool) {
	switch SubmitPolicy(s) {
	case SubmitPolicyRequiredVisible, SubmitPolicyAllRuled:
		return SubmitPolicy(s), true
	case "":
		return SubmitPolicyRequiredVisible, true
	default:
		return "", false
	}
}

// EvaluateForm computes the full per-field derived state for one
// values snapshot. Errors come from ValidateValue and are independent
// of visibility.
func EvaluateForm(form FormSpec, values FormValues) map[string]FieldState {
	out := make(map[string]FieldState)
	for _, f := range form.Fields() {
		o := EvaluateField(f, values)
		out[f.FieldID] = FieldState{
			Visible:  o.Visible,
			Enabled:  o.Enabled,
			Required: o.Required,
			Errors:   Messages(ValidateValue(f, values[f.FieldID])),
		}
	}
	return out
}

// ValidateSubmission aggregates per-field violations for a whole form
// at submit time. An empty result map means the submission may
// proceed; any entry blocks it. Under REQUIRED_VISIBLE a field that is
// required (after dependency evaluation) but empty fails even when it
// declares no REQUIRED rule; the fallback message is derived from the
// field label.
func ValidateSubmission(form FormSpec, values FormValues, policy SubmitPolicy) map[string][]string {
	out := make(map[string][]string)
	for _, f := range form.Fields() {
		var msgs []string
		switch policy {
		case SubmitPolicyAllRuled:
			if len(f.ValidationRules) == 0 {
				continue
			}
			msgs = Messages(ValidateValue(f, values[f.FieldID]))
		default:
			o := EvaluateField(f, values)
			if !o.Visible || !o.Required {
				continue
			}
			value := values[f.FieldID]
			msgs = Messages(ValidateValue(f, value))
			if len(msgs) == 0 && (value == nil || value == "") && !hasRequiredRule(f) {
				msgs = []string{requiredMessage(f)}
			}
		}
		if len(msgs) > 0 {
			out[f.FieldID] = msgs
		}
	}
	return out
}

// Messages extracts the message strings from violations, preserving
// order.
func Messages(violations []Violation) []string {
	if len(violations) == 0 {
		return nil
	}
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Message)
	}
	return out
}

func hasRequiredRule(f FieldSpec) bool {
	for _, r := range f.ValidationRules {
		if r.Type == RuleRequired {
			return true
		}
	}
	return false
}

func requiredMessage(f FieldSpec) string {
	label := f.Label
	if label == "" {
		label = f.FieldID
	}
	return label + " is required"
}
