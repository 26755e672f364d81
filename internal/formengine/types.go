// Package formengine computes derived field state (visible, enabled,
// required, errors) for declarative form specifications. All operations
// are pure functions over a FieldSpec/FormSpec and a FormValues
// snapshot; the engine holds no state across calls.
package formengine

// FieldType enumerates the input widgets a field can render as.
type FieldType string

const (
	FieldTypeText        FieldType = "TEXT"
	FieldTypeNumber      FieldType = "NUMBER"
	FieldTypeDate        FieldType = "DATE"
	FieldTypeTime        FieldType = "TIME"
	FieldTypeDatetime    FieldType = "DATETIME"
	FieldTypeSelect      FieldType = "SELECT"
	FieldTypeMultiselect FieldType = "MULTISELECT"
	FieldTypeRadio       FieldType = "RADIO"
	FieldTypeCheckbox    FieldType = "CHECKBOX"
	FieldTypeTextarea    FieldType = "TEXTAREA"
	FieldTypeFile        FieldType = "FILE"
)

// RuleType enumerates validation rule kinds. Unknown rule types are
// treated as satisfied.
type RuleType string

const (
	RuleRequired RuleType = "REQUIRED"
	RuleRange    RuleType = "RANGE"
	RulePattern  RuleType = "PATTERN"
	RuleLength   RuleType = "LENGTH"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Condition enumerates dependency predicates. Unknown conditions
// evaluate to false.
type Condition string

const (
	ConditionEquals      Condition = "EQUALS"
	ConditionNotEquals   Condition = "NOT_EQUALS"
	ConditionContains    Condition = "CONTAINS"
	ConditionGreaterThan Condition = "GREATER_THAN"
	ConditionLessThan    Condition = "LESS_THAN"
	ConditionIsEmpty     Condition = "IS_EMPTY"
	ConditionIsNotEmpty  Condition = "IS_NOT_EMPTY"
)

// Action enumerates dependency effects. Unknown actions change nothing.
type Action string

const (
	ActionShow     Action = "SHOW"
	ActionHide     Action = "HIDE"
	ActionRequire  Action = "REQUIRE"
	ActionOptional Action = "OPTIONAL"
	ActionEnable   Action = "ENABLE"
	ActionDisable  Action = "DISABLE"
)

type ValidationRule struct {
	Type     RuleType `json:"ruleType"`
	Rule     string   `json:"rule,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// Dependency alters a field's derived state based on another field's
// current value. Value is the comparison operand; it is unused by
// IS_EMPTY and IS_NOT_EMPTY.
type Dependency struct {
	DependentFieldID string    `json:"dependentFieldId"`
	Condition        Condition `json:"condition"`
	Action           Action    `json:"action"`
	Value            any       `json:"value,omitempty"`
}

type CodeListValue struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type FieldSpec struct {
	FieldID         string           `json:"fieldId"`
	FieldType       FieldType        `json:"fieldType"`
	Label           string           `json:"label,omitempty"`
	Required        bool             `json:"required"`
	ReadOnly        bool             `json:"readOnly,omitempty"`
	ValidationRules []ValidationRule `json:"validationRules,omitempty"`
	Dependencies    []Dependency     `json:"dependencies,omitempty"`
	CodeListCode    string           `json:"codeListCode,omitempty"`
	CodeListValues  []CodeListValue  `json:"codeListValues,omitempty"`
}

// Section groups fields for layout. Sections carry no evaluation
// semantics; field order is section order, then declaration order.
type Section struct {
	Title  string      `json:"title,omitempty"`
	Fields []FieldSpec `json:"fields"`
}

type FormSpec struct {
	FormID   string    `json:"formId"`
	Name     string    `json:"name,omitempty"`
	Sections []Section `json:"sections"`
}

// Fields returns all fields of the form in evaluation order.
func (f FormSpec) Fields() []FieldSpec {
	var out []FieldSpec
	for _, s := range f.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

// Field looks up a field by id.
func (f FormSpec) Field(fieldID string) (FieldSpec, bool) {
	for _, s := range f.Sections {
		for _, fld := range s.Fields {
			if fld.FieldID == fieldID {
				return fld, true
			}
		}
	}
	return FieldSpec{}, false
}

// FormValues maps fieldId to the entered value. Values are
// JSON-decoded: string, float64, bool, nil, or []any for multi-value
// fields. The caller owns the map; the engine never mutates it.
type FormValues map[string]any

// FieldState is the derived, per-evaluation-pass state of one field.
// It is never persisted.
type FieldState struct {
	Visible  bool     `json:"visible"`
	Enabled  bool     `json:"enabled"`
	Required bool     `json:"required"`
	Errors   []string `json:"errors"`
}

// Violation is one failed validation rule. Severity is carried for the
// consumer; it does not affect engine control flow.
type Violation struct {
	Rule     RuleType `json:"ruleType"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}
