// Package editcheck evaluates CEL cross-field edit checks against a
// form's submitted values. Checks are authored per form; a check whose
// expression evaluates false produces a violation. Expressions are
// compiled once and cached per expression text.
package editcheck

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Check is one cross-field rule. Expr is a CEL boolean over
// `values: map[string, dyn]`; false means the check fires.
type Check struct {
	CheckID  string   `json:"checkId"`
	Expr     string   `json:"expr"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// Violation reports one fired check.
type Violation struct {
	CheckID  string   `json:"checkId"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

var newCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("values", cel.MapType(cel.StringType, cel.DynType)))
}

var programCache sync.Map

// Compile validates a check expression. Called when a form spec is
// saved so malformed checks are rejected up front, never at submit
// time.
func Compile(expr string) error {
	_, err := loadOrCompile(expr)
	return err
}

// Evaluate runs every check against the values snapshot, in order. A
// check that fails to evaluate (missing key, type error at runtime)
// degrades to "passed": availability over strictness, matching the
// engine's posture on malformed rules.
func Evaluate(checks []Check, values map[string]any) []Violation {
	var out []Violation
	for _, c := range checks {
		program, err := loadOrCompile(c.Expr)
		if err != nil {
			continue
		}
		res, _, err := program.Eval(map[string]any{"values": values})
		if err != nil {
			continue
		}
		ok, isBool := res.Value().(bool)
		if !isBool || ok {
			continue
		}
		severity := c.Severity
		if severity == "" {
			severity = SeverityError
		}
		out = append(out, Violation{CheckID: c.CheckID, Message: c.Message, Severity: severity})
	}
	return out
}

func loadOrCompile(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("editcheck: expression required")
	}
	if cached, ok := programCache.Load(expr); ok {
		if program, valid := cached.(cel.Program); valid {
			return program, nil
		}
		return nil, cached.(error)
	}
	env, err := newCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		compileErr := issues.Err()
		programCache.Store(expr, compileErr)
		return nil, compileErr
	}
	if ast.OutputType() != cel.BoolType {
		err := errors.New("editcheck: expression must produce a boolean")
		programCache.Store(expr, err)
		return nil, err
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	programCache.Store(expr, program)
	return program, nil
}
