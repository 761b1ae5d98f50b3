package syntax

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes compile errors.
type ErrorCode string

const (
	// ErrCodeUnboundVariable indicates a conjunct requires a variable no
	// other conjunct can bind.
	ErrCodeUnboundVariable ErrorCode = "UNBOUND_VARIABLE"

	// ErrCodeMissingBinding indicates a branch never mentions a match variable.
	ErrCodeMissingBinding ErrorCode = "MISSING_BINDING"

	// ErrCodeOmittedBinding indicates a rule application omits a slot the
	// rule needs bound.
	ErrCodeOmittedBinding ErrorCode = "OMITTED_BINDING"

	// ErrCodeNoBaseCase indicates every branch of a recursive rule recurs.
	ErrCodeNoBaseCase ErrorCode = "NO_BASE_CASE"

	// ErrCodeFormulaReversed indicates a variable is both input and output
	// of one formula.
	ErrCodeFormulaReversed ErrorCode = "FORMULA_REVERSED"

	// ErrCodeUnknownOperator indicates an operator missing from the registry.
	ErrCodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"

	// ErrCodeUnknownSlot indicates a slot the operator or rule does not declare.
	ErrCodeUnknownSlot ErrorCode = "UNKNOWN_SLOT"

	// ErrCodeMissingInput indicates a required formula input was not supplied.
	ErrCodeMissingInput ErrorCode = "MISSING_INPUT"

	// ErrCodeUnknownRule indicates an application of an undeclared rule.
	ErrCodeUnknownRule ErrorCode = "UNKNOWN_RULE"

	// ErrCodeRuleCycle indicates rules that apply each other other than
	// through recur.
	ErrCodeRuleCycle ErrorCode = "RULE_CYCLE"

	// ErrCodeInvalidTerm indicates a malformed term or conjunct.
	ErrCodeInvalidTerm ErrorCode = "INVALID_TERM"

	// ErrCodeNegatedRecursion indicates recur used under not.
	ErrCodeNegatedRecursion ErrorCode = "NEGATED_RECURSION"
)

// CompileError is a whole-query failure found while compiling or planning.
// It is never raised mid-evaluation.
type CompileError struct {
	Code     ErrorCode
	Message  string
	Rule     string
	Branch   string
	Variable string
	Conjunct string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var ctx []string
	if e.Rule != "" {
		ctx = append(ctx, "rule="+e.Rule)
	}
	if e.Branch != "" {
		ctx = append(ctx, "branch="+e.Branch)
	}
	if e.Variable != "" {
		ctx = append(ctx, "variable="+e.Variable)
	}
	if e.Conjunct != "" {
		ctx = append(ctx, "conjunct="+e.Conjunct)
	}
	if len(ctx) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(ctx, ", "))
}

// IsCompileError returns true if err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// HasCode returns true if err is or wraps a CompileError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// withRule fills in the rule name on a CompileError that lacks one.
func withRule(err error, rule string) error {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Rule == "" {
		ce.Rule = rule
	}
	return err
}
