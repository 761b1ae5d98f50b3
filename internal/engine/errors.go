package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during evaluation.
//
// Binding conflicts are never runtime errors; they drop one candidate frame.
// Runtime errors fail the whole query:
//   - Store failure: the Querier returned an error
//   - Invalid plan: a plan node was evaluated outside the context it needs
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Rule names the rule being evaluated, if any.
	Rule string

	// Selector is the store selector that failed (store failures only).
	Selector string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStoreFailure indicates the fact source failed.
	ErrCodeStoreFailure RuntimeErrorCode = "STORE_FAILURE"

	// ErrCodeInvalidPlan indicates a plan node could not run in its context.
	ErrCodeInvalidPlan RuntimeErrorCode = "INVALID_PLAN"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.Rule)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause so errors.Is sees through store
// failures.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsStoreError returns true if the error is a store failure.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStoreFailure
	}
	return false
}

// NewStoreError wraps a Querier failure.
func NewStoreError(selector string, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeStoreFailure,
		Message:  "select " + selector + " failed",
		Selector: selector,
		Err:      err,
	}
}
