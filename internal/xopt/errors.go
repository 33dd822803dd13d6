package xopt

import (
	"errors"
	"fmt"
)

// Error is a fatal orchestrator error: a misconfigured run or invalid
// options. Per-row evaluation failures use EvaluationError instead.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes orchestrator errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a missing or invalid collaborator.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeInvalidOptions indicates the options bundle is malformed.
	ErrCodeInvalidOptions ErrorCode = "INVALID_OPTIONS"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConfigurationError creates an Error for a missing collaborator.
func NewConfigurationError(component, msg string) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf("%s: %s", component, msg),
		Details: map[string]string{"component": component},
	}
}

// NewOptionsError creates an Error for an invalid option.
func NewOptionsError(field, msg string) *Error {
	return &Error{
		Code:    ErrCodeInvalidOptions,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]string{"field": field},
	}
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeConfiguration
}

// IsOptionsError reports whether err is an invalid-options error.
func IsOptionsError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeInvalidOptions
}

// EvaluationError is a per-row evaluation failure surfaced in strict mode.
type EvaluationError struct {
	Index int64
	Err   error
	// Trace is the failure trace captured by the evaluator.
	Trace string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of row %d failed: %v", e.Index, e.Err)
}

// Unwrap returns the evaluator's error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// IsEvaluationError reports whether err is a strict-mode evaluation failure.
func IsEvaluationError(err error) bool {
	var e *EvaluationError
	return errors.As(err, &e)
}
