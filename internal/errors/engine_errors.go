package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the classes of failures the risk engine reports
type ErrorCategory string

const (
	// Caller supplied bad input; never silently corrected
	ErrorCategoryValidation ErrorCategory = "VALIDATION"

	// A policy limit rejected the request; callers should not submit the order
	ErrorCategoryRiskLimit ErrorCategory = "RISK_LIMIT"

	// Position lifecycle errors (unknown symbol in strict mode)
	ErrorCategoryPosition ErrorCategory = "POSITION"

	// Misconfigured limits detected at construction time
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
)

// Sentinel errors for errors.Is matching across package boundaries
var (
	ErrInvalidParameter  = stderrors.New("invalid parameter")
	ErrRiskLimitExceeded = stderrors.New("risk limit exceeded")
	ErrMissingPosition   = stderrors.New("position not found")
	ErrInvalidConfig     = stderrors.New("invalid configuration")
)

// EngineError is a categorized error with component/operation context
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Component, e.Operation, e.Underlying)
}

// Unwrap returns the underlying sentinel for error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsFatal reports whether the error should stop the engine rather than the order
func (e *EngineError) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration
}

// NewInvalidParameter reports a precondition violation on caller input
func NewInvalidParameter(component, operation, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Category:   ErrorCategoryValidation,
		Component:  component,
		Operation:  operation,
		Message:    fmt.Sprintf(format, args...),
		Underlying: ErrInvalidParameter,
	}
}

// NewRiskLimitExceeded reports an outright order rejection by a policy rule
func NewRiskLimitExceeded(component, operation, reason string) *EngineError {
	return &EngineError{
		Category:   ErrorCategoryRiskLimit,
		Component:  component,
		Operation:  operation,
		Message:    reason,
		Underlying: ErrRiskLimitExceeded,
	}
}

// NewMissingPosition reports a strict-mode removal of an untracked symbol
func NewMissingPosition(component, operation, symbol string) *EngineError {
	return &EngineError{
		Category:   ErrorCategoryPosition,
		Component:  component,
		Operation:  operation,
		Message:    fmt.Sprintf("no open position for %s", symbol),
		Underlying: ErrMissingPosition,
	}
}

// NewConfigurationError reports invalid risk limits at construction time
func NewConfigurationError(component, operation, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Category:   ErrorCategoryConfiguration,
		Component:  component,
		Operation:  operation,
		Message:    fmt.Sprintf(format, args...),
		Underlying: ErrInvalidConfig,
	}
}
