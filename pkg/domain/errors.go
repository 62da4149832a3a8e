package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeComplianceBlocked = "COMPLIANCE_BLOCKED"
	ErrCodeDispatch          = "DISPATCH_FAILED"
	ErrCodeScheduling        = "SCHEDULING_ERROR"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Error constructors

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewComplianceBlockedError reports content that failed the tone gate.
// The issues are joined into the message so operators see them in logs and API responses.
func NewComplianceBlockedError(score int, issues []string) error {
	msg := fmt.Sprintf("message blocked by compliance check (score %d)", score)
	for i, issue := range issues {
		if i == 0 {
			msg += ": " + issue
			continue
		}
		msg += "; " + issue
	}
	return &DomainError{
		Code:    ErrCodeComplianceBlocked,
		Message: msg,
	}
}

// NewDispatchError wraps a failed send. Retryable errors are retried by the executor.
func NewDispatchError(err error, retryable bool) error {
	return &DomainError{
		Code:      ErrCodeDispatch,
		Message:   "failed to dispatch message",
		Err:       err,
		Retryable: retryable,
	}
}

// NewSchedulingError reports a missing or contradictory calendar configuration
func NewSchedulingError(msg string) error {
	return &DomainError{
		Code:    ErrCodeScheduling,
		Message: msg,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// Helper functions to check error types

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsComplianceBlocked checks if the error is a compliance gate failure
func IsComplianceBlocked(err error) bool {
	return hasCode(err, ErrCodeComplianceBlocked)
}

// IsDispatch checks if the error is a dispatch failure
func IsDispatch(err error) bool {
	return hasCode(err, ErrCodeDispatch)
}

// IsScheduling checks if the error is a scheduling configuration error
func IsScheduling(err error) bool {
	return hasCode(err, ErrCodeScheduling)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return hasCode(err, ErrCodeInternal)
}

// IsRetryable reports whether a dispatch error may be attempted again
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
