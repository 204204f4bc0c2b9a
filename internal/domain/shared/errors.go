package shared

import "errors"

// ErrorKind classifies a domain error for the calling layers
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindBusinessRule ErrorKind = "BUSINESS_RULE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so sentinel comparisons survive wrapping
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new business rule error.
// Kept for call sites that only care about the code.
func NewDomainError(code, message string) *DomainError {
	return NewBusinessRuleError(code, message)
}

// NewValidationError reports malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: message}
}

// NewNotFoundError reports a missing aggregate
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: code, Message: message}
}

// NewConflictError reports a stale write
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Kind: KindConflict, Code: code, Message: message}
}

// NewBusinessRuleError reports a violated domain rule
func NewBusinessRuleError(code, message string) *DomainError {
	return &DomainError{Kind: KindBusinessRule, Code: code, Message: message}
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewConflictError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewBusinessRuleError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewBusinessRuleError("INSUFFICIENT_STOCK", "Insufficient stock available")
)

// KindOf returns the kind of a domain error anywhere in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsConflict reports whether err is a concurrent-modification error
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsBusinessRule reports whether err is a business rule violation
func IsBusinessRule(err error) bool {
	return KindOf(err) == KindBusinessRule
}
