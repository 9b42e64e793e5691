package shared

import (
	"errors"
	"fmt"
)

// Error kinds. DomainError values unwrap to one of these so callers can branch
// with errors.Is regardless of the message.
var (
	// ErrValidation covers missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrBusinessRule marks a request that is well formed but not allowed in
	// the current state.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrConflict marks a concurrency conflict the caller may retry.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized is returned when no actor is attached to the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DomainError carries a user facing message together with its kind.
type DomainError struct {
	Kind    error
	Message string
	Fields  map[string]string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

// Unwrap exposes the kind to errors.Is.
func (e *DomainError) Unwrap() error {
	return e.Kind
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &DomainError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields builds a validation error carrying per field messages.
func ValidationFields(fields map[string]string) error {
	return &DomainError{Kind: ErrValidation, Message: "validation failed", Fields: fields}
}

// NotFound builds a not found error for the named entity.
func NotFound(entity string) error {
	return &DomainError{Kind: ErrNotFound, Message: entity + " not found"}
}

// RuleViolation builds a business rule error.
func RuleViolation(format string, args ...any) error {
	return &DomainError{Kind: ErrBusinessRule, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a retryable conflict error.
func Conflict(format string, args ...any) error {
	return &DomainError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Message returns the user facing text of err when it is a DomainError.
func Message(err error) (string, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Error(), true
	}
	return "", false
}
