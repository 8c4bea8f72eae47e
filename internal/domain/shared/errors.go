// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrNegativeValue = errors.New("value cannot be negative")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "leaderboard", "session"
	Op      string // Operation that failed, e.g., "Aggregate", "Refresh"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Leaderboard domain errors
var (
	ErrInvalidBatchKey  = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid batch key")
	ErrInvalidXP        = NewDomainError("leaderboard", "Validate", ErrNegativeValue, "xp must be non-negative")
	ErrEmptyEnrollment  = NewDomainError("leaderboard", "Validate", ErrInvalidID, "enrollment id cannot be empty")
	ErrBatchFetchFailed = NewDomainError("leaderboard", "Aggregate", ErrExternalService, "batch fetch failed")
)

// Session domain errors
var (
	ErrNoSession      = NewDomainError("session", "Current", ErrNotFound, "no active session")
	ErrSessionExpired = NewDomainError("session", "Validate", ErrExpired, "session expired")
	ErrRoleMismatch   = NewDomainError("session", "Validate", ErrForbidden, "role claim does not match required role")
)

// External service errors
var (
	ErrStoreUnavailable    = NewDomainError("tablestore", "Request", ErrServiceUnavailable, "table store is unavailable")
	ErrStoreRateLimited    = NewDomainError("tablestore", "Request", ErrRateLimited, "table store rate limit exceeded")
	ErrIdentityUnavailable = NewDomainError("identity", "Request", ErrServiceUnavailable, "identity provider is unavailable")
	ErrIdentityTimeout     = NewDomainError("identity", "Request", ErrTimeout, "identity provider request timeout")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
