package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the most common failure shapes. Handlers match
// on these with errors.Is to choose a status code.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotFound      = errors.New("not found")
)

// ValidationError reports malformed or inconsistent caller input,
// rejected before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError identifies a missing entity so callers can render an
// empty/404 state instead of treating it as bad input.
type NotFoundError struct {
	Entity string
	ID     int64
}

func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IntegrityError reports a business-rule violation: deleting a
// category that still has future transactions, or dating a transaction
// outside a category's lifecycle window. These are not system faults.
type IntegrityError struct {
	Reason string
}

func NewIntegrityError(format string, args ...any) *IntegrityError {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

func (e *IntegrityError) Error() string { return e.Reason }

// RedirectError is a navigational signal, not a failure: the caller
// asked for a month that cannot be materialized (future, or before any
// budget exists) and should re-request the indicated month instead.
// Checked with errors.As; the HTTP layer turns it into a 303.
type RedirectError struct {
	Month Month
}

func NewRedirectError(m Month) *RedirectError {
	return &RedirectError{Month: m}
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect to month %s", e.Month)
}
