package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a payment id does not exist.
	ErrNotFound = errors.New("payment not found")

	// ErrInsufficientBudget is returned when a payment would exceed the available budget.
	ErrInsufficientBudget = errors.New("insufficient budget")

	// ErrConflict is returned by a store when a concurrent writer invalidated
	// something the transaction read. The service retries these.
	ErrConflict = errors.New("transaction conflict")

	// ErrValidation is the sentinel wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// InsufficientBudgetError carries the figures behind a rejected admission.
type InsufficientBudgetError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient budget: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

func (e *InsufficientBudgetError) Unwrap() error {
	return ErrInsufficientBudget
}

// ValidationError reports a malformed payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
