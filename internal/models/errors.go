package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component of the ledger. Callers match with
// errors.Is; wrapped errors carry the detail.
var (
	ErrValidation               = errors.New("validation failed")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientShares       = errors.New("insufficient shares")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrConcurrencyConflict      = errors.New("concurrency conflict")
	ErrPersistence              = errors.New("persistence failure")
	ErrNotFound                 = errors.New("not found")
	ErrKYCNotApproved           = errors.New("kyc not approved")
	ErrPriceUnavailable         = errors.New("price unavailable")
)

// ValidationError describes a bad input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports an illegal status move. It matches ErrInvalidStateTransition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s %s -> %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}
