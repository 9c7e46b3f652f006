package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Ledger errors
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrTransientStore       = errors.New("transient store failure")
	ErrNotificationFailed   = errors.New("notification failed")
)

// InsufficientBalanceError carries the amounts needed to explain a rejected purchase.
// It matches ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s", e.Balance.String(), e.Required.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// Shortfall is the amount the user is missing.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

// StoreError wraps a driver failure as a transient store failure while keeping the cause.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransientStore, err)
}
