package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrReference matches errors about accounts a transaction points at.
	ErrReference = errors.New("invalid account reference")

	ErrInvalidAmount        = errors.New("invalid amount")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("transaction already exists")
	ErrTransactionConflict  = errors.New("transaction does not match the logged version")
	// ErrBalanceOverwrite rejects imports that would change a stored balance.
	ErrBalanceOverwrite     = errors.New("account balance is managed by the ledger")
)

// ValidationError rejects a payload before any mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type UnknownAccountError struct {
	AccountID string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account %q", e.AccountID)
}

func (e *UnknownAccountError) Is(target error) bool { return target == ErrReference }

type SameAccountTransferError struct {
	AccountID string
}

func (e *SameAccountTransferError) Error() string {
	return fmt.Sprintf("transfer source and target are the same account %q", e.AccountID)
}

func (e *SameAccountTransferError) Is(target error) bool { return target == ErrReference }

// InsufficientFundsError is returned by the optional overdraft guard.
type InsufficientFundsError struct {
	AccountID string
	Balance   int64
	Delta     int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %q: balance %d, delta %d", e.AccountID, e.Balance, e.Delta)
}
