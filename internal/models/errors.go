package models

import "errors"

var (
	// ErrInvalidAmount is returned for a non-positive credit or debit amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrUserNotFound       = errors.New("user not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrTonPaymentNotFound = errors.New("ton payment not found")
	ErrTaskNotFound       = errors.New("task not found")

	// ErrAlreadyCompleted marks terminal-state re-entry. Payment confirmation
	// paths treat it as a no-op; task completion and manual activation
	// surface it to the caller.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrExternalUnavailable marks a failed rate or chain-indexer fetch.
	ErrExternalUnavailable = errors.New("external service unavailable")

	// ErrUnconfigured is returned when on-chain payments are requested while
	// no receiving wallet is configured.
	ErrUnconfigured = errors.New("ton payments not configured")
)
