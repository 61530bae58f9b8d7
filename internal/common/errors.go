// Package common defines shared constants and sentinel errors used across
// the vault server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")

	// Permission / business errors.
	ErrAccessDenied        = errors.New("access denied")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Crypto errors.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrDecode               = errors.New("decode error")

	// Ledger errors.
	ErrLedgerTimeout = errors.New("ledger timeout")

	// Validation / generic flow control.
	ErrValidation   = errors.New("validation error")
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// PartialWriteError reports a store that succeeded on the ledger but failed
// to persist its metadata row. The ledger write is durable; LedgerID must be
// surfaced to the caller so the metadata can be repaired, never dropped.
type PartialWriteError struct {
	LedgerID string
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: ledger id %s persisted, metadata failed: %v", e.LedgerID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
