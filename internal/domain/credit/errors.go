package credit

import "errors"

var (
	// ErrAccountNotFound is returned when the target account doesn't exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance is the error form of a rejected subtract
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for non-positive add/subtract or negative set amounts
	ErrInvalidAmount = errors.New("invalid amount")

	ErrInvalidKind = errors.New("invalid operation kind")

	// ErrIdempotencyConflict is returned when a key is reused for a different operation
	ErrIdempotencyConflict = errors.New("idempotency key reused with different operation")

	// ErrStoreUnavailable wraps every driver failure. The outcome is unknown;
	// retrying with the same idempotency key is safe.
	ErrStoreUnavailable = errors.New("credit store unavailable")
)
