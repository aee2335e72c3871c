package shared

import "errors"

var (
	// ErrLockHeld indicates another holder owns the requested lock.
	ErrLockHeld = errors.New("lock held by another owner")
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
