package domain

import "errors"

// Domain errors returned by repository implementations and entity methods.

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrOwnerNotFound indicates the specified owner does not exist.
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrEventNotFound indicates the specified event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidID indicates the provided ID format is invalid.
	ErrInvalidID = errors.New("invalid ID format")

	// ErrInvalidTimezone indicates the timezone is not a valid IANA identifier.
	ErrInvalidTimezone = errors.New("invalid IANA timezone")

	// ErrInvalidDate indicates a malformed calendar date.
	ErrInvalidDate = errors.New("invalid calendar date")

	// ErrIllegalTransition indicates a status transition outside the
	// PENDING -> PROCESSING -> COMPLETED/FAILED machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrOptimisticLockConflict indicates an update presented a stale version.
	// Callers must branch on this: it is a concurrency signal, not a failure.
	ErrOptimisticLockConflict = errors.New("optimistic lock conflict")

	// ErrDuplicateIdempotencyKey indicates an insert collided with an
	// existing event's idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
