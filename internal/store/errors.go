package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store. This is the generic version of the entity-specific not found
	// errors below.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate of
	// a unique entity (e.g. a second story document for the same task).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails to
	// commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested generation task does not
	// exist in the store or is not owned by the caller.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrMappingNotFound indicates that the requested job mapping does not
	// exist in the store.
	ErrMappingNotFound = fmt.Errorf("%w: job mapping", ErrNotFound)

	// ErrStoryNotFound indicates that the requested story document does not
	// exist in the store.
	ErrStoryNotFound = fmt.Errorf("%w: story", ErrNotFound)

	// ErrWindowNotFound indicates that no active rate window exists for the
	// requested user/operation pair.
	ErrWindowNotFound = fmt.Errorf("%w: rate window", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrStoryExists indicates that a story document already exists for the
	// task. The unique constraint on stories(task_id) is the authoritative
	// guard against concurrent first-time result fetches.
	ErrStoryExists = fmt.Errorf("%w: story for task", ErrDuplicate)

	// ErrMappingExists indicates that a job mapping already exists for the
	// task; mappings are created exactly once per task.
	ErrMappingExists = fmt.Errorf("%w: mapping for task", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
