package store

import (
	"context"
	"database/sql"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/google/uuid"
)

// TaskStore defines the interface for generation task persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByID retrieves a task by its ID, scoped to the owning user.
	// A task owned by a different user behaves identically to an absent one:
	// both return ErrTaskNotFound, so existence never leaks across users.
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.GenerationTask, error)

	// UpdateStatus updates the status and error message of an existing task.
	// Terminal statuses also set the completion timestamp.
	// Returns ErrTaskNotFound if the task does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMessage string) error

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction, allowing multiple operations to commit atomically.
	WithTx(tx *sql.Tx) TaskStore
}

// JobMappingStore defines the interface for task-to-external-job mapping
// persistence. A mapping is created exactly once per task.
type JobMappingStore interface {
	// CreateMapping saves a new mapping.
	// Returns ErrMappingExists if the task already has one.
	CreateMapping(ctx context.Context, mapping *domain.JobMapping) error

	// GetMapping retrieves the mapping for a task.
	// Returns ErrMappingNotFound if none exists.
	GetMapping(ctx context.Context, taskID uuid.UUID) (*domain.JobMapping, error)

	// UpdateMapping applies a partial update to the mapping for a task.
	// Nil patch fields are left unchanged.
	// Returns ErrMappingNotFound if none exists.
	UpdateMapping(ctx context.Context, taskID uuid.UUID, patch domain.JobMappingPatch) error

	// WithTx returns a new JobMappingStore instance bound to the transaction.
	WithTx(tx *sql.Tx) JobMappingStore
}
