package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/store"
	"github.com/google/uuid"
)

// PostgresTaskStore implements the store.TaskStore interface using a
// PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new store bound to the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.TaskStore.Create
// It saves a new task to the database, handling domain validation.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal task tags: %w", err)
	}

	query := `
		INSERT INTO tasks (id, user_id, brief, tags, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Brief,
		tags,
		task.Status,
		nullableString(task.ErrorMessage),
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return MapError(err)
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Reads are scoped to the owning user: a task owned by someone else behaves
// identically to a missing one, so existence never leaks across users.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, brief, tags, status, error_message, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = $1 AND user_id = $2
	`

	var (
		task     domain.GenerationTask
		tags     []byte
		status   string
		errMsg   sql.NullString
		complete sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&task.ID,
		&task.UserID,
		&task.Brief,
		&tags,
		&status,
		&errMsg,
		&task.CreatedAt,
		&task.UpdatedAt,
		&complete,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &task.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task tags: %w", err)
		}
	}
	task.Status = domain.TaskStatus(status)
	if errMsg.Valid {
		task.ErrorMessage = errMsg.String
	}
	if complete.Valid {
		t := complete.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus
// Last-write-wins: each task has a single writer at a time in normal
// operation, so no optimistic concurrency token is used.
func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMessage string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !isTerminalOrActive(status) {
		return domain.ErrInvalidTaskStatus
	}

	now := time.Now().UTC()
	var completedAt sql.NullTime
	if status == domain.TaskStatusCompleted || status == domain.TaskStatusFailed {
		completedAt = sql.NullTime{Time: now, Valid: true}
	}

	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, updated_at = $3,
		    completed_at = COALESCE($4, completed_at)
		WHERE id = $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		status,
		nullableString(errorMessage),
		now,
		completedAt,
		id,
	)

	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		return err
	}

	log.Info("task status updated",
		slog.String("task_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// isTerminalOrActive reports whether the status is one of the four valid
// lifecycle states.
func isTerminalOrActive(status domain.TaskStatus) bool {
	switch status {
	case domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TaskStatusCompleted, domain.TaskStatusFailed:
		return true
	default:
		return false
	}
}

// nullableString converts an empty string to a NULL for storage.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
