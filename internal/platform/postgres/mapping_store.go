package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/store"
	"github.com/google/uuid"
)

// PostgresJobMappingStore implements the store.JobMappingStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobMappingStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobMappingStore creates a new PostgreSQL implementation of the
// JobMappingStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresJobMappingStore(db store.DBTX, logger *slog.Logger) *PostgresJobMappingStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobMappingStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_mapping_store")),
	}
}

// Ensure PostgresJobMappingStore implements store.JobMappingStore interface
var _ store.JobMappingStore = (*PostgresJobMappingStore)(nil)

// WithTx returns a new store bound to the given transaction.
func (s *PostgresJobMappingStore) WithTx(tx *sql.Tx) store.JobMappingStore {
	return &PostgresJobMappingStore{
		db:     tx,
		logger: s.logger,
	}
}

// CreateMapping implements store.JobMappingStore.CreateMapping
// The unique constraint on task_id enforces the create-exactly-once rule.
func (s *PostgresJobMappingStore) CreateMapping(ctx context.Context, mapping *domain.JobMapping) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := mapping.Validate(); err != nil {
		log.Warn("mapping validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", mapping.TaskID.String()))
		return err
	}

	query := `
		INSERT INTO job_mappings
			(id, task_id, thread_id, run_id, status, retry_count, max_retries, last_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		mapping.ID,
		mapping.TaskID,
		mapping.ThreadID,
		mapping.RunID,
		mapping.Status,
		mapping.RetryCount,
		mapping.MaxRetries,
		nullableBytes(mapping.LastResponse),
		mapping.CreatedAt,
		mapping.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("mapping already exists for task",
				slog.String("task_id", mapping.TaskID.String()))
			return store.ErrMappingExists
		}
		log.Error("failed to create job mapping",
			slog.String("error", err.Error()),
			slog.String("task_id", mapping.TaskID.String()))
		return MapError(err)
	}

	log.Info("job mapping created",
		slog.String("task_id", mapping.TaskID.String()),
		slog.String("status", string(mapping.Status)))
	return nil
}

// GetMapping implements store.JobMappingStore.GetMapping
func (s *PostgresJobMappingStore) GetMapping(ctx context.Context, taskID uuid.UUID) (*domain.JobMapping, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, task_id, thread_id, run_id, status, retry_count, max_retries, last_response, created_at, updated_at
		FROM job_mappings
		WHERE task_id = $1
	`

	var (
		mapping  domain.JobMapping
		status   string
		response []byte
	)

	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&mapping.ID,
		&mapping.TaskID,
		&mapping.ThreadID,
		&mapping.RunID,
		&status,
		&mapping.RetryCount,
		&mapping.MaxRetries,
		&response,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("mapping not found", slog.String("task_id", taskID.String()))
			return nil, store.ErrMappingNotFound
		}
		log.Error("failed to get job mapping",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, MapError(err)
	}

	mapping.Status = domain.TaskStatus(status)
	mapping.LastResponse = response

	return &mapping, nil
}

// UpdateMapping implements store.JobMappingStore.UpdateMapping
// Nil patch fields are left unchanged; the row is updated in place on every
// reconciliation and never deleted.
func (s *PostgresJobMappingStore) UpdateMapping(ctx context.Context, taskID uuid.UUID, patch domain.JobMappingPatch) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE job_mappings
		SET thread_id = COALESCE($1, thread_id),
		    run_id = COALESCE($2, run_id),
		    status = COALESCE($3, status),
		    last_response = COALESCE($4, last_response),
		    updated_at = $5
		WHERE task_id = $6
	`

	var status *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}

	result, err := s.db.ExecContext(
		ctx,
		query,
		patch.ThreadID,
		patch.RunID,
		status,
		nullableBytes(patch.LastResponse),
		time.Now().UTC(),
		taskID,
	)

	if err != nil {
		log.Error("failed to update job mapping",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrMappingNotFound); err != nil {
		return err
	}

	log.Debug("job mapping updated", slog.String("task_id", taskID.String()))
	return nil
}

// nullableBytes converts an empty byte slice to a NULL for storage.
func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
