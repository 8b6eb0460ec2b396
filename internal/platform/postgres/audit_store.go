package postgres

import (
	"context"
	"log/slog"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/store"
	"github.com/google/uuid"
)

// PostgresAuditStore implements the store.AuditStore interface using a
// PostgreSQL database as the storage backend. Rows are append-only.
type PostgresAuditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAuditStore creates a new PostgreSQL implementation of the
// AuditStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAuditStore(db store.DBTX, logger *slog.Logger) *PostgresAuditStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAuditStore{
		db:     db,
		logger: logger.With(slog.String("component", "audit_store")),
	}
}

// Ensure PostgresAuditStore implements store.AuditStore interface
var _ store.AuditStore = (*PostgresAuditStore)(nil)

// LogRequest implements store.AuditStore.LogRequest
func (s *PostgresAuditStore) LogRequest(ctx context.Context, entry *domain.RequestLog) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO request_logs (id, user_id, operation, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.Operation,
		entry.Detail,
		entry.CreatedAt,
	)

	if err != nil {
		log.Error("failed to write request log",
			slog.String("error", err.Error()),
			slog.String("operation", entry.Operation))
		return MapError(err)
	}

	return nil
}

// LogError implements store.AuditStore.LogError
func (s *PostgresAuditStore) LogError(ctx context.Context, record *domain.ErrorRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var userID any
	if record.UserID != uuid.Nil {
		userID = record.UserID
	}

	query := `
		INSERT INTO error_logs (id, user_id, operation, error_type, message, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		record.ID,
		userID,
		record.Operation,
		record.ErrorType,
		record.Message,
		record.Severity,
		record.CreatedAt,
	)

	if err != nil {
		log.Error("failed to write error log",
			slog.String("error", err.Error()),
			slog.String("operation", record.Operation))
		return MapError(err)
	}

	return nil
}
