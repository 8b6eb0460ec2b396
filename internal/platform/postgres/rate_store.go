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

// PostgresRateWindowStore implements the store.RateWindowStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRateWindowStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRateWindowStore creates a new PostgreSQL implementation of the
// RateWindowStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresRateWindowStore(db store.DBTX, logger *slog.Logger) *PostgresRateWindowStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRateWindowStore{
		db:     db,
		logger: logger.With(slog.String("component", "rate_window_store")),
	}
}

// Ensure PostgresRateWindowStore implements store.RateWindowStore interface
var _ store.RateWindowStore = (*PostgresRateWindowStore)(nil)

// GetActiveWindow implements store.RateWindowStore.GetActiveWindow
// Returns the most recent window whose start is at or after the cutoff;
// older rows are superseded, not mutated.
func (s *PostgresRateWindowStore) GetActiveWindow(
	ctx context.Context,
	userID uuid.UUID,
	operation string,
	since time.Time,
) (*domain.RateWindow, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, operation, window_start, window_seconds, request_count, ceiling
		FROM rate_windows
		WHERE user_id = $1 AND operation = $2 AND window_start >= $3
		ORDER BY window_start DESC
		LIMIT 1
	`

	var (
		window        domain.RateWindow
		windowSeconds int
	)

	err := s.db.QueryRowContext(ctx, query, userID, operation, since).Scan(
		&window.ID,
		&window.UserID,
		&window.Operation,
		&window.WindowStart,
		&windowSeconds,
		&window.RequestCount,
		&window.Ceiling,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWindowNotFound
		}
		log.Error("failed to get active rate window",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("operation", operation))
		return nil, MapError(err)
	}

	window.WindowLength = time.Duration(windowSeconds) * time.Second

	return &window, nil
}

// CreateWindow implements store.RateWindowStore.CreateWindow
func (s *PostgresRateWindowStore) CreateWindow(ctx context.Context, window *domain.RateWindow) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := window.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO rate_windows (id, user_id, operation, window_start, window_seconds, request_count, ceiling)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		window.ID,
		window.UserID,
		window.Operation,
		window.WindowStart,
		int(window.WindowLength.Seconds()),
		window.RequestCount,
		window.Ceiling,
	)

	if err != nil {
		log.Error("failed to create rate window",
			slog.String("error", err.Error()),
			slog.String("user_id", window.UserID.String()),
			slog.String("operation", window.Operation))
		return MapError(err)
	}

	return nil
}

// IncrementWindow implements store.RateWindowStore.IncrementWindow
func (s *PostgresRateWindowStore) IncrementWindow(ctx context.Context, windowID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE rate_windows
		SET request_count = request_count + 1
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, windowID)
	if err != nil {
		log.Error("failed to increment rate window",
			slog.String("error", err.Error()),
			slog.String("window_id", windowID.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrWindowNotFound)
}
