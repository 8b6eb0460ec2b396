package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/store"
	"github.com/google/uuid"
)

// PostgresStoryStore implements the store.StoryStore interface using a
// PostgreSQL database as the storage backend. Document and page writes go
// through a single transaction so a story is persisted as an atomic unit.
type PostgresStoryStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStoryStore creates a new PostgreSQL implementation of the
// StoryStore interface. Unlike the other stores it requires a *sql.DB since
// it opens its own transactions.
// If logger is nil, a default logger will be used.
func NewPostgresStoryStore(db *sql.DB, logger *slog.Logger) *PostgresStoryStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "story_store")),
	}
}

// Ensure PostgresStoryStore implements store.StoryStore interface
var _ store.StoryStore = (*PostgresStoryStore)(nil)

// CreateDocument implements store.StoryStore.CreateDocument
// The unique constraint on stories(task_id) makes concurrent first-time
// creation safe: the loser gets store.ErrStoryExists and nothing is written.
func (s *PostgresStoryStore) CreateDocument(ctx context.Context, doc *domain.StoryDocument) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := doc.Validate(); err != nil {
		log.Warn("story validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", doc.TaskID.String()))
		return err
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		docQuery := `
			INSERT INTO stories (id, task_id, user_id, title, raw_content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(
			ctx,
			docQuery,
			doc.ID,
			doc.TaskID,
			doc.UserID,
			doc.Title,
			doc.RawContent,
			doc.CreatedAt,
		); err != nil {
			return err
		}

		pageQuery := `
			INSERT INTO story_pages (id, story_id, page_number, text, image_description)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, page := range doc.Pages {
			if _, err := tx.ExecContext(
				ctx,
				pageQuery,
				uuid.New(),
				doc.ID,
				page.Number,
				page.Text,
				page.Image,
			); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if IsUniqueViolation(err) {
			log.Info("story already exists for task, discarding duplicate",
				slog.String("task_id", doc.TaskID.String()))
			return store.ErrStoryExists
		}
		log.Error("failed to create story document",
			slog.String("error", err.Error()),
			slog.String("task_id", doc.TaskID.String()))
		return MapError(err)
	}

	log.Info("story document created",
		slog.String("story_id", doc.ID.String()),
		slog.String("task_id", doc.TaskID.String()),
		slog.Int("page_count", len(doc.Pages)))
	return nil
}

// GetByTaskID implements store.StoryStore.GetByTaskID
// Pages are returned ordered by page number.
func (s *PostgresStoryStore) GetByTaskID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.StoryDocument, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	docQuery := `
		SELECT id, task_id, user_id, title, raw_content, created_at
		FROM stories
		WHERE task_id = $1 AND user_id = $2
	`

	var doc domain.StoryDocument
	err := s.db.QueryRowContext(ctx, docQuery, taskID, ownerID).Scan(
		&doc.ID,
		&doc.TaskID,
		&doc.UserID,
		&doc.Title,
		&doc.RawContent,
		&doc.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStoryNotFound
		}
		log.Error("failed to get story by task ID",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, MapError(err)
	}

	pageQuery := `
		SELECT page_number, text, image_description
		FROM story_pages
		WHERE story_id = $1
		ORDER BY page_number ASC
	`

	rows, err := s.db.QueryContext(ctx, pageQuery, doc.ID)
	if err != nil {
		log.Error("failed to query story pages",
			slog.String("error", err.Error()),
			slog.String("story_id", doc.ID.String()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	for rows.Next() {
		var page domain.Page
		if err := rows.Scan(&page.Number, &page.Text, &page.Image); err != nil {
			log.Error("failed to scan story page",
				slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		doc.Pages = append(doc.Pages, page)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return &doc, nil
}
