package store

import (
	"context"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/google/uuid"
)

// StoryStore defines the interface for story document persistence.
type StoryStore interface {
	// CreateDocument persists a story document and all of its pages as a
	// single atomic unit. Returns ErrStoryExists when a document already
	// exists for the task; the caller treats that as losing a benign race
	// and re-reads the winner's document.
	CreateDocument(ctx context.Context, doc *domain.StoryDocument) error

	// GetByTaskID retrieves the story document (pages included, ordered by
	// page number) for a task, scoped to the owning user.
	// Returns ErrStoryNotFound if none exists.
	GetByTaskID(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.StoryDocument, error)
}
