package store

import (
	"context"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/google/uuid"
)

// RateWindowStore defines the interface for rate window persistence.
// Expired windows are never mutated; a fresh row supersedes them.
type RateWindowStore interface {
	// GetActiveWindow returns the window for (user, operation) whose start
	// time is at or after the given cutoff.
	// Returns ErrWindowNotFound when no such window exists.
	GetActiveWindow(ctx context.Context, userID uuid.UUID, operation string, since time.Time) (*domain.RateWindow, error)

	// CreateWindow persists a new window row.
	CreateWindow(ctx context.Context, window *domain.RateWindow) error

	// IncrementWindow adds one to the request counter of the given window.
	IncrementWindow(ctx context.Context, windowID uuid.UUID) error
}
