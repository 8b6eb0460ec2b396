package store

import (
	"context"

	"github.com/fablery/fable-api/internal/domain"
)

// AuditStore defines the interface for append-only audit persistence.
// Writes are fire-and-forget from the caller's perspective: failures are
// logged by the caller and never block a user-facing response.
type AuditStore interface {
	// LogRequest appends a request audit entry.
	LogRequest(ctx context.Context, entry *domain.RequestLog) error

	// LogError appends an error audit entry.
	LogError(ctx context.Context, record *domain.ErrorRecord) error
}
