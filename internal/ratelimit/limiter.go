// Package ratelimit implements a storage-backed sliding-window request
// limiter keyed by (user, operation).
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/store"
	"github.com/google/uuid"
)

// DefaultWindowLength is the trailing window used when none is configured.
const DefaultWindowLength = time.Hour

// Operation names counted by the limiter.
const (
	OperationSubmit = "submit"
	OperationStatus = "status"
)

// Limiter counts requests per (user, operation) over a trailing window.
//
// The read-then-increment sequence is not guarded by any lock, so concurrent
// bursts from the same user can transiently admit a few requests past the
// ceiling. That overshoot is accepted; strict atomicity would need a
// row-level lock or an atomic conditional update and has not been required.
type Limiter struct {
	windows      store.RateWindowStore
	windowLength time.Duration
	logger       *slog.Logger
}

// NewLimiter creates a limiter over the given window store. A non-positive
// windowLength falls back to DefaultWindowLength.
// If logger is nil, a default logger will be used.
func NewLimiter(windows store.RateWindowStore, windowLength time.Duration, logger *slog.Logger) *Limiter {
	if windows == nil {
		panic("windows store cannot be nil")
	}

	if windowLength <= 0 {
		windowLength = DefaultWindowLength
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		windows:      windows,
		windowLength: windowLength,
		logger:       logger.With(slog.String("component", "rate_limiter")),
	}
}

// Allow reports whether the user may perform the operation under the given
// ceiling, creating or incrementing the active window as a side effect.
//
// The limiter FAILS OPEN: any storage error admits the request. Denying
// traffic because the rate-window table is unreachable would turn a storage
// outage into a denial of service, so availability wins over strictness here.
func (l *Limiter) Allow(ctx context.Context, userID uuid.UUID, operation string, ceiling int) bool {
	log := logger.FromContextOrDefault(ctx, l.logger)

	since := time.Now().UTC().Add(-l.windowLength)

	window, err := l.windows.GetActiveWindow(ctx, userID, operation, since)
	if err != nil {
		if !errors.Is(err, store.ErrWindowNotFound) {
			log.Warn("rate window lookup failed, failing open",
				slog.String("error", err.Error()),
				slog.String("user_id", userID.String()),
				slog.String("operation", operation))
			return true
		}

		// First request of a fresh window.
		fresh, err := domain.NewRateWindow(userID, operation, l.windowLength, ceiling)
		if err != nil {
			log.Warn("rate window construction failed, failing open",
				slog.String("error", err.Error()))
			return true
		}
		if err := l.windows.CreateWindow(ctx, fresh); err != nil {
			log.Warn("rate window creation failed, failing open",
				slog.String("error", err.Error()),
				slog.String("user_id", userID.String()),
				slog.String("operation", operation))
		}
		return true
	}

	if window.RequestCount >= ceiling {
		log.Info("rate limit exceeded",
			slog.String("user_id", userID.String()),
			slog.String("operation", operation),
			slog.Int("count", window.RequestCount),
			slog.Int("ceiling", ceiling))
		return false
	}

	if err := l.windows.IncrementWindow(ctx, window.ID); err != nil {
		log.Warn("rate window increment failed, failing open",
			slog.String("error", err.Error()),
			slog.String("window_id", window.ID.String()))
	}
	return true
}
