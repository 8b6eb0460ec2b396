package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors for RateWindow
var (
	ErrEmptyWindowUserID    = errors.New("rate window user ID cannot be empty")
	ErrEmptyWindowOperation = errors.New("rate window operation cannot be empty")
	ErrInvalidWindowLength  = errors.New("rate window length must be positive")
)

// RateWindow is one sliding-window row counting requests for a
// (user, operation) pair. At most one window row is active per pair at any
// instant; expired windows are superseded by new rows, never mutated.
type RateWindow struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Operation    string        `json:"operation"`
	WindowStart  time.Time     `json:"window_start"`
	WindowLength time.Duration `json:"window_length"`
	RequestCount int           `json:"request_count"`
	Ceiling      int           `json:"ceiling"`
}

// NewRateWindow creates a window starting now with a count of one, recording
// the first request of a fresh window.
func NewRateWindow(userID uuid.UUID, operation string, length time.Duration, ceiling int) (*RateWindow, error) {
	w := &RateWindow{
		ID:           uuid.New(),
		UserID:       userID,
		Operation:    operation,
		WindowStart:  time.Now().UTC(),
		WindowLength: length,
		RequestCount: 1,
		Ceiling:      ceiling,
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}

	return w, nil
}

// Validate checks if the RateWindow has valid data.
func (w *RateWindow) Validate() error {
	if w.UserID == uuid.Nil {
		return ErrEmptyWindowUserID
	}

	if w.Operation == "" {
		return ErrEmptyWindowOperation
	}

	if w.WindowLength <= 0 {
		return ErrInvalidWindowLength
	}

	return nil
}

// ExpiresAt returns the instant after which the window no longer counts.
func (w *RateWindow) ExpiresAt() time.Time {
	return w.WindowStart.Add(w.WindowLength)
}
