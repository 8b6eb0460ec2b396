package service

import (
	"errors"
	"fmt"
)

// Common sentinel errors for StoryService
var (
	// ErrRateLimited indicates the caller exceeded the request ceiling for
	// the operation's trailing window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSaveFailed indicates the durable store rejected a document save;
	// the API maps this to 503 so clients retry.
	ErrSaveFailed = errors.New("document save failed")

	// ErrStreamTimeout indicates result-stream consumption exceeded the
	// configured bound. The partial accumulator is discarded; the caller
	// must retry the result fetch in full.
	ErrStreamTimeout = errors.New("result stream timed out")
)

// StoryServiceError wraps errors from the story service with context.
type StoryServiceError struct {
	// Operation is the operation that failed (e.g. "submit", "fetch_result")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for StoryServiceError.
func (e *StoryServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("story service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("story service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoryServiceError) Unwrap() error {
	return e.Err
}
