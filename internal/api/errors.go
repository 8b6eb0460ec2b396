package api

import (
	"errors"
	"net/http"

	"github.com/fablery/fable-api/internal/jobs"
	"github.com/fablery/fable-api/internal/service"
	"github.com/fablery/fable-api/internal/service/auth"
	"github.com/fablery/fable-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Not found errors. Owner-scoped reads fold "exists but not yours"
	// into the same code, so existence never leaks across users.
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrStoryNotFound),
		errors.Is(err, store.ErrMappingNotFound):
		return http.StatusNotFound

	// Throttling
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Durable-store write failures on save are retryable
	case errors.Is(err, service.ErrSaveFailed):
		return http.StatusServiceUnavailable

	// External collaborator failures
	case errors.Is(err, jobs.ErrExternalService),
		errors.Is(err, service.ErrStreamTimeout):
		return http.StatusInternalServerError

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrStoryNotFound):
		return "Story not found"

	case errors.Is(err, store.ErrMappingNotFound):
		return "Task has no associated generation job"

	case errors.Is(err, service.ErrRateLimited):
		return "Too many requests, retry later"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, service.ErrSaveFailed):
		return "Story could not be saved, retry later"

	case errors.Is(err, service.ErrStreamTimeout):
		return "Result retrieval timed out, retry later"

	case errors.Is(err, jobs.ErrExternalService):
		return "Story generation service unavailable"

	default:
		return "An unexpected error occurred"
	}
}
