// Package api contains the HTTP handlers for the story generation endpoints,
// their request/response models and the mapping from internal errors to
// status codes and client-safe messages.
package api
