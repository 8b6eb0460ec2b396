package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditSeverity classifies error records for the telemetry sink.
type AuditSeverity string

const (
	AuditSeverityWarning AuditSeverity = "warning"
	AuditSeverityError   AuditSeverity = "error"
)

// RequestLog is one append-only audit entry for an accepted operation.
type RequestLog struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Operation string    `json:"operation"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorRecord is one append-only audit entry for a failed operation.
// UserID is Nil when the failure happened before the caller was identified.
type ErrorRecord struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id,omitempty"`
	Operation string        `json:"operation"`
	ErrorType string        `json:"error_type"`
	Message   string        `json:"message"`
	Severity  AuditSeverity `json:"severity"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewRequestLog creates an audit entry for an accepted operation.
func NewRequestLog(userID uuid.UUID, operation, detail string) *RequestLog {
	return &RequestLog{
		ID:        uuid.New(),
		UserID:    userID,
		Operation: operation,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// NewErrorRecord creates an audit entry for a failed operation.
func NewErrorRecord(userID uuid.UUID, operation, errorType, message string, severity AuditSeverity) *ErrorRecord {
	return &ErrorRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Operation: operation,
		ErrorType: errorType,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
}
