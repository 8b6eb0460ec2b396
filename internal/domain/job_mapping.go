package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors for JobMapping
var (
	ErrEmptyMappingID     = errors.New("mapping ID cannot be empty")
	ErrEmptyMappingTaskID = errors.New("mapping task ID cannot be empty")
)

// DefaultMaxRetries is the ceiling recorded on new mappings. The retry
// counters are reserved for future automatic-retry logic; no code path
// increments or consults them yet.
const DefaultMaxRetries = 3

// JobMapping links a local GenerationTask to its external job, identified by
// a thread ID and a run ID. It mirrors the task status and keeps the last raw
// response payload from the external service for audit.
type JobMapping struct {
	ID           uuid.UUID       `json:"id"`
	TaskID       uuid.UUID       `json:"task_id"`
	ThreadID     string          `json:"thread_id"`
	RunID        string          `json:"run_id"`
	Status       TaskStatus      `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	LastResponse json.RawMessage `json:"last_response,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJobMapping creates a mapping for the given task in the pending state.
// The external identifiers are filled in once the job has been initiated.
func NewJobMapping(taskID uuid.UUID) (*JobMapping, error) {
	now := time.Now().UTC()
	mapping := &JobMapping{
		ID:         uuid.New(),
		TaskID:     taskID,
		Status:     TaskStatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	return mapping, nil
}

// Validate checks if the JobMapping has valid data.
func (m *JobMapping) Validate() error {
	if m.ID == uuid.Nil {
		return ErrEmptyMappingID
	}

	if m.TaskID == uuid.Nil {
		return ErrEmptyMappingTaskID
	}

	if !isValidTaskStatus(m.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// JobMappingPatch describes a partial update applied during reconciliation.
// Nil fields are left unchanged.
type JobMappingPatch struct {
	ThreadID     *string
	RunID        *string
	Status       *TaskStatus
	LastResponse json.RawMessage
}
