package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/jobs"
	"github.com/fablery/fable-api/internal/narrative"
	"github.com/fablery/fable-api/internal/platform/logger"
	"github.com/fablery/fable-api/internal/ratelimit"
	"github.com/fablery/fable-api/internal/store"
	"github.com/fablery/fable-api/internal/stream"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RateLimiter checks whether a user may perform an operation.
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID, operation string, ceiling int) bool
}

// StreamReconciler consumes a framed result stream and accumulates the
// generating agent's output.
type StreamReconciler interface {
	Consume(ctx context.Context, r io.Reader) (*stream.Result, error)
}

// SubmitResult is the outcome of a submission. A failed initiation still
// produces a task ID: a failed task is a first-class, queryable outcome.
type SubmitResult struct {
	TaskID       uuid.UUID
	ThreadID     string
	RunID        string
	Status       domain.TaskStatus
	ErrorMessage string
}

// StatusResult is the reconciled view of a task's progress.
type StatusResult struct {
	TaskID       uuid.UUID
	Status       domain.TaskStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	ThreadID     string
	RunID        string
}

// FetchResult is the outcome of a result fetch. For a non-terminal task only
// Status and Message are set. For a completed task either Document is set,
// or ParseFailed is true and RawContent carries the unparseable text.
type FetchResult struct {
	TaskID      uuid.UUID
	Status      domain.TaskStatus
	Message     string
	Document    *domain.StoryDocument
	RawContent  string
	ParseFailed bool
}

// SaveResult reports the identity of a persisted document.
type SaveResult struct {
	DocumentID uuid.UUID
}

// Limits carries the per-operation request ceilings.
type Limits struct {
	SubmitCeiling int
	StatusCeiling int
}

// StoryService orchestrates story generation: it creates the durable task
// record, delegates to the external job, reconciles local state against the
// job's progress and converts the streamed output into a story document.
type StoryService interface {
	// Submit creates a task, initiates the external job and records its
	// identifiers. Returns ErrRateLimited when the submit ceiling is hit.
	Submit(ctx context.Context, userID uuid.UUID, brief string, tags []string) (*SubmitResult, error)

	// Status reads the task and, while it is in flight, reconciles it
	// against the external job's current state.
	Status(ctx context.Context, userID, taskID uuid.UUID) (*StatusResult, error)

	// Result returns the structured document for a completed task, deriving
	// and persisting it exactly once from the result stream.
	Result(ctx context.Context, userID, taskID uuid.UUID) (*FetchResult, error)

	// Save persists a caller-supplied document for a task.
	Save(ctx context.Context, userID, taskID uuid.UUID, title string, pages []domain.Page) (*SaveResult, error)
}

// storyService implements StoryService.
type storyService struct {
	tasks      store.TaskStore
	mappings   store.JobMappingStore
	stories    store.StoryStore
	audit      store.AuditStore
	limiter    RateLimiter
	client     jobs.Client
	reconciler StreamReconciler
	limits     Limits
	// streamTimeout bounds consumption of one full result stream.
	streamTimeout time.Duration
	// fetchGroup collapses concurrent first-time result fetches for the
	// same task within this process. The unique constraint on
	// stories(task_id) remains the authoritative cross-process guard.
	fetchGroup singleflight.Group
	logger     *slog.Logger
}

// NewStoryService creates a StoryService with explicit dependencies. There
// are no process-wide singletons: callers wire every collaborator in.
func NewStoryService(
	tasks store.TaskStore,
	mappings store.JobMappingStore,
	stories store.StoryStore,
	audit store.AuditStore,
	limiter RateLimiter,
	client jobs.Client,
	reconciler StreamReconciler,
	limits Limits,
	streamTimeout time.Duration,
	log *slog.Logger,
) (StoryService, error) {
	switch {
	case tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case mappings == nil:
		return nil, errors.New("mapping store cannot be nil")
	case stories == nil:
		return nil, errors.New("story store cannot be nil")
	case audit == nil:
		return nil, errors.New("audit store cannot be nil")
	case limiter == nil:
		return nil, errors.New("rate limiter cannot be nil")
	case client == nil:
		return nil, errors.New("job client cannot be nil")
	case reconciler == nil:
		return nil, errors.New("stream reconciler cannot be nil")
	}

	if streamTimeout <= 0 {
		streamTimeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	return &storyService{
		tasks:         tasks,
		mappings:      mappings,
		stories:       stories,
		audit:         audit,
		limiter:       limiter,
		client:        client,
		reconciler:    reconciler,
		limits:        limits,
		streamTimeout: streamTimeout,
		logger:        log.With(slog.String("component", "story_service")),
	}, nil
}

// Submit implements StoryService.Submit
func (s *storyService) Submit(ctx context.Context, userID uuid.UUID, brief string, tags []string) (*SubmitResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !s.limiter.Allow(ctx, userID, ratelimit.OperationSubmit, s.limits.SubmitCeiling) {
		s.auditFailure(ctx, userID, "submit", ErrRateLimited, domain.AuditSeverityWarning)
		return nil, ErrRateLimited
	}

	task, err := domain.NewGenerationTask(userID, brief, tags)
	if err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityWarning)
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "submit", Message: "failed to create task", Err: err}
	}

	mapping, err := domain.NewJobMapping(task.ID)
	if err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "submit", Message: "failed to build mapping", Err: err}
	}
	if err := s.mappings.CreateMapping(ctx, mapping); err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "submit", Message: "failed to create mapping", Err: err}
	}

	handle, err := s.client.Initiate(ctx, brief, tags)
	if err != nil {
		// The task stays queryable; the failure is recorded on it rather
		// than raised to the caller.
		log.Warn("external job initiation failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		s.markFailed(ctx, task.ID, err.Error())
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return &SubmitResult{
			TaskID:       task.ID,
			Status:       domain.TaskStatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	if err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusProcessing, ""); err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "submit", Message: "failed to mark task processing", Err: err}
	}
	processing := domain.TaskStatusProcessing
	if err := s.mappings.UpdateMapping(ctx, task.ID, domain.JobMappingPatch{
		ThreadID: &handle.ThreadID,
		RunID:    &handle.RunID,
		Status:   &processing,
	}); err != nil {
		s.auditFailure(ctx, userID, "submit", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "submit", Message: "failed to record job identifiers", Err: err}
	}

	s.auditRequest(ctx, userID, "submit", "task "+task.ID.String())

	return &SubmitResult{
		TaskID:   task.ID,
		ThreadID: handle.ThreadID,
		RunID:    handle.RunID,
		Status:   domain.TaskStatusProcessing,
	}, nil
}

// Status implements StoryService.Status
func (s *storyService) Status(ctx context.Context, userID, taskID uuid.UUID) (*StatusResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !s.limiter.Allow(ctx, userID, ratelimit.OperationStatus, s.limits.StatusCeiling) {
		s.auditFailure(ctx, userID, "status", ErrRateLimited, domain.AuditSeverityWarning)
		return nil, ErrRateLimited
	}

	task, err := s.tasks.GetByID(ctx, taskID, userID)
	if err != nil {
		s.auditFailure(ctx, userID, "status", err, auditSeverityFor(err))
		return nil, err
	}

	result := &StatusResult{
		TaskID:       task.ID,
		Status:       task.Status,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		CompletedAt:  task.CompletedAt,
		ErrorMessage: task.ErrorMessage,
	}

	mapping, err := s.mappings.GetMapping(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrMappingNotFound) {
			return result, nil
		}
		s.auditFailure(ctx, userID, "status", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "status", Message: "failed to read mapping", Err: err}
	}
	result.ThreadID = mapping.ThreadID
	result.RunID = mapping.RunID

	if task.Status != domain.TaskStatusProcessing || mapping.RunID == "" {
		return result, nil
	}

	poll, err := s.client.PollStatus(ctx, jobs.JobHandle{ThreadID: mapping.ThreadID, RunID: mapping.RunID})
	if err != nil {
		// Polling is best effort; the caller re-invokes status later.
		log.Warn("status poll errored, leaving local state unchanged",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return result, nil
	}

	switch poll.Status {
	case jobs.StatusCompleted:
		s.writeThrough(ctx, taskID, domain.TaskStatusCompleted, "", poll.Raw)
		result.Status = domain.TaskStatusCompleted
	case jobs.StatusFailed:
		s.writeThrough(ctx, taskID, domain.TaskStatusFailed, "external job reported failure", poll.Raw)
		result.Status = domain.TaskStatusFailed
		result.ErrorMessage = "external job reported failure"
	default:
		// Running or unknown: local state untouched.
	}

	s.auditRequest(ctx, userID, "status", "task "+taskID.String())

	return result, nil
}

// Result implements StoryService.Result
func (s *storyService) Result(ctx context.Context, userID, taskID uuid.UUID) (*FetchResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID, userID)
	if err != nil {
		s.auditFailure(ctx, userID, "result", err, auditSeverityFor(err))
		return nil, err
	}

	if task.Status != domain.TaskStatusCompleted {
		// No stream is opened for a task that is not done.
		return &FetchResult{
			TaskID:  taskID,
			Status:  task.Status,
			Message: resultPendingMessage(task),
		}, nil
	}

	// Idempotent short-circuit: a persisted document is returned unchanged.
	if doc, err := s.stories.GetByTaskID(ctx, taskID, userID); err == nil {
		return completedResult(taskID, doc), nil
	} else if !errors.Is(err, store.ErrStoryNotFound) {
		s.auditFailure(ctx, userID, "result", err, domain.AuditSeverityError)
		return nil, &StoryServiceError{Operation: "result", Message: "failed to read story", Err: err}
	}

	value, err, _ := s.fetchGroup.Do(taskID.String(), func() (interface{}, error) {
		return s.deriveDocument(ctx, userID, taskID)
	})
	if err != nil {
		s.auditFailure(ctx, userID, "result", err, domain.AuditSeverityError)
		return nil, err
	}

	s.auditRequest(ctx, userID, "result", "task "+taskID.String())

	return value.(*FetchResult), nil
}

// deriveDocument consumes, parses and persists the result stream exactly
// once for a completed task.
func (s *storyService) deriveDocument(ctx context.Context, userID, taskID uuid.UUID) (*FetchResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	mapping, err := s.mappings.GetMapping(ctx, taskID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.streamTimeout)
	defer cancel()

	body, err := s.client.OpenResultStream(streamCtx, jobs.JobHandle{ThreadID: mapping.ThreadID, RunID: mapping.RunID})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := body.Close(); err != nil {
			log.Error("failed to close result stream", slog.String("error", err.Error()))
		}
	}()

	res, err := s.reconciler.Consume(streamCtx, body)
	if err != nil {
		// The partial accumulator is discarded; the caller retries in full.
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrStreamTimeout, err)
		}
		return nil, err
	}

	parsed := narrative.Parse(res.Content)
	if !parsed.Valid() {
		log.Warn("streamed content did not parse into a document",
			slog.String("task_id", taskID.String()),
			slog.Int("content_length", len(res.Content)))
		return &FetchResult{
			TaskID:      taskID,
			Status:      domain.TaskStatusCompleted,
			RawContent:  res.Content,
			ParseFailed: true,
		}, nil
	}

	doc, err := domain.NewStoryDocument(taskID, userID, parsed.Title, parsed.Pages, res.Content)
	if err != nil {
		return nil, &StoryServiceError{Operation: "result", Message: "failed to build document", Err: err}
	}

	if err := s.stories.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, store.ErrStoryExists) {
			// Lost the cross-process race; the winner's document stands.
			existing, readErr := s.stories.GetByTaskID(ctx, taskID, userID)
			if readErr != nil {
				return nil, readErr
			}
			return completedResult(taskID, existing), nil
		}
		return nil, &StoryServiceError{Operation: "result", Message: "failed to persist document", Err: err}
	}

	return completedResult(taskID, doc), nil
}

// Save implements StoryService.Save
func (s *storyService) Save(ctx context.Context, userID, taskID uuid.UUID, title string, pages []domain.Page) (*SaveResult, error) {
	if _, err := s.tasks.GetByID(ctx, taskID, userID); err != nil {
		s.auditFailure(ctx, userID, "save", err, auditSeverityFor(err))
		return nil, err
	}

	doc, err := domain.NewStoryDocument(taskID, userID, title, pages, "")
	if err != nil {
		s.auditFailure(ctx, userID, "save", err, domain.AuditSeverityWarning)
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.stories.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, store.ErrStoryExists) {
			existing, readErr := s.stories.GetByTaskID(ctx, taskID, userID)
			if readErr == nil {
				return &SaveResult{DocumentID: existing.ID}, nil
			}
		}
		s.auditFailure(ctx, userID, "save", err, domain.AuditSeverityError)
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	s.auditRequest(ctx, userID, "save", "task "+taskID.String())

	return &SaveResult{DocumentID: doc.ID}, nil
}

// markFailed records a terminal failure on both the task and its mapping.
func (s *storyService) markFailed(ctx context.Context, taskID uuid.UUID, reason string) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.tasks.UpdateStatus(ctx, taskID, domain.TaskStatusFailed, reason); err != nil {
		log.Error("failed to mark task failed",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
	}
	failed := domain.TaskStatusFailed
	if err := s.mappings.UpdateMapping(ctx, taskID, domain.JobMappingPatch{Status: &failed}); err != nil {
		log.Error("failed to mark mapping failed",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
	}
}

// writeThrough records a terminal external result on both the task and its
// mapping before the status response is returned.
func (s *storyService) writeThrough(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus, errMsg string, raw []byte) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.tasks.UpdateStatus(ctx, taskID, status, errMsg); err != nil {
		log.Error("failed to write through task status",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
	}
	if err := s.mappings.UpdateMapping(ctx, taskID, domain.JobMappingPatch{
		Status:       &status,
		LastResponse: raw,
	}); err != nil {
		log.Error("failed to write through mapping status",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
	}
}

// auditRequest appends a best-effort request audit record. Audit failures
// are logged and swallowed; they never block the user-facing response.
func (s *storyService) auditRequest(ctx context.Context, userID uuid.UUID, operation, detail string) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.audit.LogRequest(ctx, domain.NewRequestLog(userID, operation, detail)); err != nil {
		log.Warn("request audit write failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
	}
}

// auditFailure appends a best-effort error audit record.
func (s *storyService) auditFailure(ctx context.Context, userID uuid.UUID, operation string, cause error, severity domain.AuditSeverity) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	record := domain.NewErrorRecord(userID, operation, fmt.Sprintf("%T", cause), cause.Error(), severity)
	if err := s.audit.LogError(ctx, record); err != nil {
		log.Warn("error audit write failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
	}
}

// auditSeverityFor classifies a failure for its audit record: absent
// entities are expected client mistakes, everything else is an error.
func auditSeverityFor(err error) domain.AuditSeverity {
	if store.IsNotFoundError(err) {
		return domain.AuditSeverityWarning
	}
	return domain.AuditSeverityError
}

// completedResult builds the fetch result for a persisted document.
func completedResult(taskID uuid.UUID, doc *domain.StoryDocument) *FetchResult {
	return &FetchResult{
		TaskID:     taskID,
		Status:     domain.TaskStatusCompleted,
		Document:   doc,
		RawContent: doc.RawContent,
	}
}

// resultPendingMessage explains why no document is available yet.
func resultPendingMessage(task *domain.GenerationTask) string {
	switch task.Status {
	case domain.TaskStatusFailed:
		if task.ErrorMessage != "" {
			return "generation failed: " + task.ErrorMessage
		}
		return "generation failed"
	default:
		return "generation still in progress, check status and retry"
	}
}
