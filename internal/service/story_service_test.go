package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/jobs"
	"github.com/fablery/fable-api/internal/store"
	"github.com/fablery/fable-api/internal/stream"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory fakes ---

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.GenerationTask

	createErr error
	updateErr error
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.GenerationTask)}
}

func (f *fakeTaskStore) Create(_ context.Context, task *domain.GenerationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	clone := *task
	f.tasks[task.ID] = &clone
	return nil
}

func (f *fakeTaskStore) GetByID(_ context.Context, id, ownerID uuid.UUID) (*domain.GenerationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

func (f *fakeTaskStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.TaskStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	task, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = status
	task.ErrorMessage = errorMessage
	task.UpdatedAt = time.Now().UTC()
	if task.IsTerminal() && task.CompletedAt == nil {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	return nil
}

func (f *fakeTaskStore) WithTx(_ *sql.Tx) store.TaskStore { return f }

type fakeMappingStore struct {
	mu       sync.Mutex
	mappings map[uuid.UUID]*domain.JobMapping

	createErr error
	getErr    error
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{mappings: make(map[uuid.UUID]*domain.JobMapping)}
}

func (f *fakeMappingStore) CreateMapping(_ context.Context, mapping *domain.JobMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.mappings[mapping.TaskID]; ok {
		return store.ErrMappingExists
	}
	clone := *mapping
	f.mappings[mapping.TaskID] = &clone
	return nil
}

func (f *fakeMappingStore) GetMapping(_ context.Context, taskID uuid.UUID) (*domain.JobMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	mapping, ok := f.mappings[taskID]
	if !ok {
		return nil, store.ErrMappingNotFound
	}
	clone := *mapping
	return &clone, nil
}

func (f *fakeMappingStore) UpdateMapping(_ context.Context, taskID uuid.UUID, patch domain.JobMappingPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mapping, ok := f.mappings[taskID]
	if !ok {
		return store.ErrMappingNotFound
	}
	if patch.ThreadID != nil {
		mapping.ThreadID = *patch.ThreadID
	}
	if patch.RunID != nil {
		mapping.RunID = *patch.RunID
	}
	if patch.Status != nil {
		mapping.Status = *patch.Status
	}
	if patch.LastResponse != nil {
		mapping.LastResponse = patch.LastResponse
	}
	mapping.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeMappingStore) WithTx(_ *sql.Tx) store.JobMappingStore { return f }

type fakeStoryStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*domain.StoryDocument

	createErr error
	creates   int
	// missFirstGet makes the first GetByTaskID miss even when a document
	// exists, simulating a document appearing between check and insert.
	missFirstGet bool
}

func newFakeStoryStore() *fakeStoryStore {
	return &fakeStoryStore{docs: make(map[uuid.UUID]*domain.StoryDocument)}
}

func (f *fakeStoryStore) CreateDocument(_ context.Context, doc *domain.StoryDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.docs[doc.TaskID]; ok {
		return store.ErrStoryExists
	}
	clone := *doc
	f.docs[doc.TaskID] = &clone
	return nil
}

func (f *fakeStoryStore) GetByTaskID(_ context.Context, taskID, ownerID uuid.UUID) (*domain.StoryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missFirstGet {
		f.missFirstGet = false
		return nil, store.ErrStoryNotFound
	}
	doc, ok := f.docs[taskID]
	if !ok || doc.UserID != ownerID {
		return nil, store.ErrStoryNotFound
	}
	clone := *doc
	return &clone, nil
}

type fakeAuditStore struct {
	mu       sync.Mutex
	requests []*domain.RequestLog
	failures []*domain.ErrorRecord
}

func (f *fakeAuditStore) LogRequest(_ context.Context, entry *domain.RequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, entry)
	return nil
}

func (f *fakeAuditStore) LogError(_ context.Context, record *domain.ErrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, record)
	return nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, uuid.UUID, string, int) bool { return true }

type denyLimiter struct {
	deniedOp string
}

func (d denyLimiter) Allow(_ context.Context, _ uuid.UUID, operation string, _ int) bool {
	return operation != d.deniedOp
}

type fakeJobClient struct {
	mu sync.Mutex

	handle      jobs.JobHandle
	initiateErr error
	initiations int

	pollResult jobs.PollResult
	pollErr    error
	polls      int

	streamBody  string
	streamErr   error
	streamOpens int
}

func (f *fakeJobClient) Initiate(_ context.Context, _ string, _ []string) (jobs.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiations++
	if f.initiateErr != nil {
		return jobs.JobHandle{}, f.initiateErr
	}
	return f.handle, nil
}

func (f *fakeJobClient) PollStatus(_ context.Context, _ jobs.JobHandle) (jobs.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return jobs.PollResult{}, f.pollErr
	}
	return f.pollResult, nil
}

func (f *fakeJobClient) OpenResultStream(_ context.Context, _ jobs.JobHandle) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamOpens++
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return io.NopCloser(strings.NewReader(f.streamBody)), nil
}

func (f *fakeJobClient) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamOpens
}

// passthroughReconciler returns the reader's full content as the
// accumulated agent output.
type passthroughReconciler struct {
	err error
}

func (p passthroughReconciler) Consume(_ context.Context, r io.Reader) (*stream.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &stream.Result{Content: string(data)}, nil
}

// --- fixture helpers ---

type fixture struct {
	tasks    *fakeTaskStore
	mappings *fakeMappingStore
	stories  *fakeStoryStore
	audit    *fakeAuditStore
	client   *fakeJobClient
	service  StoryService
}

func newFixture(t *testing.T, limiter RateLimiter, client *fakeJobClient, reconciler StreamReconciler) *fixture {
	t.Helper()

	f := &fixture{
		tasks:    newFakeTaskStore(),
		mappings: newFakeMappingStore(),
		stories:  newFakeStoryStore(),
		audit:    &fakeAuditStore{},
		client:   client,
	}
	if reconciler == nil {
		reconciler = passthroughReconciler{}
	}

	svc, err := NewStoryService(
		f.tasks, f.mappings, f.stories, f.audit,
		limiter, client, reconciler,
		Limits{SubmitCeiling: 10, StatusCeiling: 120},
		time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	require.NoError(t, err)
	f.service = svc
	return f
}

func storyText(pages int) string {
	var b strings.Builder
	b.WriteString("Title: The Lighthouse Fox\n")
	for i := 1; i <= pages; i++ {
		fmt.Fprintf(&b, "Page %d:\n", i)
		fmt.Fprintf(&b, "Text: Fenn the fox climbed step number %d of the lighthouse.\n", i)
		fmt.Fprintf(&b, "Image: A small fox on a spiral staircase, panel %d.\n", i)
	}
	return b.String()
}

// --- tests ---

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("successful submission records job identifiers", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{handle: jobs.JobHandle{ThreadID: "thread_abc", RunID: "run_xyz"}}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()

		result, err := f.service.Submit(context.Background(), userID, "a fox who tends a lighthouse", []string{"cozy"})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, result.Status)
		assert.Equal(t, "thread_abc", result.ThreadID)
		assert.Equal(t, "run_xyz", result.RunID)

		task, err := f.tasks.GetByID(context.Background(), result.TaskID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)

		mapping, err := f.mappings.GetMapping(context.Background(), result.TaskID)
		require.NoError(t, err)
		assert.Equal(t, "thread_abc", mapping.ThreadID)
		assert.Equal(t, "run_xyz", mapping.RunID)
		assert.Equal(t, domain.TaskStatusProcessing, mapping.Status)
	})

	t.Run("failed initiation still returns a queryable task", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{initiateErr: fmt.Errorf("%w: upstream 502", jobs.ErrExternalService)}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()

		result, err := f.service.Submit(context.Background(), userID, "a fox who tends a lighthouse", nil)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.TaskID)
		assert.Equal(t, domain.TaskStatusFailed, result.Status)
		assert.NotEmpty(t, result.ErrorMessage)

		task, err := f.tasks.GetByID(context.Background(), result.TaskID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, task.Status)
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("rate limited submission is rejected before any writes", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{}
		f := newFixture(t, denyLimiter{deniedOp: "submit"}, client, nil)

		_, err := f.service.Submit(context.Background(), uuid.New(), "a brief", nil)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Empty(t, f.tasks.tasks)
		assert.Zero(t, client.initiations)
	})

	t.Run("empty brief is rejected as invalid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Submit(context.Background(), uuid.New(), "", nil)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	submit := func(t *testing.T, f *fixture, userID uuid.UUID) uuid.UUID {
		t.Helper()
		result, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)
		return result.TaskID
	}

	t.Run("running poll leaves local state untouched", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusRunning},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		taskID := submit(t, f, userID)

		result, err := f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, result.Status)
		assert.Equal(t, 1, client.polls)

		task, err := f.tasks.GetByID(context.Background(), taskID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	})

	t.Run("completed poll writes through to task and mapping", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusCompleted, Raw: []byte(`{"status":"completed"}`)},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		taskID := submit(t, f, userID)

		result, err := f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, result.Status)

		task, err := f.tasks.GetByID(context.Background(), taskID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		assert.NotNil(t, task.CompletedAt)

		mapping, err := f.mappings.GetMapping(context.Background(), taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, mapping.Status)
		assert.JSONEq(t, `{"status":"completed"}`, string(mapping.LastResponse))
	})

	t.Run("failed poll records the failure", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusFailed, Raw: []byte(`{"status":"failed"}`)},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		taskID := submit(t, f, userID)

		result, err := f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, result.Status)
		assert.NotEmpty(t, result.ErrorMessage)
	})

	t.Run("unknown poll outcome leaves local state untouched", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusUnknown},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		taskID := submit(t, f, userID)

		result, err := f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, result.Status)
	})

	t.Run("terminal task is never re-polled", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusCompleted},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		taskID := submit(t, f, userID)

		_, err := f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		_, err = f.service.Status(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.Equal(t, 1, client.polls)
	})

	t.Run("other user's task reads as not found", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{handle: jobs.JobHandle{ThreadID: "t1", RunID: "r1"}}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		taskID := submit(t, f, uuid.New())

		_, err := f.service.Status(context.Background(), uuid.New(), taskID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("rate limited status is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, denyLimiter{deniedOp: "status"}, &fakeJobClient{}, nil)

		_, err := f.service.Status(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrRateLimited)
	})
}

func TestResult(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, body string) (*fixture, uuid.UUID, uuid.UUID) {
		t.Helper()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusCompleted},
			streamBody: body,
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		submitted, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)
		_, err = f.service.Status(context.Background(), userID, submitted.TaskID)
		require.NoError(t, err)
		return f, userID, submitted.TaskID
	}

	t.Run("completed task parses stream into a document", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t, storyText(6))

		result, err := f.service.Result(context.Background(), userID, taskID)
		require.NoError(t, err)
		require.NotNil(t, result.Document)
		assert.False(t, result.ParseFailed)
		assert.Equal(t, "The Lighthouse Fox", result.Document.Title)
		assert.Len(t, result.Document.Pages, 6)
		assert.Equal(t, 1, result.Document.Pages[0].Number)

		persisted, err := f.stories.GetByTaskID(context.Background(), taskID, userID)
		require.NoError(t, err)
		assert.Equal(t, result.Document.ID, persisted.ID)
	})

	t.Run("second fetch returns the persisted document without a new stream", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t, storyText(7))

		first, err := f.service.Result(context.Background(), userID, taskID)
		require.NoError(t, err)
		second, err := f.service.Result(context.Background(), userID, taskID)
		require.NoError(t, err)

		assert.Equal(t, first.Document.ID, second.Document.ID)
		assert.Equal(t, 1, f.client.openCount())
	})

	t.Run("result before completion opens no stream", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusRunning},
		}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		submitted, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)

		result, err := f.service.Result(context.Background(), userID, submitted.TaskID)
		require.NoError(t, err)
		assert.Nil(t, result.Document)
		assert.Equal(t, domain.TaskStatusProcessing, result.Status)
		assert.Contains(t, result.Message, "in progress")
		assert.Zero(t, client.openCount())
	})

	t.Run("unparseable content is returned raw without persisting", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t, "once upon a time, free prose with no markers at all")

		result, err := f.service.Result(context.Background(), userID, taskID)
		require.NoError(t, err)
		assert.True(t, result.ParseFailed)
		assert.Nil(t, result.Document)
		assert.Contains(t, result.RawContent, "free prose")

		_, err = f.stories.GetByTaskID(context.Background(), taskID, userID)
		assert.ErrorIs(t, err, store.ErrStoryNotFound)
	})

	t.Run("losing the persist race returns the winner's document", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t, storyText(6))

		// Another process persisted between our existence check and insert.
		winner, err := domain.NewStoryDocument(taskID, userID, "Winner", []domain.Page{
			{Number: 1, Text: "text", Image: "image"},
		}, "raw")
		require.NoError(t, err)
		f.stories.createErr = store.ErrStoryExists
		f.stories.docs[taskID] = winner
		f.stories.missFirstGet = true

		result, err := f.service.Result(context.Background(), userID, taskID)
		require.NoError(t, err)
		require.NotNil(t, result.Document)
		assert.Equal(t, winner.ID, result.Document.ID)
	})

	t.Run("stream timeout surfaces as a retryable error", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{
			handle:     jobs.JobHandle{ThreadID: "t1", RunID: "r1"},
			pollResult: jobs.PollResult{Status: jobs.StatusCompleted},
			streamBody: storyText(6),
		}
		f := &fixture{
			tasks:    newFakeTaskStore(),
			mappings: newFakeMappingStore(),
			stories:  newFakeStoryStore(),
			audit:    &fakeAuditStore{},
			client:   client,
		}
		svc, err := NewStoryService(
			f.tasks, f.mappings, f.stories, f.audit,
			allowAllLimiter{}, client,
			passthroughReconciler{err: context.DeadlineExceeded},
			Limits{SubmitCeiling: 10, StatusCeiling: 120},
			time.Minute,
			slog.New(slog.NewTextHandler(io.Discard, nil)),
		)
		require.NoError(t, err)
		f.service = svc

		userID := uuid.New()
		submitted, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)
		_, err = f.service.Status(context.Background(), userID, submitted.TaskID)
		require.NoError(t, err)

		_, err = f.service.Result(context.Background(), userID, submitted.TaskID)
		assert.ErrorIs(t, err, ErrStreamTimeout)
	})

	t.Run("unknown task reads as not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Result(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestSave(t *testing.T) {
	t.Parallel()

	pages := []domain.Page{
		{Number: 1, Text: "Fenn woke early.", Image: "A fox at dawn."},
		{Number: 2, Text: "He climbed the stairs.", Image: "A spiral staircase."},
	}

	setup := func(t *testing.T) (*fixture, uuid.UUID, uuid.UUID) {
		t.Helper()
		client := &fakeJobClient{handle: jobs.JobHandle{ThreadID: "t1", RunID: "r1"}}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		submitted, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)
		return f, userID, submitted.TaskID
	}

	t.Run("saves a document for an owned task", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t)

		result, err := f.service.Save(context.Background(), userID, taskID, "The Lighthouse Fox", pages)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.DocumentID)

		doc, err := f.stories.GetByTaskID(context.Background(), taskID, userID)
		require.NoError(t, err)
		assert.Equal(t, "The Lighthouse Fox", doc.Title)
	})

	t.Run("duplicate save returns the existing document id", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t)

		first, err := f.service.Save(context.Background(), userID, taskID, "The Lighthouse Fox", pages)
		require.NoError(t, err)
		second, err := f.service.Save(context.Background(), userID, taskID, "A Different Title", pages)
		require.NoError(t, err)
		assert.Equal(t, first.DocumentID, second.DocumentID)
	})

	t.Run("storage failure maps to save failed", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t)
		f.stories.createErr = errors.New("connection reset")

		_, err := f.service.Save(context.Background(), userID, taskID, "The Lighthouse Fox", pages)
		assert.ErrorIs(t, err, ErrSaveFailed)
	})

	t.Run("invalid document is rejected", func(t *testing.T) {
		t.Parallel()
		f, userID, taskID := setup(t)

		_, err := f.service.Save(context.Background(), userID, taskID, "", pages)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("save against another user's task reads as not found", func(t *testing.T) {
		t.Parallel()
		f, _, taskID := setup(t)

		_, err := f.service.Save(context.Background(), uuid.New(), taskID, "The Lighthouse Fox", pages)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestFailurePathsWriteAuditRecords(t *testing.T) {
	t.Parallel()

	lastFailure := func(t *testing.T, f *fixture) *domain.ErrorRecord {
		t.Helper()
		f.audit.mu.Lock()
		defer f.audit.mu.Unlock()
		require.NotEmpty(t, f.audit.failures)
		return f.audit.failures[len(f.audit.failures)-1]
	}

	t.Run("submit with invalid brief", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Submit(context.Background(), uuid.New(), "", nil)
		require.Error(t, err)

		record := lastFailure(t, f)
		assert.Equal(t, "submit", record.Operation)
		assert.Equal(t, domain.AuditSeverityWarning, record.Severity)
	})

	t.Run("status on unknown task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Status(context.Background(), uuid.New(), uuid.New())
		require.ErrorIs(t, err, store.ErrTaskNotFound)

		record := lastFailure(t, f)
		assert.Equal(t, "status", record.Operation)
		assert.Equal(t, domain.AuditSeverityWarning, record.Severity)
	})

	t.Run("result on unknown task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Result(context.Background(), uuid.New(), uuid.New())
		require.ErrorIs(t, err, store.ErrTaskNotFound)

		record := lastFailure(t, f)
		assert.Equal(t, "result", record.Operation)
	})

	t.Run("save on unknown task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, allowAllLimiter{}, &fakeJobClient{}, nil)

		_, err := f.service.Save(context.Background(), uuid.New(), uuid.New(), "Title", nil)
		require.ErrorIs(t, err, store.ErrTaskNotFound)

		record := lastFailure(t, f)
		assert.Equal(t, "save", record.Operation)
	})

	t.Run("save with invalid document", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{handle: jobs.JobHandle{ThreadID: "t1", RunID: "r1"}}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		userID := uuid.New()
		submitted, err := f.service.Submit(context.Background(), userID, "a fox story", nil)
		require.NoError(t, err)

		_, err = f.service.Save(context.Background(), userID, submitted.TaskID, "", nil)
		require.ErrorIs(t, err, store.ErrInvalidEntity)

		record := lastFailure(t, f)
		assert.Equal(t, "save", record.Operation)
		assert.Equal(t, domain.AuditSeverityWarning, record.Severity)
	})

	t.Run("post-initiate status write failure", func(t *testing.T) {
		t.Parallel()
		client := &fakeJobClient{handle: jobs.JobHandle{ThreadID: "t1", RunID: "r1"}}
		f := newFixture(t, allowAllLimiter{}, client, nil)
		f.tasks.updateErr = errors.New("connection reset")

		_, err := f.service.Submit(context.Background(), uuid.New(), "a fox story", nil)
		require.Error(t, err)

		record := lastFailure(t, f)
		assert.Equal(t, "submit", record.Operation)
		assert.Equal(t, domain.AuditSeverityError, record.Severity)
	})
}

func TestNewStoryService(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil dependencies", func(t *testing.T) {
		t.Parallel()
		_, err := NewStoryService(nil, nil, nil, nil, nil, nil, nil, Limits{}, 0, nil)
		assert.Error(t, err)
	})
}
