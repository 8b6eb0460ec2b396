// Package jobs contains the client for the external asynchronous story
// generation service. A job is identified by a thread ID and a run ID; the
// client can initiate a job, poll its status and open its result stream.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fablery/fable-api/internal/config"
	"github.com/fablery/fable-api/internal/platform/logger"
)

// JobStatus is the local view of an external job's state.
type JobStatus string

const (
	// StatusRunning means the job is queued or in progress.
	StatusRunning JobStatus = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted JobStatus = "completed"
	// StatusFailed means the job terminally failed on the external side.
	StatusFailed JobStatus = "failed"
	// StatusUnknown means the poll could not determine the state (network
	// error, non-success response, unrecognized payload). Callers must leave
	// local state unchanged: a flaky external dependency never flips a task
	// to failed.
	StatusUnknown JobStatus = "unknown"
)

// JobHandle holds the two identifiers of an external job.
type JobHandle struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
}

// PollResult is the outcome of one status poll: the mapped status plus the
// raw response payload for audit.
type PollResult struct {
	Status JobStatus
	Raw    json.RawMessage
}

// Client defines the operations against the external generation service.
type Client interface {
	// Initiate starts a generation job for the brief and returns its handle.
	// Returns ErrExternalService on a non-success response.
	Initiate(ctx context.Context, brief string, tags []string) (JobHandle, error)

	// PollStatus maps the external run state to a JobStatus. Transport
	// failures and non-success responses yield StatusUnknown with a nil
	// error so local state stays untouched.
	PollStatus(ctx context.Context, handle JobHandle) (PollResult, error)

	// OpenResultStream opens the live framed result stream of a run.
	// The caller owns the returned reader and must close it.
	// Returns ErrExternalService on failure.
	OpenResultStream(ctx context.Context, handle JobHandle) (io.ReadCloser, error)
}

// HTTPClient implements Client over the generation service's JSON/SSE API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Ensure HTTPClient implements Client interface
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client from the generation config.
// If logger is nil, a default logger will be used.
func NewHTTPClient(cfg config.GenerationConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		logger: logger.With(slog.String("component", "job_client")),
	}
}

// initiateRequest is the JSON body for starting a run.
type initiateRequest struct {
	Instructions string `json:"instructions"`
}

// initiateResponse is the JSON body returned for a started run.
type initiateResponse struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
}

// runStatusResponse is the JSON body returned by a status poll.
type runStatusResponse struct {
	Status string `json:"status"`
}

// Initiate implements Client.Initiate
func (c *HTTPClient) Initiate(ctx context.Context, brief string, tags []string) (JobHandle, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	prompt, err := BuildStoryPrompt(brief, tags)
	if err != nil {
		return JobHandle{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	body, err := json.Marshal(initiateRequest{Instructions: prompt})
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to marshal initiation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/threads/runs", bytes.NewReader(body))
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to build initiation request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("job initiation request failed", slog.String("error", err.Error()))
		return JobHandle{}, fmt.Errorf("%w: initiation request: %v", ErrExternalService, err)
	}
	defer c.closeBody(resp.Body, log)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("job initiation rejected", slog.Int("status_code", resp.StatusCode))
		return JobHandle{}, fmt.Errorf("%w: initiation returned status %d", ErrExternalService, resp.StatusCode)
	}

	var parsed initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return JobHandle{}, fmt.Errorf("%w: malformed initiation response: %v", ErrExternalService, err)
	}

	if parsed.ThreadID == "" || parsed.RunID == "" {
		return JobHandle{}, fmt.Errorf("%w: initiation response missing job identifiers", ErrExternalService)
	}

	log.Info("external job initiated",
		slog.String("thread_id", parsed.ThreadID),
		slog.String("run_id", parsed.RunID))

	return JobHandle{ThreadID: parsed.ThreadID, RunID: parsed.RunID}, nil
}

// PollStatus implements Client.PollStatus
// A transient external outage never forces a task to failed, so every
// transport or protocol problem here degrades to StatusUnknown.
func (c *HTTPClient) PollStatus(ctx context.Context, handle JobHandle) (PollResult, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/runs/"+handle.RunID, nil)
	if err != nil {
		return PollResult{Status: StatusUnknown}, nil
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("status poll failed, leaving local state unchanged",
			slog.String("error", err.Error()),
			slog.String("run_id", handle.RunID))
		return PollResult{Status: StatusUnknown}, nil
	}
	defer c.closeBody(resp.Body, log)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("status poll returned non-success, leaving local state unchanged",
			slog.Int("status_code", resp.StatusCode),
			slog.String("run_id", handle.RunID))
		return PollResult{Status: StatusUnknown}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{Status: StatusUnknown}, nil
	}

	var parsed runStatusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn("status poll returned malformed payload",
			slog.String("error", err.Error()),
			slog.String("run_id", handle.RunID))
		return PollResult{Status: StatusUnknown, Raw: raw}, nil
	}

	return PollResult{Status: mapExternalStatus(parsed.Status), Raw: raw}, nil
}

// OpenResultStream implements Client.OpenResultStream
// The stream request deliberately has no client-level timeout; the caller
// bounds consumption through the context.
func (c *HTTPClient) OpenResultStream(ctx context.Context, handle JobHandle) (io.ReadCloser, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/runs/"+handle.RunID+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		log.Error("failed to open result stream",
			slog.String("error", err.Error()),
			slog.String("run_id", handle.RunID))
		return nil, fmt.Errorf("%w: stream request: %v", ErrExternalService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.closeBody(resp.Body, log)
		log.Error("result stream rejected",
			slog.Int("status_code", resp.StatusCode),
			slog.String("run_id", handle.RunID))
		return nil, fmt.Errorf("%w: stream returned status %d", ErrExternalService, resp.StatusCode)
	}

	return resp.Body, nil
}

// mapExternalStatus folds the external service's run states into the three
// local ones. Unrecognized states are Unknown so reconciliation skips them.
func mapExternalStatus(external string) JobStatus {
	switch external {
	case "queued", "in_progress":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed", "cancelled", "expired":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func (c *HTTPClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *HTTPClient) closeBody(body io.Closer, log *slog.Logger) {
	if err := body.Close(); err != nil {
		log.Error("failed to close response body", slog.String("error", err.Error()))
	}
}
