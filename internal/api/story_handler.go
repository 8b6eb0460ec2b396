package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fablery/fable-api/internal/api/middleware"
	"github.com/fablery/fable-api/internal/api/shared"
	"github.com/fablery/fable-api/internal/domain"
	"github.com/fablery/fable-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StoryHandler handles the story generation endpoints.
type StoryHandler struct {
	service service.StoryService
	logger  *slog.Logger
}

// NewStoryHandler creates a new StoryHandler with the given dependencies.
func NewStoryHandler(svc service.StoryService, log *slog.Logger) *StoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StoryHandler{
		service: svc,
		logger:  log.With(slog.String("component", "story_handler")),
	}
}

// Submit handles POST /api/stories
func (h *StoryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req SubmitStoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Brief is required")
		return
	}

	tags := append(req.Tags, req.CustomTags...)

	result, err := h.service.Submit(r.Context(), userID, req.Brief, tags)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitStoryResponse{
		TaskID:           result.TaskID.String(),
		ExternalThreadID: result.ThreadID,
		ExternalRunID:    result.RunID,
		Status:           string(result.Status),
		Error:            result.ErrorMessage,
	})
}

// Status handles GET /api/stories/{id}/status
func (h *StoryHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	taskID, err := taskIDFromURL(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	result, err := h.service.Status(r.Context(), userID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := StoryStatusResponse{
		TaskID:           result.TaskID.String(),
		Status:           string(result.Status),
		CreatedAt:        result.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        result.UpdatedAt.Format(time.RFC3339),
		ErrorMessage:     result.ErrorMessage,
		ExternalThreadID: result.ThreadID,
		ExternalRunID:    result.RunID,
	}
	if result.CompletedAt != nil {
		resp.CompletedAt = result.CompletedAt.Format(time.RFC3339)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Result handles GET /api/stories/{id}/result
func (h *StoryHandler) Result(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	taskID, err := taskIDFromURL(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	result, err := h.service.Result(r.Context(), userID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := StoryResultResponse{
		TaskID:  result.TaskID.String(),
		Status:  string(result.Status),
		Message: result.Message,
	}
	switch {
	case result.Document != nil:
		resp.Document = toDocumentResponse(result.Document)
		resp.RawContent = result.RawContent
	case result.ParseFailed:
		resp.RawContent = result.RawContent
		resp.Error = "parse failed"
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Save handles POST /api/stories/{id}/save
func (h *StoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}

	taskID, err := taskIDFromURL(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	var req SaveStoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Document with title and pages is required")
		return
	}

	pages := make([]domain.Page, 0, len(req.Document.Pages))
	for _, p := range req.Document.Pages {
		pages = append(pages, domain.Page{Number: p.Number, Text: p.Text, Image: p.Image})
	}

	result, err := h.service.Save(r.Context(), userID, taskID, req.Document.Title, pages)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, SaveStoryResponse{
		Success:    true,
		DocumentID: result.DocumentID.String(),
	})
}

// taskIDFromURL parses the {id} path parameter.
func taskIDFromURL(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}
