package api

import "github.com/fablery/fable-api/internal/domain"

// SubmitStoryRequest is the request body for story submission.
// CustomTags are merged after Tags; both are optional beyond the brief.
type SubmitStoryRequest struct {
	Brief      string   `json:"brief" validate:"required,max=4000"`
	Tags       []string `json:"tags,omitempty" validate:"max=20,dive,max=64"`
	CustomTags []string `json:"customTags,omitempty" validate:"max=20,dive,max=64"`
}

// SubmitStoryResponse is the response body for story submission. A failed
// initiation still carries the task ID so the outcome stays queryable.
type SubmitStoryResponse struct {
	TaskID           string `json:"taskId"`
	ExternalThreadID string `json:"externalThreadId,omitempty"`
	ExternalRunID    string `json:"externalRunId,omitempty"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
}

// StoryStatusResponse is the response body for a status poll.
type StoryStatusResponse struct {
	TaskID           string `json:"taskId"`
	Status           string `json:"status"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
	CompletedAt      string `json:"completedAt,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	ExternalThreadID string `json:"externalThreadId,omitempty"`
	ExternalRunID    string `json:"externalRunId,omitempty"`
}

// PageResponse is one illustrated page within a document payload.
type PageResponse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Image  string `json:"image"`
}

// DocumentResponse is the structured story inside result and save payloads.
type DocumentResponse struct {
	Title string         `json:"title"`
	Pages []PageResponse `json:"pages"`
}

// StoryResultResponse is the response body for a result fetch. For a
// non-terminal task only Status and Message are set; for a completed task
// either Document is present, or Error flags a parse failure and RawContent
// carries the unstructured text.
type StoryResultResponse struct {
	TaskID     string            `json:"taskId"`
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	Document   *DocumentResponse `json:"document,omitempty"`
	RawContent string            `json:"rawContent,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// SaveStoryRequest is the request body for persisting a caller-supplied
// document.
type SaveStoryRequest struct {
	Document SaveDocument `json:"document" validate:"required"`
}

// SaveDocument is the caller-supplied story payload.
type SaveDocument struct {
	Title string     `json:"title" validate:"required,max=500"`
	Pages []SavePage `json:"pages" validate:"required,min=1,dive"`
}

// SavePage is one caller-supplied page.
type SavePage struct {
	Number int    `json:"number" validate:"required,min=1"`
	Text   string `json:"text" validate:"required"`
	Image  string `json:"image" validate:"required"`
}

// SaveStoryResponse confirms a persisted document.
type SaveStoryResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
}

// toDocumentResponse converts a domain document into its API shape.
func toDocumentResponse(doc *domain.StoryDocument) *DocumentResponse {
	pages := make([]PageResponse, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		pages = append(pages, PageResponse{Number: p.Number, Text: p.Text, Image: p.Image})
	}
	return &DocumentResponse{Title: doc.Title, Pages: pages}
}
