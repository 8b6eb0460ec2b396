package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors for StoryDocument and Page
var (
	ErrEmptyStoryID     = errors.New("story ID cannot be empty")
	ErrEmptyStoryTaskID = errors.New("story task ID cannot be empty")
	ErrEmptyStoryTitle  = errors.New("story title cannot be empty")
	ErrStoryWithoutPage = errors.New("story must contain at least one page")
	ErrInvalidPage      = errors.New("page must have a number, text and image description")
)

// Page is one illustrated page of a story: a 1-based page number, the
// narrative text and a description of the illustration.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Image  string `json:"image"`
}

// StoryDocument is the structured result derived from a completed task's
// streamed content: a title plus an ordered sequence of pages. It is created
// at most once per task.
type StoryDocument struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Pages      []Page    `json:"pages"`
	RawContent string    `json:"raw_content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewStoryDocument creates a story document for the given task and owner.
// Returns an error if the title is empty or no pages are present.
func NewStoryDocument(taskID, userID uuid.UUID, title string, pages []Page, rawContent string) (*StoryDocument, error) {
	doc := &StoryDocument{
		ID:         uuid.New(),
		TaskID:     taskID,
		UserID:     userID,
		Title:      title,
		Pages:      pages,
		RawContent: rawContent,
		CreatedAt:  time.Now().UTC(),
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks if the StoryDocument has valid data.
func (d *StoryDocument) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyStoryID
	}

	if d.TaskID == uuid.Nil {
		return ErrEmptyStoryTaskID
	}

	if d.Title == "" {
		return ErrEmptyStoryTitle
	}

	if len(d.Pages) == 0 {
		return ErrStoryWithoutPage
	}

	for _, p := range d.Pages {
		if p.Number < 1 || p.Text == "" || p.Image == "" {
			return ErrInvalidPage
		}
	}

	return nil
}
