// Package narrative converts accumulated generation text into a structured
// story: a title plus ordered, fully-formed pages.
package narrative

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fablery/fable-api/internal/domain"
)

// Line markers of the generation grammar. These must match the prompt sent
// to the external service (see internal/jobs) or nothing parses.
const (
	titleMarker = "Title:"
	textMarker  = "Text:"
	imageMarker = "Image:"
)

var pageHeaderPattern = regexp.MustCompile(`^Page\s+(\d+)\s*:`)

// ParsedStory is the structured output of a parse: a title and the pages
// that survived the completeness rule.
type ParsedStory struct {
	Title string
	Pages []domain.Page
}

// Valid reports whether the parse produced a usable document: a title and at
// least one complete page.
func (s *ParsedStory) Valid() bool {
	return s.Title != "" && len(s.Pages) > 0
}

// Parse scans the accumulated text line by line, maintaining a cursor over
// the page under construction. Title lines set the document title (last
// occurrence wins). A page header closes the current page and opens a new
// one; Text and Image lines set the current page's fields with overwrite
// semantics. A page is appended only when BOTH fields are non-empty at close
// time; incomplete pages are silently dropped rather than surfaced, a lossy
// policy the rest of the system depends on.
//
// Parsing is deterministic: the same input always yields a structurally
// identical story.
func Parse(content string) *ParsedStory {
	story := &ParsedStory{}

	var current *pageBuilder

	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, titleMarker):
			story.Title = strings.TrimSpace(strings.TrimPrefix(line, titleMarker))

		case pageHeaderPattern.MatchString(line):
			story.close(current)
			current = newPageBuilder(line)

		case strings.HasPrefix(line, textMarker):
			if current != nil {
				current.text = strings.TrimSpace(strings.TrimPrefix(line, textMarker))
			}

		case strings.HasPrefix(line, imageMarker):
			if current != nil {
				current.image = strings.TrimSpace(strings.TrimPrefix(line, imageMarker))
			}
		}
	}

	story.close(current)

	return story
}

// pageBuilder is the page under construction while the cursor advances.
type pageBuilder struct {
	number int
	text   string
	image  string
}

func newPageBuilder(headerLine string) *pageBuilder {
	match := pageHeaderPattern.FindStringSubmatch(headerLine)
	number, err := strconv.Atoi(match[1])
	if err != nil {
		// The pattern only matches digits; overflow is the lone failure mode.
		number = 0
	}
	return &pageBuilder{number: number}
}

// close appends the page under construction iff both fields are populated.
func (s *ParsedStory) close(b *pageBuilder) {
	if b == nil {
		return
	}
	if b.text == "" || b.image == "" {
		return
	}
	s.Pages = append(s.Pages, domain.Page{
		Number: b.number,
		Text:   b.text,
		Image:  b.image,
	})
}
