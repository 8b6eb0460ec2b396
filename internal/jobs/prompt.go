package jobs

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// storyPromptText instructs the generation service to emit the exact
// line-prefixed grammar the content parser understands: one Title line, then
// 6-10 numbered page blocks of Text and Image lines. Changing this wording
// changes the wire format the parser depends on.
const storyPromptText = `You are a children's story author and illustrator director.
Write a short illustrated story based on this brief: {{.Brief}}
{{- if .Tags}}
Themes to weave in: {{.TagList}}.
{{- end}}

Produce between 6 and 10 pages. Respond using EXACTLY this format, with no
extra commentary before or after:

Title: <the story title>
Page 1:
Text: <one or two sentences of narrative for this page>
Image: <a vivid description of the illustration for this page>
Page 2:
Text: <...>
Image: <...>

Continue numbering pages sequentially. Every page must have both a Text line
and an Image line.`

var storyPromptTemplate = template.Must(template.New("story").Parse(storyPromptText))

// promptData carries the fields rendered into the story prompt.
type promptData struct {
	Brief   string
	Tags    []string
	TagList string
}

// BuildStoryPrompt renders the fixed generation prompt for a brief and its
// tags. Returns an error if the brief is empty.
func BuildStoryPrompt(brief string, tags []string) (string, error) {
	if brief == "" {
		return "", fmt.Errorf("brief cannot be empty")
	}

	data := promptData{
		Brief:   brief,
		Tags:    tags,
		TagList: strings.Join(tags, ", "),
	}

	var buf bytes.Buffer
	if err := storyPromptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
