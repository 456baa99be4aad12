// Package render provides output renderers for normalized submissions.
package render

import (
	"github.com/gaurav-prasanna/promptpipe/core"
)

// MarkdownRenderer writes the submission text as-is. Attachments are
// written separately by the output writer.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render returns the Markdown as bytes, newline-terminated.
func (r *MarkdownRenderer) Render(sub core.NormalizedSubmission) ([]byte, error) {
	if sub.Text == "" {
		return nil, nil
	}
	return []byte(sub.Text + "\n"), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownRenderer) Extension() string {
	return ".md"
}
