// Package core defines the data model and stage interfaces for PromptPipe.
// Each stage of the ingestion pipeline is a clean, testable interface:
// classify → extract → normalize → re-encode → assemble.
package core

import (
	"context"
	"image"
)

// FetchResult holds a retrieved binary resource and where it came from.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	// Relay is the endpoint template that served the response ("" for direct).
	Relay string
}

// Fetcher retrieves a remote resource, possibly through relay endpoints.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Encoder turns a decoded image into encoded bytes for one compression attempt.
type Encoder interface {
	Encode(img image.Image, attempt CompressionAttempt) ([]byte, error)
	// MIMEType is the media type of the bytes produced by Encode.
	MIMEType() string
}

// Reencoder fits an image attachment under a byte and dimension budget.
// A nil attachment with a nil error means the budget could not be met.
type Reencoder interface {
	Reencode(img Attachment, maxBytes int64, maxDimensionPx int) (*Attachment, error)
}

// CodeExtractor finds code regions in markup and swaps them for placeholders.
type CodeExtractor interface {
	Extract(markup string) (string, []CodeBlock)
	ExtractWhere(markup string, replace func(CodeBlock) bool) (string, []CodeBlock)
}

// MediaExtractor resolves every image referenced by markup, in document order.
type MediaExtractor interface {
	ExtractMedia(ctx context.Context, markup string) []ExtractedMedia
}

// Renderer converts a normalized submission into a final output format.
type Renderer interface {
	Render(sub NormalizedSubmission) ([]byte, error)
	// Extension returns the file extension for this renderer (e.g. ".md", ".pdf").
	Extension() string
}
