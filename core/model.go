package core

import (
	"bytes"
	"io"
	"strings"
)

// Attachment is an opaque binary payload with a MIME type and display name.
// It is immutable once created: Bytes returns a copy.
type Attachment struct {
	name     string
	mimeType string
	data     []byte
}

// NewAttachment copies data into a new Attachment.
func NewAttachment(name, mimeType string, data []byte) Attachment {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Attachment{name: name, mimeType: mimeType, data: buf}
}

// Name returns the display name.
func (a Attachment) Name() string { return a.name }

// MIMEType returns the media type.
func (a Attachment) MIMEType() string { return a.mimeType }

// Len returns the raw byte length.
func (a Attachment) Len() int { return len(a.data) }

// Bytes returns a copy of the payload.
func (a Attachment) Bytes() []byte {
	buf := make([]byte, len(a.data))
	copy(buf, a.data)
	return buf
}

// Open returns a reader over the payload.
func (a Attachment) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(a.data)), nil
}

// IsImage reports whether the attachment carries an image media type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.mimeType), "image/")
}

// SizeMeasurement is the raw and transport size of an artifact.
type SizeMeasurement struct {
	RawByteSize       int64 `json:"raw_byte_size"`
	TransportByteSize int64 `json:"transport_byte_size"`
}

// CompressionAttempt is one point of the re-encoder's search space.
type CompressionAttempt struct {
	QualityFactor float64
	ScaleFactor   float64
}

// CodeBlock is one detected code region of a markup fragment.
type CodeBlock struct {
	RawMarkup    string
	PlainText    string
	Language     string // empty when no hint was found
	IsInline     bool
	IsStandalone bool
}

// Source reference markers used by ExtractedMedia.
const (
	InlineSVGReference = "inline-svg"
)

// ExtractedMedia is an image resolved from markup. When retrieval fails the
// artifact is a placeholder text object and RetrievalError is set.
type ExtractedMedia struct {
	Artifact        Attachment
	SourceReference string
	Alt             string
	RetrievalError  string
}

// Failed reports whether retrieval of the referenced image failed.
func (m ExtractedMedia) Failed() bool { return m.RetrievalError != "" }

// ClipboardKind is the representation kind of a clipboard item.
type ClipboardKind string

const (
	ClipboardString ClipboardKind = "string"
	ClipboardFile   ClipboardKind = "file"
)

// ClipboardItem is one representation of a paste event's payload.
type ClipboardItem struct {
	ID           string
	Kind         ClipboardKind
	MIMEType     string
	AsAttachment *Attachment
	Content      string
}

// NormalizedSubmission is the terminal artifact of the pipeline: text whose
// image references index into Attachments.
type NormalizedSubmission struct {
	Text        string
	Attachments []Attachment
}
