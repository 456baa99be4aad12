// Package submission is the boundary with the host: it assembles outbound
// payloads, converts inbound defaults into attachments and decides which
// returned payloads are new.
package submission

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/normalize"
)

// File categories reported in FileData.FileType.
const (
	CategoryImage    = "image"
	CategoryPDF      = "pdf"
	CategoryMarkdown = "markdown"
	CategoryAudio    = "audio"
)

// FileData is one outbound file.
type FileData struct {
	Type     string `json:"type"`
	Format   string `json:"format"`
	Data     string `json:"data"`
	Name     string `json:"name,omitempty"`
	Size     int    `json:"size,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// IsImage reports whether the file carries an image media type.
func (f FileData) IsImage() bool { return strings.HasPrefix(f.Type, "image/") }

// Decode returns the raw bytes of a base64 file.
func (f FileData) Decode() ([]byte, error) {
	if f.Format != "" && f.Format != "base64" {
		return nil, fmt.Errorf("file %q: unsupported format %q", f.Name, f.Format)
	}
	return base64.StdEncoding.DecodeString(f.Data)
}

// Submission is the payload handed to the host.
type Submission struct {
	UUID  string     `json:"uuid"`
	Text  string     `json:"text"`
	Files []FileData `json:"files"`
}

// Category maps a media type to its file category. ok is false for types
// outside the allow-list.
func Category(mimeType string) (category string, ok bool) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage, true
	case mt == "application/pdf":
		return CategoryPDF, true
	case mt == "text/markdown", mt == "text/x-markdown":
		return CategoryMarkdown, true
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio, true
	}
	return "", false
}

// Limits caps how many files of each group one submission may carry.
// Zero means unlimited.
type Limits struct {
	MaxImages    int
	MaxDocuments int
}

// Assembler builds outbound submissions.
type Assembler struct {
	limits Limits
	newID  func() string
	log    zerolog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithIDSource replaces the random uuid generator.
func WithIDSource(fn func() string) Option { return func(a *Assembler) { a.newID = fn } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Assembler) { a.log = l } }

// NewAssembler creates an Assembler enforcing limits.
func NewAssembler(limits Limits, opts ...Option) *Assembler {
	a := &Assembler{limits: limits, newID: uuid.NewString, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble encodes every allowed attachment. Disallowed types and files
// over a count ceiling are skipped with a notice; earlier files win. When
// files are skipped, the attachment references in the text are renumbered
// and references to skipped files become visible text.
func (a *Assembler) Assemble(sub core.NormalizedSubmission) (Submission, []core.Notice) {
	out := Submission{UUID: a.newID(), Text: sub.Text, Files: []FileData{}}
	var notices []core.Notice
	keep := make(map[int]int, len(sub.Attachments))
	skipped := map[int]string{}
	skip := func(i int, n core.Notice) {
		notices = append(notices, n)
		skipped[i] = omittedText(sub.Attachments[i], n.Message)
	}
	images, docs := 0, 0
	for i, att := range sub.Attachments {
		cat, ok := Category(att.MIMEType())
		if !ok {
			skip(i, core.Notice{
				Kind: core.NoticeUnsupportedType, Item: att.Name(),
				Message: fmt.Sprintf("%s files are not accepted", att.MIMEType()),
			})
			continue
		}
		if cat == CategoryImage {
			if a.limits.MaxImages > 0 && images >= a.limits.MaxImages {
				skip(i, tooMany(att, "images", a.limits.MaxImages))
				continue
			}
			images++
		} else {
			if a.limits.MaxDocuments > 0 && docs >= a.limits.MaxDocuments {
				skip(i, tooMany(att, "documents", a.limits.MaxDocuments))
				continue
			}
			docs++
		}
		keep[i] = len(out.Files)
		out.Files = append(out.Files, FileData{
			Type:     att.MIMEType(),
			Format:   "base64",
			Data:     base64.StdEncoding.EncodeToString(att.Bytes()),
			Name:     att.Name(),
			Size:     att.Len(),
			FileType: cat,
		})
	}
	if len(skipped) > 0 {
		out.Text = normalize.Reindex(sub.Text, keep, skipped)
	}
	a.log.Debug().Str("uuid", out.UUID).Int("files", len(out.Files)).Int("notices", len(notices)).Msg("submission assembled")
	return out, notices
}

func omittedText(att core.Attachment, reason string) string {
	if att.IsImage() {
		return fmt.Sprintf("[Image omitted: %s (%s)]", att.Name(), reason)
	}
	return fmt.Sprintf("[File omitted: %s (%s)]", att.Name(), reason)
}

func tooMany(att core.Attachment, group string, limit int) core.Notice {
	return core.Notice{
		Kind: core.NoticeTooMany, Item: att.Name(),
		Message: fmt.Sprintf("at most %d %s per message", limit, group),
	}
}
