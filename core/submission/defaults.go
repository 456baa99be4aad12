package submission

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/media"
)

// FileRef is a default file the host points at by URL.
type FileRef struct {
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// DefaultPayload is the host-supplied initial content. Images holds
// data-URL strings; Files is the extended form.
type DefaultPayload struct {
	Text   string    `json:"text" yaml:"text"`
	Images []string  `json:"images,omitempty" yaml:"images,omitempty"`
	Files  []FileRef `json:"files,omitempty" yaml:"files,omitempty"`
}

// LoadDefaults turns p into in-memory attachments. Data URLs are decoded
// locally; http(s) URLs are retrieved with fetcher. Entries that cannot be
// loaded are reported as notices.
func LoadDefaults(ctx context.Context, p DefaultPayload, fetcher core.Fetcher) (core.NormalizedSubmission, []core.Notice) {
	sub := core.NormalizedSubmission{Text: p.Text}
	var notices []core.Notice

	for i, raw := range p.Images {
		d, err := media.ParseDataURL(raw)
		if err != nil {
			notices = append(notices, core.Notice{Kind: core.NoticeMalformedMarkup, Item: fmt.Sprintf("default image %d", i+1), Message: err.Error()})
			continue
		}
		name := fmt.Sprintf("image-%d%s", i+1, media.ExtensionFor(d.MIMEType))
		sub.Attachments = append(sub.Attachments, core.NewAttachment(name, d.MIMEType, d.Data))
	}

	for i, f := range p.Files {
		att, err := loadFile(ctx, f, i, fetcher)
		if err != nil {
			notices = append(notices, core.Notice{Kind: core.NoticeRetrievalFailed, Item: f.URL, Message: err.Error()})
			continue
		}
		sub.Attachments = append(sub.Attachments, att)
	}
	return sub, notices
}

func loadFile(ctx context.Context, f FileRef, i int, fetcher core.Fetcher) (core.Attachment, error) {
	name := f.Name
	if media.IsDataURL(f.URL) {
		d, err := media.ParseDataURL(f.URL)
		if err != nil {
			return core.Attachment{}, err
		}
		if name == "" {
			name = fmt.Sprintf("file-%d%s", i+1, media.ExtensionFor(d.MIMEType))
		}
		return core.NewAttachment(name, firstNonEmpty(f.Type, d.MIMEType), d.Data), nil
	}
	if fetcher == nil {
		return core.Attachment{}, fmt.Errorf("no fetcher configured: %w", core.ErrRetrievalFailed)
	}
	res, err := fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return core.Attachment{}, err
	}
	if name == "" {
		name = path.Base(strings.SplitN(res.URL, "?", 2)[0])
		if name == "" || name == "/" || name == "." {
			name = fmt.Sprintf("file-%d", i+1)
		}
	}
	return core.NewAttachment(name, firstNonEmpty(f.Type, baseType(res.ContentType)), res.Body), nil
}

func baseType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
