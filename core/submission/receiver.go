package submission

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// PromptReturn is a new submission as seen by the host.
type PromptReturn struct {
	UUID  string     `json:"uuid"`
	Text  string     `json:"text,omitempty"`
	Files []FileData `json:"files,omitempty"`
}

// Images returns the image files.
func (p PromptReturn) Images() []FileData {
	var out []FileData
	for _, f := range p.Files {
		if f.IsImage() {
			out = append(out, f)
		}
	}
	return out
}

// Documents returns every file that is not an image.
func (p PromptReturn) Documents() []FileData {
	var out []FileData
	for _, f := range p.Files {
		if !f.IsImage() {
			out = append(out, f)
		}
	}
	return out
}

// Receiver filters the values a widget reports back so each submission is
// seen once.
type Receiver struct {
	mu   sync.Mutex
	prev string
}

// Receive returns the PromptReturn for value, or nil when value carries no
// uuid, repeats the previous uuid, or has neither text nor files.
func (r *Receiver) Receive(value json.RawMessage) (*PromptReturn, error) {
	var raw struct {
		UUID  *string           `json:"uuid"`
		Text  string            `json:"text"`
		Files []json.RawMessage `json:"files"`
	}
	if len(value) == 0 || string(value) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, fmt.Errorf("decoding widget value: %w", err)
	}
	if raw.UUID == nil || *raw.UUID == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if *raw.UUID == r.prev {
		return nil, nil
	}

	files := make([]FileData, 0, len(raw.Files))
	for _, entry := range raw.Files {
		f, err := fileEntry(entry)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	// A value that failed to decode is not marked as seen.
	r.prev = *raw.UUID
	if len(files) == 0 && raw.Text == "" {
		return nil, nil
	}
	return &PromptReturn{UUID: *raw.UUID, Text: raw.Text, Files: files}, nil
}

// fileEntry accepts either a FileData object or a legacy data-URL string.
func fileEntry(entry json.RawMessage) (FileData, error) {
	var s string
	if err := json.Unmarshal(entry, &s); err == nil {
		return legacyFile(s)
	}
	var f FileData
	if err := json.Unmarshal(entry, &f); err != nil {
		return FileData{}, fmt.Errorf("decoding file entry: %w", err)
	}
	if f.FileType == "" {
		f.FileType, _ = Category(f.Type)
	}
	return f, nil
}

// legacyFile splits "data:<type>;<format>,<data>" without decoding the payload.
func legacyFile(s string) (FileData, error) {
	header, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasPrefix(s, "data:") {
		return FileData{}, fmt.Errorf("file entry is not a data URL")
	}
	mimeType, format, _ := strings.Cut(header, ";")
	f := FileData{Type: mimeType, Format: format, Data: data}
	f.FileType, _ = Category(mimeType)
	return f, nil
}
