package render

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

// Assembler builds the outbound payload.
type Assembler interface {
	Assemble(sub core.NormalizedSubmission) (submission.Submission, []core.Notice)
}

// JSONRenderer produces the outbound submission payload.
type JSONRenderer struct {
	assembler Assembler
	log       zerolog.Logger
	notices   []core.Notice
}

// NewJSONRenderer creates a JSONRenderer. Notices raised while assembling
// are logged and kept for Notices.
func NewJSONRenderer(a Assembler, log zerolog.Logger) *JSONRenderer {
	return &JSONRenderer{assembler: a, log: log}
}

// Render assembles sub and marshals it.
func (r *JSONRenderer) Render(sub core.NormalizedSubmission) ([]byte, error) {
	payload, notices := r.assembler.Assemble(sub)
	for _, n := range notices {
		r.log.Warn().Str("kind", string(n.Kind)).Str("item", n.Item).Msg(n.Message)
	}
	r.notices = notices

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON: %w", err)
	}
	return data, nil
}

// Notices returns the notices of the last Render.
func (r *JSONRenderer) Notices() []core.Notice { return r.notices }

// Extension returns the file extension for JSON output.
func (r *JSONRenderer) Extension() string {
	return ".json"
}
