package render

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

func pngAttachment(t *testing.T, name string) core.Attachment {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, x%20, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return core.NewAttachment(name, "image/png", buf.Bytes())
}

func TestMarkdownRenderer(t *testing.T) {
	r := NewMarkdownRenderer()
	out, err := r.Render(core.NormalizedSubmission{Text: "# Hi"})
	require.NoError(t, err)
	assert.Equal(t, "# Hi\n", string(out))
	assert.Equal(t, ".md", r.Extension())
}

func TestJSONRenderer(t *testing.T) {
	a := submission.NewAssembler(submission.Limits{}, submission.WithIDSource(func() string { return "fixed" }))
	r := NewJSONRenderer(a, zerolog.Nop())

	out, err := r.Render(core.NormalizedSubmission{
		Text:        "hello",
		Attachments: []core.Attachment{core.NewAttachment("a.txt", "text/plain", []byte("x"))},
	})
	require.NoError(t, err)

	var got submission.Submission
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "fixed", got.UUID)
	assert.Equal(t, "hello", got.Text)
	assert.Empty(t, got.Files)
	require.Len(t, r.Notices(), 1)
	assert.Equal(t, core.NoticeUnsupportedType, r.Notices()[0].Kind)
	assert.Equal(t, ".json", r.Extension())
}

func TestPDFRenderer(t *testing.T) {
	t.Run("Should render text with referenced and unreferenced images", func(t *testing.T) {
		sub := core.NormalizedSubmission{
			Text: "# Report\n\nSee ![chart][image-0] below.\n\n- item\n\n```go\nfmt.Println(1)\n```\n\n[image-0]: attachment:0/chart.png",
			Attachments: []core.Attachment{
				pngAttachment(t, "chart.png"),
				pngAttachment(t, "extra.png"),
				core.NewAttachment("notes.md", "text/markdown", []byte("# n")),
			},
		}
		out, err := NewPDFRenderer().Render(sub)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	})

	t.Run("Should survive references to missing or broken attachments", func(t *testing.T) {
		sub := core.NormalizedSubmission{
			Text:        "![gone][image-3] ![bad][image-0]",
			Attachments: []core.Attachment{core.NewAttachment("bad.png", "image/png", []byte("not a png"))},
		}
		out, err := NewPDFRenderer().Render(sub)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	})
}

func TestCleanInlineMarkdown(t *testing.T) {
	assert.Equal(t, "bold code link", cleanInlineMarkdown("**bold** `code` [link](https://x)"))
}
