package submission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/promptpipe/core"
)

func att(name, mimeType string) core.Attachment {
	return core.NewAttachment(name, mimeType, []byte(name))
}

func TestCategory(t *testing.T) {
	cases := map[string]string{
		"image/png":                CategoryImage,
		"image/svg+xml":            CategoryImage,
		"application/pdf":          CategoryPDF,
		"text/markdown":            CategoryMarkdown,
		"text/x-markdown":          CategoryMarkdown,
		"audio/mpeg":               CategoryAudio,
		"text/markdown; charset=x": CategoryMarkdown,
	}
	for mt, want := range cases {
		got, ok := Category(mt)
		assert.True(t, ok, mt)
		assert.Equal(t, want, got, mt)
	}
	_, ok := Category("application/zip")
	assert.False(t, ok)
}

func TestAssembler(t *testing.T) {
	t.Run("Should encode allowed attachments with their category", func(t *testing.T) {
		a := NewAssembler(Limits{}, WithIDSource(func() string { return "id-1" }))
		s, notices := a.Assemble(core.NormalizedSubmission{
			Text:        "hello",
			Attachments: []core.Attachment{att("a.png", "image/png"), att("r.pdf", "application/pdf")},
		})

		assert.Empty(t, notices)
		assert.Equal(t, "id-1", s.UUID)
		assert.Equal(t, "hello", s.Text)
		require.Len(t, s.Files, 2)
		assert.Equal(t, FileData{
			Type: "image/png", Format: "base64", Data: base64.StdEncoding.EncodeToString([]byte("a.png")),
			Name: "a.png", Size: 5, FileType: CategoryImage,
		}, s.Files[0])
		assert.Equal(t, CategoryPDF, s.Files[1].FileType)
	})

	t.Run("Should issue a fresh random uuid per submission", func(t *testing.T) {
		a := NewAssembler(Limits{})
		first, _ := a.Assemble(core.NormalizedSubmission{Text: "x"})
		second, _ := a.Assemble(core.NormalizedSubmission{Text: "x"})
		assert.NotEqual(t, first.UUID, second.UUID)
		id, err := uuid.Parse(first.UUID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), id.Version())
	})

	t.Run("Should drop types outside the allow-list", func(t *testing.T) {
		s, notices := NewAssembler(Limits{}).Assemble(core.NormalizedSubmission{
			Attachments: []core.Attachment{att("x.zip", "application/zip"), att("a.png", "image/png")},
		})
		require.Len(t, s.Files, 1)
		require.Len(t, notices, 1)
		assert.ErrorIs(t, notices[0].Err(), core.ErrUnsupportedType)
	})

	t.Run("Should keep the earliest files under the count ceilings", func(t *testing.T) {
		s, notices := NewAssembler(Limits{MaxImages: 1, MaxDocuments: 1}).Assemble(core.NormalizedSubmission{
			Attachments: []core.Attachment{
				att("1.png", "image/png"), att("a.md", "text/markdown"),
				att("2.png", "image/png"), att("b.mp3", "audio/mpeg"),
			},
		})
		require.Len(t, s.Files, 2)
		assert.Equal(t, "1.png", s.Files[0].Name)
		assert.Equal(t, "a.md", s.Files[1].Name)
		require.Len(t, notices, 2)
		assert.ErrorIs(t, notices[0].Err(), core.ErrTooManyAttachments)
		assert.Equal(t, "2.png", notices[0].Item)
	})

	t.Run("Should renumber references after skipped files", func(t *testing.T) {
		text := "a ![one][image-0] b ![two][image-1] c ![three][image-2]\n\n" +
			"[image-0]: attachment:0/1.png\n[image-1]: attachment:1/x.txt\n[image-2]: attachment:2/2.png"
		s, notices := NewAssembler(Limits{}).Assemble(core.NormalizedSubmission{
			Text: text,
			Attachments: []core.Attachment{
				att("1.png", "image/png"), att("x.txt", "text/plain"), att("2.png", "image/png"),
			},
		})
		require.Len(t, notices, 1)
		require.Len(t, s.Files, 2)
		assert.Equal(t, "2.png", s.Files[1].Name)
		assert.Equal(t, "a ![one][image-0] b [File omitted: x.txt (text/plain files are not accepted)] c ![three][image-1]\n\n"+
			"[image-0]: attachment:0/1.png\n[image-1]: attachment:1/2.png", s.Text)
	})

	t.Run("Should show images over the ceiling as omitted", func(t *testing.T) {
		s, _ := NewAssembler(Limits{MaxImages: 1}).Assemble(core.NormalizedSubmission{
			Text:        "![a][image-0] ![b][image-1]\n\n[image-0]: attachment:0/1.png\n[image-1]: attachment:1/2.png",
			Attachments: []core.Attachment{att("1.png", "image/png"), att("2.png", "image/png")},
		})
		assert.Equal(t, "![a][image-0] [Image omitted: 2.png (at most 1 images per message)]\n\n[image-0]: attachment:0/1.png", s.Text)
	})

	t.Run("Should leave the text alone when nothing is skipped", func(t *testing.T) {
		text := "  ![a][image-0]\n\n[image-0]: attachment:0/1.png\n"
		s, _ := NewAssembler(Limits{}).Assemble(core.NormalizedSubmission{
			Text: text, Attachments: []core.Attachment{att("1.png", "image/png")},
		})
		assert.Equal(t, text, s.Text)
	})

	t.Run("Should marshal the outbound wire shape", func(t *testing.T) {
		s, _ := NewAssembler(Limits{}, WithIDSource(func() string { return "u" })).Assemble(core.NormalizedSubmission{Text: "t"})
		b, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `{"uuid":"u","text":"t","files":[]}`, string(b))
	})
}

type mapFetcher map[string]*core.FetchResult

func (m mapFetcher) Fetch(_ context.Context, u string) (*core.FetchResult, error) {
	if r, ok := m[u]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func TestLoadDefaults(t *testing.T) {
	p := DefaultPayload{
		Text:   "draft",
		Images: []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")), "nonsense"},
		Files: []FileRef{
			{URL: "https://files.example/docs/report.pdf"},
			{URL: "data:text/markdown;base64," + base64.StdEncoding.EncodeToString([]byte("# hi")), Name: "notes.md"},
			{URL: "https://files.example/missing.pdf"},
		},
	}
	f := mapFetcher{"https://files.example/docs/report.pdf": {
		URL: "https://files.example/docs/report.pdf", ContentType: "application/pdf; charset=binary", Body: []byte("%PDF"),
	}}

	sub, notices := LoadDefaults(context.Background(), p, f)

	assert.Equal(t, "draft", sub.Text)
	require.Len(t, sub.Attachments, 3)
	assert.Equal(t, "image-1.png", sub.Attachments[0].Name())
	assert.Equal(t, "report.pdf", sub.Attachments[1].Name())
	assert.Equal(t, "application/pdf", sub.Attachments[1].MIMEType())
	assert.Equal(t, "notes.md", sub.Attachments[2].Name())
	assert.Equal(t, []byte("# hi"), sub.Attachments[2].Bytes())
	require.Len(t, notices, 2)
	assert.Equal(t, core.NoticeMalformedMarkup, notices[0].Kind)
	assert.Equal(t, core.NoticeRetrievalFailed, notices[1].Kind)
}

func TestDefaultsGate(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should apply defaults before any interaction", func(t *testing.T) {
		assert.True(t, NewDefaultsGate(DefaultDebounce).ShouldApply(t0))
	})

	t.Run("Should refuse defaults once the user typed", func(t *testing.T) {
		g := NewDefaultsGate(DefaultDebounce)
		g.MarkInteracted()
		assert.False(t, g.ShouldApply(t0))
	})

	t.Run("Should debounce defaults right after a submission", func(t *testing.T) {
		g := NewDefaultsGate(DefaultDebounce)
		g.MarkInteracted()
		g.MarkSubmitted(t0)
		assert.False(t, g.Interacted())
		assert.False(t, g.ShouldApply(t0.Add(500*time.Millisecond)))
		assert.True(t, g.ShouldApply(t0.Add(time.Second)))
	})

	t.Run("Should load defaults only when the gate allows it", func(t *testing.T) {
		p := DefaultPayload{Text: "draft"}
		g := NewDefaultsGate(2 * time.Second)
		g.MarkSubmitted(t0)

		_, _, applied := g.Apply(context.Background(), t0.Add(time.Second), p, nil)
		assert.False(t, applied)

		sub, notices, applied := g.Apply(context.Background(), t0.Add(2*time.Second), p, nil)
		assert.True(t, applied)
		assert.Empty(t, notices)
		assert.Equal(t, "draft", sub.Text)
	})
}

func TestReceiver(t *testing.T) {
	t.Run("Should return each uuid once", func(t *testing.T) {
		var r Receiver
		v := json.RawMessage(`{"uuid":"a","text":"hi","files":[]}`)
		got, err := r.Receive(v)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hi", got.Text)

		again, err := r.Receive(v)
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("Should ignore values without a uuid or content", func(t *testing.T) {
		var r Receiver
		for _, v := range []string{`null`, `{"uuid":null,"text":"x"}`, `{"text":"x"}`, `{"uuid":"b","text":""}`} {
			got, err := r.Receive(json.RawMessage(v))
			require.NoError(t, err, v)
			assert.Nil(t, got, v)
		}
	})

	t.Run("Should accept legacy data-URL entries and split images from documents", func(t *testing.T) {
		var r Receiver
		got, err := r.Receive(json.RawMessage(`{"uuid":"c","files":[
			"data:image/png;base64,cG5n",
			{"type":"application/pdf","format":"base64","data":"JVBERg==","name":"r.pdf"}
		]}`))
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.Images(), 1)
		assert.Equal(t, FileData{Type: "image/png", Format: "base64", Data: "cG5n", FileType: CategoryImage}, got.Images()[0])
		require.Len(t, got.Documents(), 1)
		assert.Equal(t, CategoryPDF, got.Documents()[0].FileType)
		b, err := got.Documents()[0].Decode()
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), b)
	})

	t.Run("Should reject undecodable values", func(t *testing.T) {
		var r Receiver
		_, err := r.Receive(json.RawMessage(`{"uuid":"d","files":["not a data url"]}`))
		assert.Error(t, err)
	})

	t.Run("Should accept a corrected resend after a failed value", func(t *testing.T) {
		var r Receiver
		_, err := r.Receive(json.RawMessage(`{"uuid":"e","text":"x","files":["not a data url"]}`))
		require.Error(t, err)

		got, err := r.Receive(json.RawMessage(`{"uuid":"e","text":"x","files":["data:image/png;base64,cG5n"]}`))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Len(t, got.Images(), 1)

		again, err := r.Receive(json.RawMessage(`{"uuid":"e","text":"x","files":["data:image/png;base64,cG5n"]}`))
		require.NoError(t, err)
		assert.Nil(t, again)
	})
}

func TestFocusRequest(t *testing.T) {
	b, err := json.Marshal(NewFocusRequest())
	require.NoError(t, err)
	assert.True(t, IsFocusRequest(b))
	assert.False(t, IsFocusRequest([]byte(`{"type":"resize"}`)))
	assert.False(t, IsFocusRequest([]byte(`garbage`)))
}
