package clipboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/media"
	"github.com/gaurav-prasanna/promptpipe/core/normalize"
	"github.com/gaurav-prasanna/promptpipe/core/size"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

// DefaultMaxImageBytes is the image budget used when none is configured.
const DefaultMaxImageBytes = 5 << 20

var errNoSelection = errors.New("no selection dialog is open")

// Normalizer converts markup into Markdown with attachment references.
type Normalizer interface {
	Normalize(fragment string, opts normalize.Options) normalize.Result
}

// Assembler builds the outbound payload for a normalized submission.
type Assembler interface {
	Assemble(sub core.NormalizedSubmission) (submission.Submission, []core.Notice)
}

// Outcome is what a paste, confirmation or submission produced.
type Outcome struct {
	Decision   Decision
	Submission core.NormalizedSubmission
	Notices    []core.Notice
}

// Handler sequences classify, extract, normalize and re-encode for paste
// events and holds the selection dialog state.
type Handler struct {
	classifier *Classifier
	reencoder  core.Reencoder
	media      core.MediaExtractor
	normalizer Normalizer
	assembler  Assembler
	maxBytes   int64
	maxDim     int
	log        zerolog.Logger

	mu      sync.Mutex
	pending *Selection
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBudget sets the image byte budget and optional dimension ceiling.
func WithBudget(maxBytes int64, maxDimensionPx int) HandlerOption {
	return func(h *Handler) {
		h.maxBytes = maxBytes
		h.maxDim = maxDimensionPx
	}
}

// WithAssembler enables Submit.
func WithAssembler(a Assembler) HandlerOption { return func(h *Handler) { h.assembler = a } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) HandlerOption { return func(h *Handler) { h.log = l } }

// NewHandler wires the pipeline stages together.
func NewHandler(c *Classifier, r core.Reencoder, m core.MediaExtractor, n Normalizer, opts ...HandlerOption) *Handler {
	h := &Handler{
		classifier: c,
		reencoder:  r,
		media:      m,
		normalizer: n,
		maxBytes:   DefaultMaxImageBytes,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Pending returns the open selection dialog, or nil.
func (h *Handler) Pending() *Selection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Paste classifies ev. Image-only pastes are re-encoded right away; a
// selection decision opens the dialog and nothing is processed until
// Confirm.
func (h *Handler) Paste(ctx context.Context, ev PasteEvent) (Outcome, error) {
	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return Outcome{}, core.ErrSelectionPending
	}
	d := h.classifier.Classify(ev)
	if d.Action == ShowSelectionDialog {
		h.pending = &Selection{items: d.Items}
	}
	h.mu.Unlock()

	h.log.Debug().Str("action", d.Action.String()).Int("items", len(ev.Items)).Msg("paste classified")
	out := Outcome{Decision: d}
	if d.Action == AutoHandleImage {
		out.Submission, out.Notices = h.process(ctx, d.Items)
	}
	return out, nil
}

// Confirm closes the dialog and processes the chosen items in the order
// they were offered.
func (h *Handler) Confirm(ctx context.Context, ids []string) (Outcome, error) {
	h.mu.Lock()
	sel := h.pending
	h.pending = nil
	h.mu.Unlock()
	if sel == nil {
		return Outcome{}, errNoSelection
	}
	items := sel.pick(ids)
	out := Outcome{Decision: Decision{Action: ShowSelectionDialog, Items: items}}
	out.Submission, out.Notices = h.process(ctx, items)
	return out, nil
}

// Cancel closes the dialog without processing anything.
func (h *Handler) Cancel() {
	h.mu.Lock()
	h.pending = nil
	h.mu.Unlock()
}

// Submit assembles the outbound payload. It is refused while a selection
// dialog is open.
func (h *Handler) Submit(sub core.NormalizedSubmission) (submission.Submission, []core.Notice, error) {
	if h.Pending() != nil {
		return submission.Submission{}, nil, core.ErrSelectionPending
	}
	if h.assembler == nil {
		return submission.Submission{}, nil, fmt.Errorf("submit: no assembler configured")
	}
	s, notices := h.assembler.Assemble(sub)
	return s, notices, nil
}

// Fit re-encodes the image attachments of an upload; other attachments
// pass through. Images that cannot be fitted are dropped with a notice.
func (h *Handler) Fit(atts []core.Attachment) ([]core.Attachment, []core.Notice) {
	r := &run{}
	for _, att := range atts {
		if !att.IsImage() {
			r.atts = append(r.atts, att)
			continue
		}
		if fitted, _ := h.fit(r, att); fitted != nil {
			r.atts = append(r.atts, *fitted)
		}
	}
	return r.atts, r.notices
}

// run collects the text and attachments of one processing pass.
type run struct {
	texts   []string
	atts    []core.Attachment
	notices []core.Notice
}

func (r *run) notice(kind core.NoticeKind, item, msg string) {
	r.notices = append(r.notices, core.Notice{Kind: kind, Item: item, Message: msg})
}

func (h *Handler) process(ctx context.Context, items []core.ClipboardItem) (core.NormalizedSubmission, []core.Notice) {
	r := &run{}
	for _, item := range items {
		switch KindOf(item) {
		case KindImage:
			att, ok := imageOf(item)
			if !ok {
				r.notice(core.NoticeUnsupportedType, itemName(item), "clipboard image has no data")
				continue
			}
			if fitted, _ := h.fit(r, att); fitted != nil {
				r.atts = append(r.atts, *fitted)
			}
		case KindPlainText:
			if t := strings.TrimSpace(item.Content); t != "" {
				r.texts = append(r.texts, item.Content)
			}
		case KindMarkup:
			h.markup(ctx, r, item.Content)
		default:
			if item.AsAttachment != nil {
				r.atts = append(r.atts, *item.AsAttachment)
				continue
			}
			r.notice(core.NoticeUnsupportedType, itemName(item), fmt.Sprintf("%s is not supported", item.MIMEType))
		}
	}
	return core.NormalizedSubmission{Text: strings.Join(r.texts, "\n\n"), Attachments: r.atts}, r.notices
}

// fit runs att through the re-encoder and reports failures as notices.
// A nil result comes with the reason shown to the user.
func (h *Handler) fit(r *run, att core.Attachment) (*core.Attachment, string) {
	out, err := h.reencoder.Reencode(att, h.maxBytes, h.maxDim)
	if err != nil {
		h.log.Warn().Err(err).Str("name", att.Name()).Msg("re-encoding failed")
		r.notice(core.NoticeUnsupportedType, att.Name(), err.Error())
		return nil, "could not be decoded"
	}
	if out == nil {
		reason := fmt.Sprintf("could not fit within %d bytes", h.maxBytes)
		r.notice(core.NoticeBudgetExceeded, att.Name(), reason)
		return nil, reason
	}
	return out, ""
}

func (h *Handler) markup(ctx context.Context, r *run, fragment string) {
	var (
		selected []normalize.Selected
		svgs     []core.Attachment
	)
	for _, m := range h.media.ExtractMedia(ctx, fragment) {
		switch {
		case media.IsEmbeddedReference(m.SourceReference):
			// The normalizer decodes data-URL images left in the Markdown.
		case m.SourceReference == core.InlineSVGReference:
			if size.Fits(size.Of(int64(m.Artifact.Len())), h.maxBytes) {
				svgs = append(svgs, m.Artifact)
			} else {
				r.notice(core.NoticeBudgetExceeded, m.Artifact.Name(), fmt.Sprintf("larger than %d bytes", h.maxBytes))
			}
		case m.Failed():
			r.notice(core.NoticeRetrievalFailed, m.SourceReference, m.RetrievalError)
			selected = append(selected, normalize.Selected{Media: m})
		default:
			fitted, reason := h.fit(r, m.Artifact)
			if fitted == nil {
				selected = append(selected, normalize.Selected{Media: omitted(m, reason)})
				continue
			}
			m.Artifact = *fitted
			selected = append(selected, normalize.Selected{Media: m, Index: len(r.atts)})
			r.atts = append(r.atts, *fitted)
		}
	}

	res := h.normalizer.Normalize(fragment, normalize.Options{
		ImageOffset: len(r.atts),
		Images:      selected,
		Fit:         func(att core.Attachment) (*core.Attachment, string) { return h.fit(r, att) },
	})
	r.notices = append(r.notices, res.Notices...)
	r.atts = append(r.atts, res.Inline...)
	r.atts = append(r.atts, svgs...)
	if res.Markdown != "" {
		r.texts = append(r.texts, res.Markdown)
	}
}

// omitted turns an image that could not be fitted into a failed entry so
// the normalizer replaces its reference with visible text.
func omitted(m core.ExtractedMedia, reason string) core.ExtractedMedia {
	text := fmt.Sprintf("[Image omitted: %s (%s)]", m.SourceReference, reason)
	m.Artifact = core.NewAttachment(m.Artifact.Name()+".txt", "text/plain", []byte(text))
	m.RetrievalError = reason
	return m
}

func imageOf(item core.ClipboardItem) (core.Attachment, bool) {
	if item.AsAttachment != nil {
		return *item.AsAttachment, true
	}
	if media.IsDataURL(item.Content) {
		d, err := media.ParseDataURL(item.Content)
		if err == nil && len(d.Data) > 0 {
			return core.NewAttachment("pasted-image"+media.ExtensionFor(d.MIMEType), d.MIMEType, d.Data), true
		}
	}
	return core.Attachment{}, false
}

func itemName(item core.ClipboardItem) string {
	if item.AsAttachment != nil && item.AsAttachment.Name() != "" {
		return item.AsAttachment.Name()
	}
	if item.ID != "" {
		return item.ID
	}
	return item.MIMEType
}
