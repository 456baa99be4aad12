// Package media implements the MediaExtractor interface.
// It scans a markup fragment in document order for raster images, inline
// SVG and CSS background images, and resolves each to a binary artifact.
// Every detected reference yields an entry: failed retrievals become
// placeholder text artifacts carrying the reason.
package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Extractor resolves images referenced by markup.
type Extractor struct {
	fetcher core.Fetcher
	base    *url.URL
	log     zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBaseURL resolves relative references against base.
func WithBaseURL(base string) Option {
	return func(e *Extractor) {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			e.base = u
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Extractor) { e.log = l } }

// New creates an Extractor that retrieves network images with fetcher.
func New(fetcher core.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{fetcher: fetcher, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbeddedReference is the synthetic reference of the n-th inline-encoded image.
func EmbeddedReference(n int) string {
	return fmt.Sprintf("[embedded-image-%d]", n)
}

// IsEmbeddedReference reports whether ref was produced by EmbeddedReference.
func IsEmbeddedReference(ref string) bool {
	return strings.HasPrefix(ref, "[embedded-image-") && strings.HasSuffix(ref, "]")
}

// extraction tracks per-call counters; nothing is shared between calls.
type extraction struct {
	out      []core.ExtractedMedia
	embedded int
	svgs     int
}

// ExtractMedia returns one entry per image reference, in document order.
func (e *Extractor) ExtractMedia(ctx context.Context, markup string) []core.ExtractedMedia {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.log.Warn().Err(err).Msg("parsing fragment for media")
		return nil
	}

	x := &extraction{}
	doc.Find("body").Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("svg").Length() > 0 {
			return
		}
		switch goquery.NodeName(s) {
		case "img":
			src := strings.TrimSpace(s.AttrOr("src", ""))
			if src == "" {
				src = strings.TrimSpace(s.AttrOr("data-src", ""))
			}
			if src == "" {
				return
			}
			e.resolve(ctx, x, src, s.AttrOr("alt", ""))
		case "svg":
			e.inlineSVG(x, s)
		default:
			if ref := backgroundImage(s.AttrOr("style", "")); ref != "" {
				e.resolve(ctx, x, ref, s.AttrOr("title", ""))
			}
		}
	})
	return x.out
}

func (e *Extractor) resolve(ctx context.Context, x *extraction, ref, alt string) {
	if IsDataURL(ref) {
		x.embedded++
		e.decodeEmbedded(x, ref, alt)
		return
	}
	target := ResolveReference(ref, e.base)
	if target == "" {
		x.out = append(x.out, unavailable(ref, alt, len(x.out)+1, "unresolvable reference"))
		return
	}
	e.retrieve(ctx, x, target, alt)
}

func (e *Extractor) decodeEmbedded(x *extraction, ref, alt string) {
	name := EmbeddedReference(x.embedded)
	d, err := ParseDataURL(ref)
	if err != nil {
		e.log.Warn().Err(err).Str("ref", name).Msg("decoding embedded image")
		x.out = append(x.out, unavailable(name, alt, len(x.out)+1, err.Error()))
		return
	}
	mt := d.MIMEType
	if !strings.HasPrefix(mt, "image/") {
		mt = mimetype.Detect(d.Data).String()
	}
	x.out = append(x.out, core.ExtractedMedia{
		Artifact:        core.NewAttachment(fmt.Sprintf("embedded-image-%d%s", x.embedded, ExtensionFor(mt)), mt, d.Data),
		SourceReference: name,
		Alt:             alt,
	})
}

func (e *Extractor) retrieve(ctx context.Context, x *extraction, target, alt string) {
	if e.fetcher == nil {
		x.out = append(x.out, unavailable(target, alt, len(x.out)+1, "no fetcher configured"))
		return
	}
	res, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		e.log.Warn().Err(err).Str("url", target).Msg("image retrieval failed")
		x.out = append(x.out, unavailable(target, alt, len(x.out)+1, err.Error()))
		return
	}
	mt := res.ContentType
	if !strings.HasPrefix(mt, "image/") {
		if guess := MIMEFromPath(target); guess != "" && mimetype.Detect(res.Body).Is(guess) {
			mt = guess
		} else {
			reason := fmt.Sprintf("response is %s, not an image", mt)
			x.out = append(x.out, unavailable(target, alt, len(x.out)+1, reason))
			return
		}
	}
	if base, _, ok := strings.Cut(mt, ";"); ok {
		mt = strings.TrimSpace(base)
	}
	x.out = append(x.out, core.ExtractedMedia{
		Artifact:        core.NewAttachment(NameFor(target, mt, len(x.out)+1), mt, res.Body),
		SourceReference: target,
		Alt:             alt,
	})
}

func (e *Extractor) inlineSVG(x *extraction, s *goquery.Selection) {
	markup, err := goquery.OuterHtml(s)
	if err != nil {
		x.out = append(x.out, unavailable(core.InlineSVGReference, "", len(x.out)+1, err.Error()))
		return
	}
	x.svgs++
	x.out = append(x.out, core.ExtractedMedia{
		Artifact:        core.NewAttachment(fmt.Sprintf("inline-svg-%d.svg", x.svgs), "image/svg+xml", []byte(markup)),
		SourceReference: core.InlineSVGReference,
		Alt:             s.AttrOr("aria-label", ""),
	})
}

// unavailable builds the placeholder entry for a reference that could not
// be turned into an image.
func unavailable(ref, alt string, n int, reason string) core.ExtractedMedia {
	text := fmt.Sprintf("[Image unavailable: %s (%s)]", ref, reason)
	return core.ExtractedMedia{
		Artifact:        core.NewAttachment(fmt.Sprintf("unavailable-image-%d.txt", n), "text/plain", []byte(text)),
		SourceReference: ref,
		Alt:             alt,
		RetrievalError:  reason,
	}
}

// backgroundImage returns the url(...) of an inline background style.
func backgroundImage(style string) string {
	if !strings.Contains(strings.ToLower(style), "background") {
		return ""
	}
	decls, err := StyleDeclarations(style)
	if err != nil {
		return ""
	}
	for _, d := range decls {
		switch strings.ToLower(strings.TrimSpace(d.Property)) {
		case "background-image", "background":
			if ref := CSSImageURL(d.Value); ref != "" {
				return ref
			}
		}
	}
	return ""
}
