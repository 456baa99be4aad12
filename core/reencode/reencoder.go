// Package reencode fits images under a transport byte budget and an optional
// pixel-dimension ceiling. Compression-only attempts come first because they
// preserve resolution; scale reduction is the fallback.
package reencode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/size"
)

// ImageReencoder implements core.Reencoder.
type ImageReencoder struct {
	policy  Policy
	encoder core.Encoder
	log     zerolog.Logger
	// trace, when set, observes every attempt and its measured size.
	trace func(core.CompressionAttempt, core.SizeMeasurement)
}

// Option configures an ImageReencoder.
type Option func(*ImageReencoder)

// WithPolicy replaces the default search policy.
func WithPolicy(p Policy) Option { return func(r *ImageReencoder) { r.policy = p } }

// WithEncoder replaces the JPEG encoder.
func WithEncoder(e core.Encoder) Option { return func(r *ImageReencoder) { r.encoder = e } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(r *ImageReencoder) { r.log = l } }

// WithTrace registers an observer for each attempt.
func WithTrace(fn func(core.CompressionAttempt, core.SizeMeasurement)) Option {
	return func(r *ImageReencoder) { r.trace = fn }
}

// New creates an ImageReencoder with the default policy and JPEG output.
func New(opts ...Option) *ImageReencoder {
	r := &ImageReencoder{
		policy:  DefaultPolicy(),
		encoder: JPEGEncoder{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reencode returns img unchanged when it already fits, a re-encoded
// attachment when some attempt fits, or nil when the policy is exhausted.
// Errors are reserved for unreadable or undecodable input.
func (r *ImageReencoder) Reencode(img core.Attachment, maxBytes int64, maxDimensionPx int) (*core.Attachment, error) {
	m, err := size.Measure(img)
	if err != nil {
		return nil, err
	}
	data := img.Bytes()

	withinDims := true
	if maxDimensionPx > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("reading dimensions of %s: %v: %w", img.Name(), err, core.ErrUnsupportedType)
		}
		withinDims = longSide(cfg.Width, cfg.Height) <= maxDimensionPx
	}
	if size.Fits(m, maxBytes) && withinDims {
		return &img, nil
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", img.Name(), err, core.ErrUnsupportedType)
	}

	b := decoded.Bounds()
	base := 1.0
	if maxDimensionPx > 0 {
		if ls := longSide(b.Dx(), b.Dy()); ls > maxDimensionPx {
			base = float64(maxDimensionPx) / float64(ls)
		}
	}

	for _, attempt := range r.policy.Attempts() {
		candidate := scaled(decoded, base*attempt.ScaleFactor)
		out, err := r.encoder.Encode(candidate, attempt)
		if err != nil {
			return nil, fmt.Errorf("encoding %s at quality %.2f scale %.3f: %w",
				img.Name(), attempt.QualityFactor, attempt.ScaleFactor, err)
		}
		got := size.Of(int64(len(out)))
		if r.trace != nil {
			r.trace(attempt, got)
		}
		r.log.Debug().
			Str("name", img.Name()).
			Float64("quality", attempt.QualityFactor).
			Float64("scale", attempt.ScaleFactor).
			Int64("transport_bytes", got.TransportByteSize).
			Msg("re-encode attempt")
		if size.Fits(got, maxBytes) {
			res := core.NewAttachment(renameFor(img.Name(), r.encoder.MIMEType()), r.encoder.MIMEType(), out)
			return &res, nil
		}
	}

	r.log.Warn().
		Str("name", img.Name()).
		Int64("max_bytes", maxBytes).
		Int64("transport_bytes", m.TransportByteSize).
		Msg("image does not fit budget after all attempts")
	return nil, nil
}

func scaled(img image.Image, s float64) image.Image {
	if s >= 1 {
		return img
	}
	b := img.Bounds()
	w := int(math.Max(1, math.Round(float64(b.Dx())*s)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*s)))
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func longSide(w, h int) int {
	if w > h {
		return w
	}
	return h
}

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// renameFor swaps the extension of name for the one matching mimeType.
func renameFor(name, mimeType string) string {
	ext, ok := extByMIME[mimeType]
	if !ok {
		return name
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "image"
	}
	return base + ext
}
