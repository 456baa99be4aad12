package reencode

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/gaurav-prasanna/promptpipe/core"
)

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// JPEGEncoder encodes images as JPEG, flattening transparency on white.
type JPEGEncoder struct{}

// Encode writes img at the attempt's quality. Scaling is the caller's job.
func (JPEGEncoder) Encode(img image.Image, attempt core.CompressionAttempt) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	b := img.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)
	if err := imaging.Encode(buf, flat, imaging.JPEG, imaging.JPEGQuality(jpegQuality(attempt.QualityFactor))); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// MIMEType returns image/jpeg.
func (JPEGEncoder) MIMEType() string { return "image/jpeg" }

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
