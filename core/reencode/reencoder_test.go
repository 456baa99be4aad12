package reencode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/size"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder produces payloads whose length is chosen by sizeFor.
type fakeEncoder struct {
	sizeFor  func(core.CompressionAttempt, image.Rectangle) int
	attempts []core.CompressionAttempt
}

func (f *fakeEncoder) Encode(img image.Image, a core.CompressionAttempt) ([]byte, error) {
	f.attempts = append(f.attempts, a)
	return make([]byte, f.sizeFor(a, img.Bounds())), nil
}

func (f *fakeEncoder) MIMEType() string { return "image/jpeg" }

func noisePNG(t *testing.T, w, h int) core.Attachment {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return core.NewAttachment("noise.png", "image/png", buf.Bytes())
}

func TestReencode_FitCheck(t *testing.T) {
	t.Run("Should return the input unchanged when it already fits", func(t *testing.T) {
		enc := &fakeEncoder{sizeFor: func(core.CompressionAttempt, image.Rectangle) int { return 1 }}
		r := New(WithEncoder(enc))
		src := noisePNG(t, 16, 16)

		out, err := r.Reencode(src, size.TransportSize(int64(src.Len())), 0)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, src.Bytes(), out.Bytes())
		assert.Equal(t, "noise.png", out.Name())
		assert.Empty(t, enc.attempts)
	})

	t.Run("Should re-encode a fitting image that exceeds the dimension cap", func(t *testing.T) {
		r := New()
		src := noisePNG(t, 64, 32)

		out, err := r.Reencode(src, 1<<30, 16)
		require.NoError(t, err)
		require.NotNil(t, out)
		cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Bytes()))
		require.NoError(t, err)
		assert.LessOrEqual(t, cfg.Width, 16)
		assert.LessOrEqual(t, cfg.Height, 16)
		assert.Equal(t, "noise.jpg", out.Name())
		assert.Equal(t, "image/jpeg", out.MIMEType())
	})
}

func TestReencode_SearchOrder(t *testing.T) {
	t.Run("Should try four descending qualities then five decaying scales", func(t *testing.T) {
		enc := &fakeEncoder{sizeFor: func(core.CompressionAttempt, image.Rectangle) int { return 10_000 }}
		r := New(WithEncoder(enc))

		out, err := r.Reencode(noisePNG(t, 32, 32), 100, 0)
		require.NoError(t, err)
		assert.Nil(t, out)

		require.Len(t, enc.attempts, 9)
		for i, q := range []float64{1.0, 0.9, 0.8, 0.7} {
			assert.Equal(t, q, enc.attempts[i].QualityFactor)
			assert.Equal(t, 1.0, enc.attempts[i].ScaleFactor)
		}
		for i, s := range []float64{0.9, 0.72, 0.576, 0.4608, 0.36864} {
			a := enc.attempts[4+i]
			assert.Equal(t, 0.8, a.QualityFactor)
			assert.InDelta(t, s, a.ScaleFactor, 1e-9)
		}
	})

	t.Run("Should stop in the compression phase when quality alone suffices", func(t *testing.T) {
		enc := &fakeEncoder{sizeFor: func(a core.CompressionAttempt, _ image.Rectangle) int {
			return int(a.QualityFactor * 1000)
		}}
		var seen []core.SizeMeasurement
		r := New(WithEncoder(enc), WithTrace(func(_ core.CompressionAttempt, m core.SizeMeasurement) {
			seen = append(seen, m)
		}))

		out, err := r.Reencode(noisePNG(t, 32, 32), size.TransportSize(800), 0)
		require.NoError(t, err)
		require.NotNil(t, out)
		require.Len(t, enc.attempts, 3)
		assert.Equal(t, 0.8, enc.attempts[2].QualityFactor)
		assert.Equal(t, 1.0, enc.attempts[2].ScaleFactor)
		assert.Len(t, seen, 3)
		assert.Equal(t, 800, out.Len())
	})

	t.Run("Should fall through to scaling when no quality fits", func(t *testing.T) {
		enc := &fakeEncoder{sizeFor: func(_ core.CompressionAttempt, b image.Rectangle) int {
			return b.Dx() * b.Dy()
		}}
		r := New(WithEncoder(enc))

		// 100x100 at scale 0.72 is 72x72 = 5184 bytes.
		out, err := r.Reencode(noisePNG(t, 100, 100), size.TransportSize(6000), 0)
		require.NoError(t, err)
		require.NotNil(t, out)
		last := enc.attempts[len(enc.attempts)-1]
		assert.InDelta(t, 0.72, last.ScaleFactor, 1e-9)
		assert.Len(t, enc.attempts, 6)
	})

	t.Run("Should honor a custom policy", func(t *testing.T) {
		enc := &fakeEncoder{sizeFor: func(core.CompressionAttempt, image.Rectangle) int { return 10_000 }}
		p := Policy{Qualities: []float64{0.5}, ScaleStart: 0.5, ScaleQuality: 0.5, ScaleDecay: 0.5, ScaleAttempts: 2}
		r := New(WithEncoder(enc), WithPolicy(p))

		out, err := r.Reencode(noisePNG(t, 8, 8), 10, 0)
		require.NoError(t, err)
		assert.Nil(t, out)
		assert.Len(t, enc.attempts, 3)
	})
}

// noisyJPEG is a photo-like image: a gradient with per-pixel noise, stored
// at maximum quality.
func noisyJPEG(t *testing.T, w, h int) core.Attachment {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := rng.Intn(64)
			img.Set(x, y, color.NRGBA{uint8((x*255/w + n) % 256), uint8((y*255/h + n) % 256), uint8((x + y + n) % 256), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)))
	return core.NewAttachment("photo.jpg", "image/jpeg", buf.Bytes())
}

func TestReencode_CompressionPhase(t *testing.T) {
	t.Run("Should fit a large photo without scaling it", func(t *testing.T) {
		src := noisyJPEG(t, 600, 600)

		decoded, err := imaging.Decode(bytes.NewReader(src.Bytes()), imaging.AutoOrientation(true))
		require.NoError(t, err)
		lowest, err := JPEGEncoder{}.Encode(decoded, core.CompressionAttempt{QualityFactor: 0.7, ScaleFactor: 1})
		require.NoError(t, err)
		budget := size.TransportSize(int64(len(lowest)))
		require.Greater(t, size.TransportSize(int64(src.Len())), budget)

		var attempts []core.CompressionAttempt
		r := New(WithTrace(func(a core.CompressionAttempt, _ core.SizeMeasurement) {
			attempts = append(attempts, a)
		}))
		out, err := r.Reencode(src, budget, 0)
		require.NoError(t, err)
		require.NotNil(t, out)

		require.NotEmpty(t, attempts)
		assert.LessOrEqual(t, len(attempts), 4)
		for _, a := range attempts {
			assert.Equal(t, 1.0, a.ScaleFactor)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 600, cfg.Width)
		assert.Equal(t, 600, cfg.Height)
		assert.LessOrEqual(t, size.TransportSize(int64(out.Len())), budget)
	})
}

func TestReencode_BudgetGuarantee(t *testing.T) {
	src := noisePNG(t, 128, 128)
	r := New()
	for _, budget := range []int64{200, 4_000, 12_000, 30_000, 60_000} {
		out, err := r.Reencode(src, budget, 0)
		require.NoError(t, err)
		if out == nil {
			continue
		}
		m, err := size.Measure(*out)
		require.NoError(t, err)
		assert.LessOrEqual(t, m.TransportByteSize, budget, "budget %d", budget)
	}

	t.Run("Should report exhaustion as nil without error", func(t *testing.T) {
		out, err := r.Reencode(src, 100, 0)
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}

func TestReencode_Undecodable(t *testing.T) {
	t.Run("Should flag non-image input as unsupported", func(t *testing.T) {
		r := New()
		_, err := r.Reencode(core.NewAttachment("x.png", "image/png", []byte("not an image at all")), 4, 0)
		require.ErrorIs(t, err, core.ErrUnsupportedType)
	})
}

func TestPolicy(t *testing.T) {
	t.Run("Should validate the default policy", func(t *testing.T) {
		require.NoError(t, DefaultPolicy().Validate())
	})

	t.Run("Should reject out-of-range and unordered factors", func(t *testing.T) {
		p := DefaultPolicy()
		p.Qualities = []float64{0.7, 0.9}
		assert.Error(t, p.Validate())

		p = DefaultPolicy()
		p.ScaleDecay = 1.5
		assert.Error(t, p.Validate())

		p = DefaultPolicy()
		p.Qualities = []float64{0}
		assert.Error(t, p.Validate())
	})
}
