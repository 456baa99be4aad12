package reencode

import (
	"fmt"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Policy is the fixed, reproducible search order of the re-encoder.
// Qualities are tried at full scale first; the scale phase then runs
// ScaleAttempts times at ScaleQuality, starting at ScaleStart and
// multiplying by ScaleDecay after each miss.
type Policy struct {
	Qualities     []float64 `yaml:"qualities" json:"qualities"`
	ScaleStart    float64   `yaml:"scaleStart" json:"scaleStart"`
	ScaleQuality  float64   `yaml:"scaleQuality" json:"scaleQuality"`
	ScaleDecay    float64   `yaml:"scaleDecay" json:"scaleDecay"`
	ScaleAttempts int       `yaml:"scaleAttempts" json:"scaleAttempts"`
}

// DefaultPolicy returns the empirically tuned default search.
func DefaultPolicy() Policy {
	return Policy{
		Qualities:     []float64{1.0, 0.9, 0.8, 0.7},
		ScaleStart:    0.9,
		ScaleQuality:  0.8,
		ScaleDecay:    0.8,
		ScaleAttempts: 5,
	}
}

// Validate checks that every factor lies in (0,1].
func (p Policy) Validate() error {
	if len(p.Qualities) == 0 && p.ScaleAttempts <= 0 {
		return fmt.Errorf("policy has no attempts")
	}
	for i, q := range p.Qualities {
		if !inUnit(q) {
			return fmt.Errorf("quality %d out of range (0,1]: %v", i, q)
		}
		if i > 0 && q >= p.Qualities[i-1] {
			return fmt.Errorf("qualities must be strictly descending: %v", p.Qualities)
		}
	}
	if p.ScaleAttempts < 0 {
		return fmt.Errorf("scale attempts must not be negative: %d", p.ScaleAttempts)
	}
	if p.ScaleAttempts > 0 {
		for name, v := range map[string]float64{
			"scale start":   p.ScaleStart,
			"scale quality": p.ScaleQuality,
			"scale decay":   p.ScaleDecay,
		} {
			if !inUnit(v) {
				return fmt.Errorf("%s out of range (0,1]: %v", name, v)
			}
		}
	}
	return nil
}

// Attempts lists every compression attempt in the order they are tried.
func (p Policy) Attempts() []core.CompressionAttempt {
	out := make([]core.CompressionAttempt, 0, len(p.Qualities)+p.ScaleAttempts)
	for _, q := range p.Qualities {
		out = append(out, core.CompressionAttempt{QualityFactor: q, ScaleFactor: 1.0})
	}
	scale := p.ScaleStart
	for i := 0; i < p.ScaleAttempts; i++ {
		out = append(out, core.CompressionAttempt{QualityFactor: p.ScaleQuality, ScaleFactor: scale})
		scale *= p.ScaleDecay
	}
	return out
}

func inUnit(v float64) bool { return v > 0 && v <= 1 }
