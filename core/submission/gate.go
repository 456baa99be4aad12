package submission

import (
	"context"
	"sync"
	"time"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// DefaultDebounce is the window after a submission during which incoming
// defaults are ignored.
const DefaultDebounce = time.Second

// DefaultsGate decides whether host-supplied defaults may replace the
// current input. Defaults apply until the user interacts, and never within
// Window of the last submission.
type DefaultsGate struct {
	Window time.Duration

	mu         sync.Mutex
	interacted bool
	lastSubmit time.Time
}

// NewDefaultsGate creates a gate with the given debounce window.
func NewDefaultsGate(window time.Duration) *DefaultsGate {
	return &DefaultsGate{Window: window}
}

// MarkInteracted records that the user edited the input.
func (g *DefaultsGate) MarkInteracted() {
	g.mu.Lock()
	g.interacted = true
	g.mu.Unlock()
}

// MarkSubmitted records a submission at now and resets the interaction flag.
func (g *DefaultsGate) MarkSubmitted(now time.Time) {
	g.mu.Lock()
	g.lastSubmit = now
	g.interacted = false
	g.mu.Unlock()
}

// Interacted reports whether the user edited the input since the last submission.
func (g *DefaultsGate) Interacted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interacted
}

// ShouldApply reports whether defaults arriving at now may be applied.
func (g *DefaultsGate) ShouldApply(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.interacted {
		return false
	}
	return g.lastSubmit.IsZero() || now.Sub(g.lastSubmit) >= g.Window
}

// Apply loads p when defaults may be applied at now. The boolean reports
// whether they were.
func (g *DefaultsGate) Apply(ctx context.Context, now time.Time, p DefaultPayload, fetcher core.Fetcher) (core.NormalizedSubmission, []core.Notice, bool) {
	if !g.ShouldApply(now) {
		return core.NormalizedSubmission{}, nil, false
	}
	sub, notices := LoadDefaults(ctx, p, fetcher)
	return sub, notices, true
}
