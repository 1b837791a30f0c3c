package common

import (
	"context"
	"log"
	"sync"
)

// Progress is polled by the pipeline for cancellation and told how far
// along a call is.
type Progress interface {
	IsCancelled() bool
	// ProgressTo reports completion as a fraction in [0, 1].
	ProgressTo(fraction float64)
}

// NoProgress never cancels and ignores progress.
var NoProgress Progress = noProgress{}

type noProgress struct{}

func (noProgress) IsCancelled() bool  { return false }
func (noProgress) ProgressTo(float64) {}

// ContextProgress cancels once ctx is done.
func ContextProgress(ctx context.Context) Progress {
	return &ctxProgress{ctx: ctx}
}

type ctxProgress struct {
	ctx context.Context
}

func (p *ctxProgress) IsCancelled() bool  { return p.ctx.Err() != nil }
func (p *ctxProgress) ProgressTo(float64) {}

// Cause returns the context error behind a cancellation.
func (p *ctxProgress) Cause() error { return p.ctx.Err() }

// CancelCause returns the error that explains why p reports cancellation,
// or nil when p has no such notion.
func CancelCause(p Progress) error {
	if c, ok := p.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return nil
}

// LogProgress wraps next and logs each whole percent reached at debug level.
func LogProgress(label string, next Progress) Progress {
	if next == nil {
		next = NoProgress
	}
	return &logProgress{label: label, next: next, last: -1}
}

type logProgress struct {
	label string
	next  Progress
	mu    sync.Mutex
	last  int
}

func (p *logProgress) IsCancelled() bool { return p.next.IsCancelled() }

func (p *logProgress) ProgressTo(fraction float64) {
	p.next.ProgressTo(fraction)
	pct := int(fraction * 100)
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct > p.last {
		p.last = pct
		log.Printf("[DEBUG] %s %d%%", p.label, pct)
	}
}

func (p *logProgress) Cause() error { return CancelCause(p.next) }
