package utils

import (
	"context"
	"time"
)

// Pacer sleeps a fixed interval between consecutive calls to Wait.
// The first call never blocks. It is meant for a single sequential caller.
type Pacer struct {
	interval time.Duration
	calls    int
}

// NewPacer creates a Pacer with the given gap between requests.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait returns immediately the first time and sleeps the full interval on
// every later call. It returns ctx.Err() if ctx ends while sleeping.
func (p *Pacer) Wait(ctx context.Context) error {
	p.calls++
	if p.calls == 1 {
		return ctx.Err()
	}
	return sleepCtx(ctx, p.interval)
}

// Sleeps reports how many times Wait has slept so far.
func (p *Pacer) Sleeps() int {
	if p.calls == 0 {
		return 0
	}
	return p.calls - 1
}
