package browser

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay is a randomized pacing interval. Pacing exists to avoid
// bot-detection heuristics, not for correctness: the zero value sleeps
// nothing, which is what tests use.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Sleep blocks for a random duration within [Min, Max], or returns the
// context error when ctx is done first.
func (d Delay) Sleep(ctx context.Context) error {
	dur := d.pick()
	if dur <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}

func (d Delay) pick() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rand.N(d.Max-d.Min)
}
