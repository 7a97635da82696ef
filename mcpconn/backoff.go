package mcpconn

import (
	"context"
	"time"
)

// MaxDelay bounds a single backoff wait.
const MaxDelay = 5 * time.Minute

// Backoff is the connect retry policy: MaxAttempts attempts, waiting
// Base × 2^attempt, at most MaxDelay, after each failed attempt but the last.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// Delay returns the wait after the given zero-based failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < attempt && d < MaxDelay; i++ {
		d *= 2
	}
	return min(d, MaxDelay)
}

// Timer waits for a duration. Wait returns ctx.Err() if ctx ends first.
type Timer interface {
	Wait(ctx context.Context, d time.Duration) error
}

type realTimer struct{}

func (realTimer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
