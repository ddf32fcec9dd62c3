// Package clock abstracts time so crawl pacing and retry backoff are
// testable without real sleeps.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and context-aware sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// NewSystem creates a SystemClock.
func NewSystem() *SystemClock {
	return &SystemClock{}
}

// Now returns the current time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until the context finishes, whichever comes
// first.
func (c *SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
