// Package clock abstracts the time operations used for settle intervals and
// polling so tests can drive them deterministically. Production code injects
// Real(); tests inject NewFake().
package clock

import (
	"context"
	"time"
)

// Clock is the subset of the time package the supervisor and monitor use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Ticks that the consumer misses are dropped.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Sleep blocks for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
