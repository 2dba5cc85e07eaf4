package ingest

import (
	"context"
	"time"
)

// Backoff implements capped exponential retry spacing: base doubling per
// attempt up to max, surrendering after maxAttempts.
type Backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
}

// NewBackoff builds a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration, maxAttempts int) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	return &Backoff{base: base, max: max, maxAttempts: maxAttempts}
}

// Next sleeps for the current delay and advances the attempt counter. It
// returns false when attempts are exhausted or ctx is cancelled.
func (b *Backoff) Next(ctx context.Context) bool {
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		return false
	}
	delay := b.base << b.attempt
	if delay > b.max {
		delay = b.max
	}
	b.attempt++

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempts is the number of Next calls since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}
