// Package backoff retries operations with exponential backoff and jitter.
package backoff

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with jitter.
type Backoff struct {
	// retries is the maximum number of attempts.
	retries    int
	minBackoff time.Duration
	maxBackoff time.Duration

	// attempts is the number of attempts so far.
	attempts    int
	lastBackoff time.Duration
}

// New creates a new backoff.
//
// Set 'retries' to zero to retry forever.
func New(retries int, minBackoff time.Duration, maxBackoff time.Duration) *Backoff {
	return &Backoff{
		retries:    retries,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Wait blocks until the next retry. Returns false if the number of retries has
// been reached or the context is cancelled, so the caller should stop.
func (b *Backoff) Wait(ctx context.Context) bool {
	if b.retries != 0 && b.attempts >= b.retries {
		return false
	}
	b.attempts++

	b.lastBackoff = b.nextWait()

	t := time.NewTimer(b.lastBackoff)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Attempts returns the number of retries so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset clears the attempts so the next wait uses the minimum backoff.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.lastBackoff = 0
}

func (b *Backoff) nextWait() time.Duration {
	backoff := b.lastBackoff * 2
	if backoff == 0 {
		backoff = b.minBackoff
	}
	backoff = min(backoff, b.maxBackoff)

	jitterMultipler := 1.0 + (rand.Float64() * 0.1)
	return time.Duration(float64(backoff) * jitterMultipler)
}

// Retry calls f until it succeeds, waiting for the backoff between failed
// attempts. onError is called with each failure if not nil.
//
// Returns the last error from f if the retries are exhausted or the context
// is cancelled.
func Retry(
	ctx context.Context,
	b *Backoff,
	f func(ctx context.Context) error,
	onError func(attempt int, err error),
) error {
	for {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if onError != nil {
			onError(b.Attempts(), err)
		}
		if !b.Wait(ctx) {
			return fmt.Errorf("retries exhausted: %w", err)
		}
	}
}
