package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Retries(t *testing.T) {
	b := New(3, time.Millisecond, time.Millisecond*2)
	for i := 0; i != 3; i++ {
		assert.True(t, b.Wait(context.Background()))
	}
	assert.False(t, b.Wait(context.Background()))
	assert.Equal(t, 3, b.Attempts())
}

func TestBackoff_MaxBackoff(t *testing.T) {
	b := New(0, time.Millisecond, time.Millisecond*4)
	for i := 0; i != 10; i++ {
		b.Wait(context.Background())
	}
	// Includes up to 10% jitter.
	assert.LessOrEqual(t, b.lastBackoff, time.Duration(float64(time.Millisecond*4)*1.1))
}

func TestBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(0, time.Minute, time.Minute)
	assert.False(t, b.Wait(ctx))
}

func TestBackoff_Reset(t *testing.T) {
	b := New(2, time.Millisecond, time.Millisecond*2)
	assert.True(t, b.Wait(context.Background()))
	assert.True(t, b.Wait(context.Background()))
	assert.False(t, b.Wait(context.Background()))

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.True(t, b.Wait(context.Background()))
}

func TestRetry(t *testing.T) {
	t.Run("succeeds", func(t *testing.T) {
		calls := 0
		var failures []int
		err := Retry(
			context.Background(),
			New(5, time.Millisecond, time.Millisecond),
			func(_ context.Context) error {
				calls++
				if calls < 3 {
					return errors.New("unavailable")
				}
				return nil
			},
			func(attempt int, _ error) {
				failures = append(failures, attempt)
			},
		)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{0, 1}, failures)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(
			context.Background(),
			New(2, time.Millisecond, time.Millisecond),
			func(_ context.Context) error {
				calls++
				return errors.New("unavailable")
			},
			nil,
		)
		assert.ErrorContains(t, err, "unavailable")
		// The first attempt plus two retries.
		assert.Equal(t, 3, calls)
	})
}
