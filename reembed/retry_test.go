package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEmbed fails the first failures calls with a transient error.
func flakyEmbed(failures int) (func() error, *int) {
	calls := 0
	return func() error {
		calls++
		if calls <= failures {
			return fmt.Errorf("embedding service unavailable (call %d)", calls)
		}
		return nil
	}, &calls
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers from transient failures", func(t *testing.T) {
		embed, calls := flakyEmbed(2)
		require.NoError(t, RetryWithBackoff(ctx, embed, 3, time.Millisecond))
		assert.Equal(t, 3, *calls)
	})

	t.Run("returns the last failure", func(t *testing.T) {
		embed, calls := flakyEmbed(10)
		err := RetryWithBackoff(ctx, embed, 3, time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "call 3")
		assert.Equal(t, 3, *calls)
	})

	t.Run("rejects non-positive attempts", func(t *testing.T) {
		for _, attempts := range []int{0, -1} {
			embed, calls := flakyEmbed(0)
			err := RetryWithBackoff(ctx, embed, attempts, time.Millisecond)
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			assert.Zero(t, *calls)
		}
	})

	t.Run("backoff doubles between attempts", func(t *testing.T) {
		embed, _ := flakyEmbed(10)
		start := time.Now()
		_ = RetryWithBackoff(ctx, embed, 3, 5*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	})
}

func TestRetryWithBackoff_Permanent(t *testing.T) {
	calls := 0
	mismatch := fmt.Errorf("%w: expected 4, got 3", ErrEmbeddingCountMismatch)
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return Permanent(mismatch)
	}, 5, time.Hour)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
	var permanent *permanentError
	assert.False(t, errors.As(err, &permanent), "marker is stripped")
	assert.NoError(t, Permanent(nil))
}

func TestRetryWithBackoff_Context(t *testing.T) {
	t.Run("cancelled before the first call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		embed, calls := flakyEmbed(0)
		assert.ErrorIs(t, RetryWithBackoff(ctx, embed, 3, time.Millisecond), context.Canceled)
		assert.Zero(t, *calls)
	})

	t.Run("cancelled while backing off", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		calls := 0
		start := time.Now()
		err := RetryWithBackoff(ctx, func() error {
			calls++
			cancel()
			return errors.New("embedding service unavailable")
		}, 3, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), time.Minute)
	})

	t.Run("request deadline is not retried", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), func() error {
			calls++
			return fmt.Errorf("embedding request: %w", context.DeadlineExceeded)
		}, 5, time.Hour)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})
}
