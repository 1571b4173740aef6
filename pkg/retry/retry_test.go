package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int, retryable ...error) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond},
		Logger:          logger.NewNop(),
		RetryableErrors: retryable,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, fastConfig(3))

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	other := errors.New("validation")
	calls := 0

	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return other
	}, fastConfig(5, errFlaky))

	assert.Equal(t, other, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_Permanent(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, fastConfig(5))

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(context.Context) error { return nil }, fastConfig(3))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithDiscard(t *testing.T) {
	t.Run("discards after exhausting attempts", func(t *testing.T) {
		var discarded error

		err := RetryWithDiscard(context.Background(), func(context.Context) error {
			return errFlaky
		}, fastConfig(2), func(err error) error {
			discarded = err
			return nil
		})

		require.NoError(t, err)
		assert.ErrorIs(t, discarded, errFlaky)
	})

	t.Run("cancellation skips the discard policy", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		discardCalled := false

		err := RetryWithDiscard(ctx, func(context.Context) error { return errFlaky }, fastConfig(2), func(error) error {
			discardCalled = true
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, discardCalled)
	})
}

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.NextBackoff(1))
	assert.Equal(t, 400*time.Millisecond, exp.NextBackoff(3))
	assert.Equal(t, time.Second, exp.NextBackoff(10))

	lin := &LinearBackoff{InitialInterval: 10 * time.Millisecond, Step: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, lin.NextBackoff(1))
	assert.Equal(t, 15*time.Millisecond, lin.NextBackoff(2))
	assert.Equal(t, 20*time.Millisecond, lin.NextBackoff(5))

	jittered := NewDefaultExponentialBackoff()
	d := jittered.NextBackoff(1)
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	assert.LessOrEqual(t, d, 600*time.Millisecond)
}
