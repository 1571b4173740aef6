package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(onChange func(string, State, State)) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "kafka",
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
		OnStateChange:    onChange,
	})
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(nil)

	cb.Failure()
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestBreaker_SuccessResetsFailureCountWhenClosed(t *testing.T) {
	cb := newTestBreaker(nil)

	cb.Failure()
	cb.Success()
	cb.Failure()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.EqualValues(t, 1, cb.GetMetrics()["failure_count"])
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb := newTestBreaker(func(_ string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.Failure()
	cb.Failure()
	time.Sleep(30 * time.Millisecond)

	require.True(t, cb.Allow(), "first trial call is let through")
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow(), "only one trial call in half-open")

	cb.Success()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(nil)

	cb.Failure()
	cb.Failure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreaker_Execute(t *testing.T) {
	cb := newTestBreaker(nil)
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrOpen)
}

func TestBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(nil)
	cb.Failure()
	cb.Failure()

	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
	assert.Equal(t, "closed", cb.GetMetrics()["state"])
}
