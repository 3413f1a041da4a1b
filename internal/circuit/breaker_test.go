package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider unavailable")

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func TestClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{})

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())

	counts := cb.GetCounts()
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{ReadyToTrip: tripAfter(3)})

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errProvider })
		require.ErrorIs(t, err, errProvider)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrOpenState, "an open breaker must fail fast without calling fn")
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{ReadyToTrip: tripAfter(3)})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return errProvider }))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		ReadyToTrip: tripAfter(1),
		Timeout:     20 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		ReadyToTrip: tripAfter(1),
		Timeout:     20 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	time.Sleep(30 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(func() error { return errProvider }), errProvider)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestHalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		MaxRequests: 1,
		ReadyToTrip: tripAfter(1),
		Timeout:     20 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	time.Sleep(30 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrTooManyRequests)
	close(release)
}

func TestContextCancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{ReadyToTrip: tripAfter(1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState(), "a cancelled caller must not trip the breaker")
}

func TestReset(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{ReadyToTrip: tripAfter(1)})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	require.NoError(t, cb.Execute(func() error { return nil }))
}

func TestOnStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("test", Config{
		ReadyToTrip: tripAfter(1),
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.Error(t, cb.Execute(func() error { return errProvider }))
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestPanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = cb.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, cb.GetState())
}
