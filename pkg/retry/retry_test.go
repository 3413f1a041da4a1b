package retry

import (
	"context"
	"testing"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryer_Success(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_RetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 10 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrCodeObjectStoreTimeout, "timed out")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_NonRetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	retryer := New(config)

	attempts := 0
	testErr := errors.New(errors.ErrCodeFileNotFound, "file not found")

	err := retryer.Do(func() error {
		attempts++
		return testErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 10 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 10
	config.InitialDelay = 100 * time.Millisecond
	retryer := New(config)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New(errors.ErrCodeObjectStoreNetwork, "connection failed")
	})

	require.Error(t, err)
	assert.Less(t, attempts, 10)
}

func TestRetryer_ExponentialBackoff(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 4
	config.InitialDelay = 100 * time.Millisecond
	config.MaxDelay = 1 * time.Second
	config.Multiplier = 2.0
	config.Jitter = false

	var delays []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	retryer := New(config)
	err := retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	require.Error(t, err)
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	require.Equal(t, expected, delays)
}

func TestRetryer_LinearBackoff(t *testing.T) {
	config := MultipartCompletionConfig()

	var delays []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	retryer := New(config)
	err := retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreTimeout, "timed out")
	})

	require.Error(t, err)
	// 3 attempts total -> 2 retries at 1s, 2s.
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestRetryer_MaxDelayCap(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 10
	config.InitialDelay = 1 * time.Second
	config.MaxDelay = 2 * time.Second
	config.Multiplier = 2.0
	config.Jitter = false

	var maxDelay time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		if delay > maxDelay {
			maxDelay = delay
		}
	}

	retryer := New(config)
	_ = retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	assert.LessOrEqual(t, maxDelay, config.MaxDelay)
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 10 * time.Millisecond

	callbackCalled := 0
	var lastAttempt int
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbackCalled++
		lastAttempt = attempt
	}

	retryer := New(config)
	_ = retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	assert.Equal(t, 2, callbackCalled)
	assert.Equal(t, 2, lastAttempt)
}

func TestRetryer_WithMaxAttempts(t *testing.T) {
	original := New(DefaultConfig())

	modified := original.WithMaxAttempts(10)
	assert.Equal(t, 10, modified.config.MaxAttempts)
	assert.NotEqual(t, 10, original.config.MaxAttempts)
}

func TestRetryer_WithOnRetry(t *testing.T) {
	original := New(DefaultConfig())

	called := false
	modified := original.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		called = true
	})

	_ = modified.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	assert.True(t, called)
}

func TestStatsCollector(t *testing.T) {
	collector := NewStatsCollector()

	collector.RecordSequence(1, true, 100*time.Millisecond)
	collector.RecordSequence(3, true, 500*time.Millisecond)
	collector.RecordSequence(5, false, 1*time.Second)

	stats := collector.GetStats()
	assert.Equal(t, 3, stats.Sequences)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 9, stats.TotalAttempts)
	assert.Equal(t, 5, stats.MaxAttemptsUsed)
	assert.Equal(t, 100*time.Millisecond+500*time.Millisecond+1*time.Second, stats.TotalDelay)
	assert.InDelta(t, 3.0, stats.AverageAttempts(), 0.001)

	collector.Reset()
	assert.Equal(t, 0, collector.GetStats().Sequences)
	assert.Zero(t, collector.GetStats().AverageAttempts())
}

func TestRetryerRecordsIntoStats(t *testing.T) {
	collector := NewStatsCollector()

	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = time.Millisecond
	config.Jitter = false
	retryer := New(config).WithStats(collector)

	// One sequence that succeeds on the second attempt.
	calls := 0
	err := retryer.Do(func() error {
		calls++
		if calls == 1 {
			return errors.New(errors.ErrCodeObjectStoreNetwork, "transient")
		}
		return nil
	})
	assert.NoError(t, err)

	// One sequence that exhausts every attempt.
	err = retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "permanent")
	})
	assert.Error(t, err)

	stats := collector.GetStats()
	assert.Equal(t, 2, stats.Sequences)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 5, stats.TotalAttempts, "2 attempts + 3 attempts")
	assert.Equal(t, 3, stats.MaxAttemptsUsed)
	assert.Greater(t, stats.TotalDelay, time.Duration(0))
}

func TestWithMaxAttemptsPreservesStats(t *testing.T) {
	collector := NewStatsCollector()
	retryer := New(DefaultConfig()).WithStats(collector).WithMaxAttempts(1)

	_ = retryer.Do(func() error { return nil })
	assert.Equal(t, 1, collector.GetStats().Sequences)
}

func TestRetryer_JitterVariance(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = 100 * time.Millisecond
	config.Jitter = true

	var delays []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	retryer := New(config)
	_ = retryer.Do(func() error {
		return errors.New(errors.ErrCodeObjectStoreNetwork, "network error")
	})

	baseDelay := config.InitialDelay
	hasVariance := false
	for _, delay := range delays {
		if delay != baseDelay {
			hasVariance = true
			break
		}
		baseDelay = time.Duration(float64(baseDelay) * config.Multiplier)
	}

	assert.True(t, hasVariance, "expected jitter to create variance in delays")
}
