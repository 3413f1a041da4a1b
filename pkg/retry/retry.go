// Package retry provides the backoff retrier used by the upload engine:
// per-part retries use exponential backoff with jitter, multipart
// completion retries use linear backoff.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
)

// Strategy selects how calculateDelay grows the wait between attempts.
type Strategy int

const (
	// Exponential grows delay as InitialDelay * Multiplier^(attempt-1),
	// used for per-part upload retries.
	Exponential Strategy = iota
	// Linear grows delay as InitialDelay * attempt, used for multipart
	// completion retries (1s * attempt, capped at 3 attempts).
	Linear
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the exponential growth factor; ignored under Linear.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Strategy selects exponential or linear growth.
	Strategy Strategy `yaml:"-" json:"-"`

	// Jitter adds up to ±20% randomness to the delay.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableErrors is an additional allow-list of codes to retry,
	// beyond whatever the error's own Retryable flag says.
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the exponential-backoff configuration used for
// per-part upload retries.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Strategy:     Exponential,
		Jitter:       true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeObjectStoreNetwork,
			errors.ErrCodeObjectStoreThrottled,
			errors.ErrCodeObjectStoreProtocol,
			errors.ErrCodeObjectStoreTimeout,
		},
	}
}

// MultipartCompletionConfig returns the linear-backoff configuration used
// for complete_multipart_upload: 1s per attempt, 3 attempts, no jitter.
// Completion is the race-sensitive step and gets its own policy.
func MultipartCompletionConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     3 * time.Second,
		Strategy:     Linear,
		Jitter:       false,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeObjectStoreNetwork,
			errors.ErrCodeObjectStoreThrottled,
			errors.ErrCodeObjectStoreProtocol,
			errors.ErrCodeObjectStoreTimeout,
		},
	}
}

// Retryer executes a function with backoff between failed attempts.
type Retryer struct {
	config Config
	stats  *StatsCollector
}

// New creates a Retryer, filling in zero-valued fields with sane defaults.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Strategy == Exponential && config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// WithStats returns a new Retryer that records every retry sequence into
// sc. Safe to share one collector across concurrent retryers.
func (r *Retryer) WithStats(sc *StatsCollector) *Retryer {
	clone := *r
	clone.stats = sc
	return &clone
}

// Do executes fn with retry logic, using context.Background().
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn with retry logic, honoring ctx cancellation.
// A cancelled context never triggers a further retry.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	var slept time.Duration
	attempts := 0

	record := func(success bool) {
		if r.stats != nil {
			r.stats.RecordSequence(attempts, success, slept)
		}
	}

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			record(false)
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		default:
		}

		attempts = attempt
		err := fn(ctx)
		if err == nil {
			record(true)
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			record(false)
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)

			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				record(false)
				return fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
				slept += delay
			}
		}
	}

	record(false)
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

// shouldRetry reports whether err is retryable on the given attempt.
func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var rvErr *errors.ReelVaultError
	if stderr.As(err, &rvErr) {
		if rvErr.Retryable {
			return true
		}
		for _, code := range r.config.RetryableErrors {
			if rvErr.Code == code {
				return true
			}
		}
	}

	return false
}

// calculateDelay computes the wait before the next attempt.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	var delay float64

	switch r.config.Strategy {
	case Linear:
		delay = float64(r.config.InitialDelay) * float64(attempt)
	default:
		delay = float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	}

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}

// WithMaxAttempts returns a new Retryer with a modified attempt cap.
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	newConfig := r.config
	newConfig.MaxAttempts = attempts
	return New(newConfig).WithStats(r.stats)
}

// WithOnRetry returns a new Retryer with a retry callback attached.
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig).WithStats(r.stats)
}

// Stats is the aggregate view over every retry sequence recorded into a
// StatsCollector. A sequence is one Do/DoWithContext call, however many
// attempts it took.
type Stats struct {
	Sequences       int           `json:"sequences"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	TotalAttempts   int           `json:"total_attempts"`
	TotalDelay      time.Duration `json:"total_delay"`
	MaxAttemptsUsed int           `json:"max_attempts_used"`
}

// AverageAttempts reports the mean attempt count per sequence.
func (s Stats) AverageAttempts() float64 {
	if s.Sequences == 0 {
		return 0
	}
	return float64(s.TotalAttempts) / float64(s.Sequences)
}

// StatsCollector accumulates Stats across concurrent Retryer invocations;
// attach one via Retryer.WithStats and share it freely.
type StatsCollector struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsCollector creates an empty StatsCollector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// RecordSequence records the outcome of one completed retry sequence:
// how many attempts it made, whether it ultimately succeeded, and the
// total backoff delay it slept through.
func (sc *StatsCollector) RecordSequence(attempts int, success bool, delay time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.stats.Sequences++
	if success {
		sc.stats.Succeeded++
	} else {
		sc.stats.Failed++
	}
	sc.stats.TotalAttempts += attempts
	sc.stats.TotalDelay += delay
	if attempts > sc.stats.MaxAttemptsUsed {
		sc.stats.MaxAttemptsUsed = attempts
	}
}

// GetStats returns a snapshot of the accumulated statistics.
func (sc *StatsCollector) GetStats() Stats {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stats
}

// Reset clears the accumulated statistics.
func (sc *StatsCollector) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats = Stats{}
}
