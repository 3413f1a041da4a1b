// Package circuit provides the circuit breaker wrapped around the object
// store facade: a string of provider failures opens the breaker so
// callers fail fast instead of retrying into a dead endpoint. The upload
// readiness probe folds breaker state into its safety verdict.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's current mode.
type State int

const (
	// StateClosed passes every request through, counting failures.
	StateClosed State = iota
	// StateOpen rejects every request until the open timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe requests; success
	// closes the breaker, failure reopens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpenState is returned while the breaker refuses requests.
var ErrOpenState = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open probe quota is
// exhausted.
var ErrTooManyRequests = errors.New("circuit breaker half-open request limit reached")

// Counts accumulates request outcomes within the current state
// generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Config tunes a CircuitBreaker. Zero values get defaults.
type Config struct {
	// MaxRequests caps concurrent probes while half-open (default 1).
	MaxRequests uint32
	// Interval resets the closed-state counts periodically; 0 keeps
	// counting until the breaker trips.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing
	// (default 60s).
	Timeout time.Duration
	// ReadyToTrip decides when accumulated failures open the breaker
	// (default: 5 consecutive failures).
	ReadyToTrip func(Counts) bool
	// IsSuccessful classifies a returned error; context cancellation is
	// the caller's doing, not the endpoint's, so the default treats it
	// as success.
	IsSuccessful func(error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards one downstream dependency.
type CircuitBreaker struct {
	name   string
	config Config

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}

	cb := &CircuitBreaker{name: name, config: config}
	cb.toNewGeneration(time.Now())
	return cb
}

// Name returns the breaker's identifier.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn under the breaker's admission policy.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteWithContext runs fn under the breaker's admission policy,
// passing ctx through.
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, false)
			panic(r)
		}
	}()

	result := fn(ctx)
	cb.afterRequest(generation, cb.config.IsSuccessful(result))
	return result
}

// GetState reports the current state, advancing open → half-open when
// the timeout has elapsed.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.currentState(time.Now())
	return state
}

// GetCounts returns a snapshot of the current generation's counts.
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset forces the breaker closed with fresh counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed, time.Now())
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	switch state {
	case StateOpen:
		return generation, ErrOpenState
	case StateHalfOpen:
		if cb.counts.Requests >= cb.config.MaxRequests {
			return generation, ErrTooManyRequests
		}
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		// The state rolled over while the request was in flight; its
		// outcome belongs to a dead generation.
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.MaxRequests {
		cb.setState(StateClosed, now)
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch state {
	case StateClosed:
		if cb.config.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// currentState advances open → half-open when the open timeout has
// expired, and rolls the closed-state counting window when Interval is
// set. Callers must hold mu.
func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if cb.config.Interval > 0 && !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.toNewGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval > 0 {
			cb.expiry = now.Add(cb.config.Interval)
		} else {
			cb.expiry = time.Time{}
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}
