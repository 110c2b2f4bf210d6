package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the upstream recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the circuit.
	// Default: 2
	SuccessThreshold int

	// Timeout is how long the circuit stays open before admitting a probe.
	// Default: 60 seconds
	Timeout time.Duration

	// OnStateChange is called with the breaker locked when the state
	// changes. It must not call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure determines if an error counts as a failure.
	// Default: every non-nil error except context.Canceled.
	IsFailure func(err error) bool

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// BreakerState is a point in time copy of the breaker's state.
type BreakerState struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	// ReopenAt is zero unless the circuit has opened at least once.
	ReopenAt time.Time
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	reopenAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs op through the circuit breaker as one guarded outcome. While
// the circuit is open and its timeout has not elapsed, op is not invoked and
// a *CircuitOpenError is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// ExecuteWithRetry runs op through r inside the breaker, so an exhausted
// retry sequence counts as a single failure. A nil r behaves like Execute.
func (cb *CircuitBreaker) ExecuteWithRetry(ctx context.Context, op func(context.Context) error, r *Retry) error {
	if r == nil {
		return cb.Execute(ctx, op)
	}
	return cb.Execute(ctx, func(ctx context.Context) error {
		return r.Execute(ctx, op)
	})
}

// State returns the current circuit state. It never transitions the
// breaker; an open circuit past its timeout still reports StateOpen until
// the next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a read-only copy of the breaker's state.
func (cb *CircuitBreaker) Snapshot() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerState{
		State:                cb.state,
		ConsecutiveFailures:  cb.failures,
		ConsecutiveSuccesses: cb.successes,
		ReopenAt:             cb.reopenAt,
	}
}

// Reset forces the circuit closed with zero counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.reopenAt = time.Time{}
	cb.setStateLocked(StateClosed)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.config.Now().Before(cb.reopenAt) {
		return &CircuitOpenError{ReopenAt: cb.reopenAt}
	}

	cb.failures = 0
	cb.successes = 0
	cb.setStateLocked(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := cb.config.IsFailure(err)
	if err != nil && !failed {
		return
	}

	switch cb.state {
	case StateClosed:
		if failed {
			cb.failures++
			if cb.failures >= cb.config.FailureThreshold {
				cb.openLocked()
			}
		} else {
			cb.failures = 0
		}

	case StateHalfOpen:
		if failed {
			cb.failures++
			cb.successes = 0
			cb.openLocked()
		} else {
			cb.failures = 0
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.successes = 0
				cb.setStateLocked(StateClosed)
			}
		}

	case StateOpen:
		// Outcome of a call admitted before another call reopened the
		// circuit. The open window already accounts for it.
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.reopenAt = cb.config.Now().Add(cb.config.Timeout)
	cb.setStateLocked(StateOpen)
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	old := cb.state
	cb.state = state
	if old != state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(old, state)
	}
}

// Config returns the circuit breaker configuration.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}
