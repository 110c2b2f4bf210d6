package resilience

import "context"

// Executor composes the circuit breaker, retry and rate limiter.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// Execute runs the operation through all configured resilience patterns.
//
// The execution order is:
// 1. Circuit Breaker (if configured) - one outcome per Execute call
// 2. Retry (if configured) - retries transient failures
// 3. Rate Limiter (if configured) - paces every attempt
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	return e.ExecuteWith(ctx, nil, op)
}

// ExecuteWith is Execute with r replacing the executor's retry policy for
// this call. A nil r uses the executor's own.
func (e *Executor) ExecuteWith(ctx context.Context, r *Retry, op func(context.Context) error) error {
	if r == nil {
		r = e.retry
	}

	// Build the execution chain from inside out
	execute := op

	// Wrap with rate limiter (innermost)
	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	// Wrap with retry
	if r != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return r.Execute(ctx, inner)
		}
	}

	// Wrap with circuit breaker (outermost)
	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}

// Retry returns the executor's retry policy, or nil.
func (e *Executor) Retry() *Retry { return e.retry }

// CircuitBreaker returns the executor's circuit breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// Run runs op through e and returns its value.
func Run[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
