package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// AttemptContext describes a failed attempt that is about to be retried.
type AttemptContext struct {
	// Attempt is the 1-based number of the attempt that just failed.
	Attempt int
	// MaxRetries is the configured retry budget.
	MaxRetries int
	// LastError is the error returned by the failed attempt.
	LastError error
	// Delay is how long the engine will wait before the next attempt.
	Delay time.Duration
	// TotalDelay is the cumulative wait of the sequence, Delay included.
	TotalDelay time.Duration
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps any single delay, Retry-After hints included.
	// Default: 30s
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier. Values <= 1 take the default.
	// Default: 2.0
	ExponentialBase float64

	// JitterFactor scales the symmetric random adjustment of each delay.
	// Values are clamped to [0, 1]. Default: 0.1
	JitterFactor float64

	// RetryableStatusCodes are HTTP statuses that trigger a retry.
	// Default: 408, 429, 500, 502, 503, 504
	RetryableStatusCodes []int

	// RetryableErrorCodes are upstream error codes that trigger a retry.
	RetryableErrorCodes []string

	// OnRetry is called before sleeping ahead of each retry.
	OnRetry func(AttemptContext)

	// Sleep replaces the default timer based wait. Used by tests.
	Sleep SleepFunc
}

// DefaultRetryableStatusCodes returns the statuses retried by default.
func DefaultRetryableStatusCodes() []int {
	return []int{408, 429, 500, 502, 503, 504}
}

// DefaultRetryableErrorCodes returns the upstream codes retried by default.
func DefaultRetryableErrorCodes() []string {
	return []string{
		"rate_limited",
		"internal_server_error",
		"service_unavailable",
		"database_connection_unavailable",
		"gateway_timeout",
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		ExponentialBase:      2.0,
		JitterFactor:         0.1,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
		RetryableErrorCodes:  DefaultRetryableErrorCodes(),
	}
}

// Retry implements retry with exponential backoff, jitter and Retry-After
// support. A Retry is immutable and safe for concurrent use.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler. Unset delays and base take their
// defaults; MaxRetries 0 disables retries. Nil code sets take the default
// sets and non-nil ones are copied.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.ExponentialBase <= 1 {
		config.ExponentialBase = 2.0
	}
	config.JitterFactor = min(max(config.JitterFactor, 0), 1)

	if config.RetryableStatusCodes == nil {
		config.RetryableStatusCodes = DefaultRetryableStatusCodes()
	} else {
		config.RetryableStatusCodes = slices.Clone(config.RetryableStatusCodes)
	}
	if config.RetryableErrorCodes == nil {
		config.RetryableErrorCodes = DefaultRetryableErrorCodes()
	} else {
		config.RetryableErrorCodes = slices.Clone(config.RetryableErrorCodes)
	}
	if config.Sleep == nil {
		config.Sleep = sleep
	}

	return &Retry{config: config}
}

// Execute runs op up to MaxRetries+1 times. A terminal error is returned at
// once. When retries are exhausted the last error is returned unwrapped.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var total time.Duration

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if Classify(err, r.config) != ClassRetryable || attempt > r.config.MaxRetries {
			return err
		}

		delay := r.Delay(attempt, err)
		total += delay

		if r.config.OnRetry != nil {
			r.config.OnRetry(AttemptContext{
				Attempt:    attempt,
				MaxRetries: r.config.MaxRetries,
				LastError:  err,
				Delay:      delay,
				TotalDelay: total,
			})
		}

		if err := r.config.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Do runs op through r and returns its value.
func Do[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Delay returns the wait before the retry that follows the given failed
// attempt. A Retry-After hint on err is honored as is, capped at MaxDelay.
// Otherwise the backoff delay is jittered and rounded to the millisecond.
func (r *Retry) Delay(attempt int, err error) time.Duration {
	if hint := RetryAfterOf(err); hint > 0 {
		return min(hint, r.config.MaxDelay)
	}

	d := r.BackoffDelay(attempt)
	if r.config.JitterFactor > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		u := rand.Float64()*2 - 1
		d += time.Duration(float64(d) * r.config.JitterFactor * u)
	}
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond)
}

// BackoffDelay returns BaseDelay*ExponentialBase^(attempt-1) capped at
// MaxDelay, without jitter.
func (r *Retry) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(r.config.BaseDelay) * math.Pow(r.config.ExponentialBase, float64(attempt-1))
	if d >= float64(r.config.MaxDelay) || math.IsInf(d, 0) {
		return r.config.MaxDelay
	}
	return time.Duration(d)
}

// Config returns a copy of the retry configuration.
func (r *Retry) Config() RetryConfig {
	cfg := r.config
	cfg.RetryableStatusCodes = slices.Clone(cfg.RetryableStatusCodes)
	cfg.RetryableErrorCodes = slices.Clone(cfg.RetryableErrorCodes)
	return cfg
}

// Merge returns a new Retry whose non-zero fields in override replace r's.
// A zero MaxRetries in override keeps r's budget.
func (r *Retry) Merge(override RetryConfig) *Retry {
	cfg := r.Config()
	if override.MaxRetries != 0 {
		cfg.MaxRetries = override.MaxRetries
	}
	if override.BaseDelay != 0 {
		cfg.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay != 0 {
		cfg.MaxDelay = override.MaxDelay
	}
	if override.ExponentialBase != 0 {
		cfg.ExponentialBase = override.ExponentialBase
	}
	if override.JitterFactor != 0 {
		cfg.JitterFactor = override.JitterFactor
	}
	if override.RetryableStatusCodes != nil {
		cfg.RetryableStatusCodes = override.RetryableStatusCodes
	}
	if override.RetryableErrorCodes != nil {
		cfg.RetryableErrorCodes = override.RetryableErrorCodes
	}
	if override.OnRetry != nil {
		cfg.OnRetry = override.OnRetry
	}
	if override.Sleep != nil {
		cfg.Sleep = override.Sleep
	}
	return NewRetry(cfg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
