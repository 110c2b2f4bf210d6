// Package resilience provides the retry engine and circuit breaker that
// guard calls to a rate-limited upstream API.
//
// # Error taxonomy
//
// Classify sorts errors into three classes:
//
//   - Retryable: network failures with no HTTP status, statuses in
//     RetryConfig.RetryableStatusCodes (408, 429, 5xx by default) and
//     upstream codes in RetryConfig.RetryableErrorCodes.
//
//   - Terminal: every other 4xx, whatever its code, and anything else
//     unrecognized. Terminal errors are never retried.
//
//   - Circuit open: the *CircuitOpenError returned by an open breaker
//     without contacting the upstream.
//
// Errors are recognized through the StatusCoder, ErrorCoder and
// RetryAfterHinter interfaces, so transport layers can return their own
// types. APIError is a ready-made implementation.
//
// # Patterns
//
//   - Retry: runs an operation up to MaxRetries+1 times with exponential
//     backoff and jitter, honoring Retry-After hints. After exhaustion the
//     original error is returned unwrapped.
//
//   - Circuit Breaker: opens after FailureThreshold consecutive failures,
//     admits probes once Timeout elapses and closes after SuccessThreshold
//     consecutive probe successes.
//
//   - Rate Limiter: paces attempts with a token bucket.
//
// # Usage
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.DefaultRetryConfig())),
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 3})),
//	)
//
//	page, err := resilience.Run(ctx, executor, func(ctx context.Context) (*Page, error) {
//	    return client.GetPage(ctx, id)
//	})
//
// A retry sequence run inside the breaker counts as a single breaker
// outcome, however many attempts it made.
package resilience
