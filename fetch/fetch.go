package fetch

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/observe"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

// CallOption adjusts a single Fetch or Mutate call.
type CallOption func(*callOptions)

type callOptions struct {
	skipCache bool
	ttl       time.Duration
	retry     []func(*resilience.RetryConfig)
}

// SkipCache makes Fetch ignore any cached value. The fresh result still
// replaces the cached one.
func SkipCache() CallOption {
	return func(o *callOptions) {
		o.skipCache = true
	}
}

// WithTTL stores the result with ttl instead of the TTL of its type.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = ttl
	}
}

// WithRetry adjusts a copy of the Fetcher's retry policy for this call.
func WithRetry(fn func(*resilience.RetryConfig)) CallOption {
	return func(o *callOptions) {
		o.retry = append(o.retry, fn)
	}
}

// Target names a cache entry a write makes stale. An empty ID covers every
// entry of the type, e.g. a parent's cached listing.
type Target struct {
	Type cache.ResourceType
	ID   string
}

// Fetch returns the resource (t, key), from the cache when a live entry
// holds a T, otherwise by calling fn. Concurrent calls for the same
// resource share a single call of fn. The outcome of a shared call,
// including which options apply, is decided by the caller that started it.
//
// On success the result is cached, unless an invalidation ran while the
// call was in flight: the result may predate the write that caused it,
// so it is returned but not stored. Errors are returned unwrapped: the
// error from fn, or a *resilience.CircuitOpenError when the breaker sheds
// the call. Key validation errors are returned before any upstream call.
func Fetch[T any](ctx context.Context, f *Fetcher, t cache.ResourceType, key string, fn func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	if err := cache.ValidateKey(key); err != nil {
		return zero, err
	}

	co := newCallOptions(opts)
	meta := observe.FetchMeta{
		ResourceType:  string(t),
		Key:           key,
		Operation:     observe.OpFetch,
		CorrelationID: uuid.NewString(),
	}

	if !co.skipCache && f.cache != nil {
		if v, ok := f.cache.Get(t, key); ok {
			if typed, ok := v.(T); ok {
				f.metrics.RecordFetch(ctx, meta, observe.OutcomeHit)
				f.logger.WithFetch(meta).Debug(ctx, "cache hit")
				return typed, nil
			}
			f.logger.WithFetch(meta).Warn(ctx, "cached value has unexpected type, refetching",
				observe.Field{Key: "cached_type", Value: fmt.Sprintf("%T", v)},
				observe.Field{Key: "want_type", Value: fmt.Sprintf("%T", zero)},
			)
		}
	}

	var led atomic.Bool
	call := func(ctx context.Context) (any, error) {
		led.Store(true)
		epoch := f.epoch.Load()
		v, err := f.upstream(ctx, meta, co, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
		if err == nil {
			f.store(t, key, v, co.ttl, epoch)
		}
		return v, err
	}

	var (
		v   any
		err error
	)
	if f.dedup != nil {
		v, err, _ = f.dedup.Do(ctx, string(t), key, call)
	} else {
		v, err = call(ctx)
	}

	if err == nil && v != nil && !led.Load() {
		if _, ok := v.(T); !ok {
			// A caller of another type started the shared call.
			f.logger.WithFetch(meta).Warn(ctx, "shared result has unexpected type, refetching",
				observe.Field{Key: "shared_type", Value: fmt.Sprintf("%T", v)},
				observe.Field{Key: "want_type", Value: fmt.Sprintf("%T", zero)},
			)
			v, err = call(ctx)
		}
	}

	switch {
	case err != nil:
		f.metrics.RecordFetch(ctx, meta, observe.OutcomeError)
		return zero, err
	case !led.Load():
		f.metrics.RecordFetch(ctx, meta, observe.OutcomeShared)
	case co.skipCache:
		f.metrics.RecordFetch(ctx, meta, observe.OutcomeBypass)
	default:
		f.metrics.RecordFetch(ctx, meta, observe.OutcomeMiss)
	}

	result, _ := v.(T)
	return result, nil
}

// Mutate runs the write fn through the breaker, retry engine and rate
// limiter, then invalidates targets. Nothing is invalidated when the write
// fails, so entries that are still accurate stay cached.
func Mutate[T any](ctx context.Context, f *Fetcher, fn func(context.Context) (T, error), targets ...Target) (T, error) {
	return MutateWith(ctx, f, fn, targets)
}

// MutateWith is Mutate with call options. Only WithRetry applies to writes.
func MutateWith[T any](ctx context.Context, f *Fetcher, fn func(context.Context) (T, error), targets []Target, opts ...CallOption) (T, error) {
	var zero T
	meta := observe.FetchMeta{
		ResourceType:  "write",
		Operation:     observe.OpMutate,
		CorrelationID: uuid.NewString(),
	}
	if len(targets) > 0 {
		meta.ResourceType = string(targets[0].Type)
		meta.Key = targets[0].ID
	}

	v, err := f.upstream(ctx, meta, newCallOptions(opts), func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}

	for _, target := range targets {
		if target.ID == "" {
			f.InvalidateType(target.Type)
			continue
		}
		f.Invalidate(target.Type, target.ID)
	}
	if len(targets) > 0 {
		f.logger.WithFetch(meta).Debug(ctx, "invalidated after write",
			observe.Field{Key: "targets", Value: len(targets)})
	}

	result, _ := v.(T)
	return result, nil
}

// upstream runs fn through the observability middleware and the
// breaker -> retry -> rate limiter chain.
func (f *Fetcher) upstream(ctx context.Context, meta observe.FetchMeta, co callOptions, fn func(context.Context) (any, error)) (any, error) {
	retry := f.retryFor(ctx, meta, co)

	wrapped := f.middleware.Wrap(func(ctx context.Context, meta observe.FetchMeta) (any, error) {
		var result any
		err := f.executor.ExecuteWith(ctx, retry, func(ctx context.Context) error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
		return result, err
	})
	return wrapped(ctx, meta)
}

// retryFor builds the retry engine of one call: the Fetcher's policy with
// the call's overrides, reporting every retry to logs and metrics.
func (f *Fetcher) retryFor(ctx context.Context, meta observe.FetchMeta, co callOptions) *resilience.Retry {
	cfg := f.retry
	cfg.RetryableStatusCodes = slices.Clone(cfg.RetryableStatusCodes)
	cfg.RetryableErrorCodes = slices.Clone(cfg.RetryableErrorCodes)
	for _, adjust := range co.retry {
		adjust(&cfg)
	}

	logger := f.logger.WithFetch(meta)
	next := cfg.OnRetry
	cfg.OnRetry = func(ac resilience.AttemptContext) {
		if next != nil {
			next(ac)
		}
		f.metrics.RecordRetry(ctx, meta, ac.Delay)
		logger.Warn(ctx, "retrying upstream call",
			observe.Field{Key: "attempt", Value: ac.Attempt},
			observe.Field{Key: "max_retries", Value: ac.MaxRetries},
			observe.Field{Key: "delay_ms", Value: ac.Delay.Milliseconds()},
			observe.Field{Key: "error", Value: ac.LastError},
		)
	}
	return resilience.NewRetry(cfg)
}

func newCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	return co
}
