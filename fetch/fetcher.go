package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/config"
	"github.com/Coastal-Programs/notion-cli-sub005/dedup"
	"github.com/Coastal-Programs/notion-cli-sub005/health"
	"github.com/Coastal-Programs/notion-cli-sub005/observe"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

// Fetcher owns the cache, deduplicator, circuit breaker and rate limiter
// shared by every call of one process. It is safe for concurrent use.
type Fetcher struct {
	cache      *cache.Store
	dedup      *dedup.Group
	breaker    *resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	retry      resilience.RetryConfig
	executor   *resilience.Executor
	middleware *observe.Middleware
	logger     observe.Logger
	metrics    observe.Metrics
	health     *health.Aggregator

	breakerConfig *resilience.CircuitBreakerConfig
	tracer        observe.Tracer

	// epoch counts invalidations. invalidateMu orders them against the
	// store of a finished upstream result.
	invalidateMu sync.RWMutex
	epoch        atomic.Uint64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCache sets the cache store. Without it a Fetcher caches nothing.
func WithCache(s *cache.Store) Option {
	return func(f *Fetcher) {
		f.cache = s
	}
}

// WithDeduplicator sets the group that coalesces concurrent calls.
// Without it every call goes upstream.
func WithDeduplicator(g *dedup.Group) Option {
	return func(f *Fetcher) {
		f.dedup = g
	}
}

// WithCircuitBreaker sets a breaker built elsewhere. Its state changes are
// not reported to the Fetcher's metrics; use WithBreakerConfig for that.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(f *Fetcher) {
		f.breaker = cb
		f.breakerConfig = nil
	}
}

// WithBreakerConfig builds the breaker from cfg and reports its state
// changes to the Fetcher's logger and metrics, after any OnStateChange
// already set in cfg.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(f *Fetcher) {
		f.breakerConfig = &cfg
		f.breaker = nil
	}
}

// WithRateLimiter paces every upstream attempt.
func WithRateLimiter(rl *resilience.RateLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = rl
	}
}

// WithRetryConfig sets the default retry policy. Calls may override parts
// of it with the WithRetry call option.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(f *Fetcher) {
		f.retry = cfg
	}
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l observe.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observe.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithTracer sets the tracer for upstream spans. Default: no-op.
func WithTracer(t observe.Tracer) Option {
	return func(f *Fetcher) {
		f.tracer = t
	}
}

// WithMiddleware takes tracer, metrics and logger from mw.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(f *Fetcher) {
		f.tracer = mw.Tracer()
		f.metrics = mw.Metrics()
		f.logger = mw.Logger()
	}
}

// New creates a Fetcher. With no options it retries with
// resilience.DefaultRetryConfig and has no cache, deduplicator, breaker or
// rate limiter.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.middleware = observe.NewMiddleware(f.tracer, f.metrics, f.logger)
	f.logger = f.middleware.Logger()
	f.metrics = f.middleware.Metrics()

	if f.breakerConfig != nil {
		cfg := *f.breakerConfig
		next := cfg.OnStateChange
		cfg.OnStateChange = func(from, to resilience.State) {
			if next != nil {
				next(from, to)
			}
			f.onBreakerTransition(from, to)
		}
		f.breaker = resilience.NewCircuitBreaker(cfg)
	}

	f.executor = resilience.NewExecutor(
		resilience.WithCircuitBreaker(f.breaker),
		resilience.WithRateLimiter(f.limiter),
	)

	f.health = health.NewAggregator()
	if f.breaker != nil {
		f.health.Register(health.NewBreakerChecker(f.breaker))
	}
	if f.cache != nil {
		f.health.Register(health.NewCacheChecker(f.cache))
	}
	if f.dedup != nil {
		f.health.Register(health.NewDedupChecker(f.dedup))
	}
	return f
}

// NewFromConfig builds every component from cfg. obs may be nil, in which
// case nothing is traced, measured or logged.
func NewFromConfig(cfg config.Config, obs observe.Observer) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	group := dedup.New()
	group.SetEnabled(cfg.DedupEnabled)

	opts := []Option{
		WithCache(cache.NewStore(cfg.CacheConfig())),
		WithDeduplicator(group),
		WithRetryConfig(cfg.RetryConfig()),
	}
	if cfg.BreakerEnabled {
		opts = append(opts, WithBreakerConfig(cfg.BreakerConfig()))
	}
	if rl := resilience.NewRateLimiter(cfg.RateLimiterConfig()); rl.Enabled() {
		opts = append(opts, WithRateLimiter(rl))
	}
	if obs != nil {
		mw, err := observe.MiddlewareFromObserver(obs)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		opts = append(opts, WithMiddleware(mw))
	}

	return New(opts...), nil
}

func (f *Fetcher) onBreakerTransition(from, to resilience.State) {
	ctx := context.Background()
	f.metrics.RecordBreakerTransition(ctx, from.String(), to.String())

	fields := []observe.Field{
		{Key: "from", Value: from.String()},
		{Key: "to", Value: to.String()},
	}
	if to == resilience.StateOpen {
		f.logger.Warn(ctx, "circuit breaker opened", fields...)
		return
	}
	f.logger.Info(ctx, "circuit breaker state changed", fields...)
}

// store caches v unless an invalidation happened after epoch was read.
// Invalidations are counted Fetcher-wide, so an unrelated one also skips
// the store; the value is still returned to its callers.
func (f *Fetcher) store(t cache.ResourceType, key string, v any, ttl time.Duration, epoch uint64) {
	if f.cache == nil {
		return
	}
	f.invalidateMu.RLock()
	defer f.invalidateMu.RUnlock()
	if f.epoch.Load() != epoch {
		return
	}
	f.cache.SetWithTTL(t, key, v, ttl)
}

func (f *Fetcher) invalidate(drop func()) {
	f.invalidateMu.Lock()
	defer f.invalidateMu.Unlock()
	f.epoch.Add(1)
	if f.cache != nil {
		drop()
	}
}

// Invalidate drops the cached entry for (t, key) and detaches any in-flight
// call for it, so the next Fetch goes upstream. A detached call still
// answers its callers but does not cache its result.
func (f *Fetcher) Invalidate(t cache.ResourceType, key string) {
	f.invalidate(func() { f.cache.Invalidate(t, key) })
	if f.dedup != nil {
		f.dedup.Forget(string(t), key)
	}
}

// InvalidateType drops every cached entry of type t. Calls in flight do
// not cache their results.
func (f *Fetcher) InvalidateType(t cache.ResourceType) {
	f.invalidate(func() { f.cache.InvalidateType(t) })
}

// Clear drops every cached entry. Calls in flight do not cache their
// results.
func (f *Fetcher) Clear() {
	f.invalidate(func() { f.cache.Clear() })
}

// Cache returns the cache store, or nil.
func (f *Fetcher) Cache() *cache.Store { return f.cache }

// Deduplicator returns the dedup group, or nil.
func (f *Fetcher) Deduplicator() *dedup.Group { return f.dedup }

// CircuitBreaker returns the circuit breaker, or nil.
func (f *Fetcher) CircuitBreaker() *resilience.CircuitBreaker { return f.breaker }

// RetryConfig returns a copy of the default retry policy.
func (f *Fetcher) RetryConfig() resilience.RetryConfig {
	return resilience.NewRetry(f.retry).Config()
}
