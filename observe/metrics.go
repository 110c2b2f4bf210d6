package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome is how a fetch was served.
type Outcome string

const (
	// OutcomeHit was served from the cache.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss led an upstream call.
	OutcomeMiss Outcome = "miss"
	// OutcomeShared joined another caller's in-flight upstream call.
	OutcomeShared Outcome = "shared"
	// OutcomeBypass skipped the cache on request.
	OutcomeBypass Outcome = "bypass"
	// OutcomeError failed.
	OutcomeError Outcome = "error"
)

// Metrics records data-access metrics.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: must honor cancellation/deadlines and return quickly.
//   - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch counts a fetch by how it was served.
	RecordFetch(ctx context.Context, meta FetchMeta, outcome Outcome)

	// RecordUpstream records one upstream call sequence with its duration
	// and error status.
	RecordUpstream(ctx context.Context, meta FetchMeta, duration time.Duration, err error)

	// RecordRetry counts a retry about to happen after delay.
	RecordRetry(ctx context.Context, meta FetchMeta, delay time.Duration)

	// RecordBreakerTransition counts a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, from, to string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	fetchCount      metric.Int64Counter
	upstreamCount   metric.Int64Counter
	errorCount      metric.Int64Counter
	durationHist    metric.Float64Histogram
	retryCount      metric.Int64Counter
	retryDelayHist  metric.Float64Histogram
	transitionCount metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	fetchCount, err := meter.Int64Counter(
		"fetch.total",
		metric.WithDescription("Total number of fetches by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamCount, err := meter.Int64Counter(
		"upstream.calls.total",
		metric.WithDescription("Total number of upstream call sequences"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"upstream.errors.total",
		metric.WithDescription("Total number of failed upstream call sequences"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"upstream.duration_ms",
		metric.WithDescription("Upstream call duration in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"upstream.retries.total",
		metric.WithDescription("Total number of upstream retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	retryDelayHist, err := meter.Float64Histogram(
		"upstream.retry_delay_ms",
		metric.WithDescription("Backoff delay before each retry in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitionCount, err := meter.Int64Counter(
		"breaker.transitions.total",
		metric.WithDescription("Total number of circuit breaker state changes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		fetchCount:      fetchCount,
		upstreamCount:   upstreamCount,
		errorCount:      errorCount,
		durationHist:    durationHist,
		retryCount:      retryCount,
		retryDelayHist:  retryDelayHist,
		transitionCount: transitionCount,
	}, nil
}

func metaAttrs(meta FetchMeta) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("resource.type", meta.ResourceType),
		attribute.String("fetch.op", meta.OperationName()),
	}
}

// RecordFetch counts a fetch by outcome.
func (m *metricsImpl) RecordFetch(ctx context.Context, meta FetchMeta, outcome Outcome) {
	attrs := append(metaAttrs(meta), attribute.String("outcome", string(outcome)))
	m.fetchCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUpstream records metrics for an upstream call sequence.
func (m *metricsImpl) RecordUpstream(ctx context.Context, meta FetchMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(metaAttrs(meta)...)

	// Always increment total counter
	m.upstreamCount.Add(ctx, 1, opt)

	// Increment error counter on failure
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}

	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordRetry counts a retry and its delay.
func (m *metricsImpl) RecordRetry(ctx context.Context, meta FetchMeta, delay time.Duration) {
	opt := metric.WithAttributes(metaAttrs(meta)...)
	m.retryCount.Add(ctx, 1, opt)
	m.retryDelayHist.Record(ctx, float64(delay.Milliseconds()), opt)
}

// RecordBreakerTransition counts a state change.
func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, from, to string) {
	m.transitionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return &noopMetrics{} }

func (m *noopMetrics) RecordFetch(ctx context.Context, meta FetchMeta, outcome Outcome) {}

func (m *noopMetrics) RecordUpstream(ctx context.Context, meta FetchMeta, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordRetry(ctx context.Context, meta FetchMeta, delay time.Duration) {}

func (m *noopMetrics) RecordBreakerTransition(ctx context.Context, from, to string) {}
