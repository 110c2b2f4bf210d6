package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Operation names used in FetchMeta.
const (
	OpFetch  = "fetch"
	OpMutate = "mutate"
)

// FetchMeta describes one data-access call for telemetry purposes.
type FetchMeta struct {
	ResourceType  string // Resource type such as "page" (required)
	Key           string // Resource key (optional for type-wide operations)
	Operation     string // OpFetch or OpMutate; empty means OpFetch
	CorrelationID string // Ties log lines, spans and metrics of one call
}

// OperationName returns Operation, defaulting to OpFetch.
func (m FetchMeta) OperationName() string {
	if m.Operation == "" {
		return OpFetch
	}
	return m.Operation
}

// SpanName returns the deterministic span name for this call.
// Format: <operation>.<resource type>
func (m FetchMeta) SpanName() string {
	return m.OperationName() + "." + m.ResourceType
}

// Validate checks that the metadata is usable.
func (m FetchMeta) Validate() error {
	if m.ResourceType == "" {
		return ErrMissingResourceType
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with data-access span management.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an upstream call.
	StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with fetch metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("resource.type", meta.ResourceType),
		attribute.String("fetch.op", meta.OperationName()),
		attribute.Bool("fetch.error", false), // Will be updated in EndSpan if error
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("resource.key", meta.Key))
	}
	if meta.CorrelationID != "" {
		attrs = append(attrs, attribute.String("fetch.correlation_id", meta.CorrelationID))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("fetch.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
