// Package observe provides observability primitives for the data-access
// layer: a zap backed structured logger, OpenTelemetry spans named
// "<operation>.<resource type>", and counters for fetch outcomes, upstream
// calls, retries and circuit breaker transitions.
//
// It is a pure instrumentation library: no I/O beyond log output and
// exporter setup. The fetch package wires an Observer into every upstream
// call through Middleware.
package observe
