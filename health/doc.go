// Package health reports the state of the data-access components.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// package ships checkers for the circuit breaker, the cache store and the
// deduplicator; an Aggregator runs them together and folds the results into
// one Report.
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewBreakerChecker(breaker))
//	agg.Register(health.NewCacheChecker(store))
//
//	report := agg.Report(ctx)
//	if report.Status == health.StatusUnhealthy {
//	    // the upstream API is being shed
//	}
//
// Checkers only read snapshots; running a check never changes component
// state.
package health
