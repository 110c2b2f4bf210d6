package fetch

import (
	"context"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/dedup"
	"github.com/Coastal-Programs/notion-cli-sub005/health"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

// Stats is a snapshot of every component's counters. Breaker is nil when
// the Fetcher has no circuit breaker.
type Stats struct {
	Cache   cache.Stats
	Dedup   dedup.Stats
	Breaker *resilience.BreakerState
}

// Stats returns a snapshot of the component counters.
func (f *Fetcher) Stats() Stats {
	var s Stats
	if f.cache != nil {
		s.Cache = f.cache.Stats()
	}
	if f.dedup != nil {
		s.Dedup = f.dedup.Stats()
	}
	if f.breaker != nil {
		snap := f.breaker.Snapshot()
		s.Breaker = &snap
	}
	return s
}

// Health runs the component checkers.
func (f *Fetcher) Health(ctx context.Context) health.Report {
	return f.health.Report(ctx)
}
