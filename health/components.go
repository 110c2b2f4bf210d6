package health

import (
	"context"
	"time"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/dedup"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

// BreakerChecker reports the circuit breaker guarding the upstream API.
// Closed is healthy, half-open degraded and open unhealthy.
type BreakerChecker struct {
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb.
func NewBreakerChecker(cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{breaker: cb}
}

// Name returns "breaker".
func (c *BreakerChecker) Name() string {
	return "breaker"
}

// Check reads a snapshot of the breaker. It never transitions it.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	snap := c.breaker.Snapshot()
	details := map[string]any{
		"state":                 snap.State.String(),
		"consecutive_failures":  snap.ConsecutiveFailures,
		"consecutive_successes": snap.ConsecutiveSuccesses,
	}

	switch snap.State {
	case resilience.StateOpen:
		details["reopen_at"] = snap.ReopenAt.Format(time.RFC3339)
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open, probing upstream").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

// CacheChecker reports the cache store. A disabled store is degraded since
// every read goes upstream.
type CacheChecker struct {
	store *cache.Store
}

// NewCacheChecker creates a checker for s.
func NewCacheChecker(s *cache.Store) *CacheChecker {
	return &CacheChecker{store: s}
}

// Name returns "cache".
func (c *CacheChecker) Name() string {
	return "cache"
}

// Check reports counters and the hit rate.
func (c *CacheChecker) Check(ctx context.Context) Result {
	stats := c.store.Stats()
	cfg := c.store.Config()
	details := map[string]any{
		"size":      stats.Size,
		"max_size":  cfg.MaxSize,
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"evictions": stats.Evictions,
		"hit_rate":  stats.HitRate(),
	}

	if !cfg.Enabled {
		return Degraded("cache disabled").WithDetails(details)
	}
	return Healthy("cache enabled").WithDetails(details)
}

// DedupChecker reports the request deduplicator. It is always healthy;
// disabled coalescing is degraded.
type DedupChecker struct {
	group *dedup.Group
}

// NewDedupChecker creates a checker for g.
func NewDedupChecker(g *dedup.Group) *DedupChecker {
	return &DedupChecker{group: g}
}

// Name returns "dedup".
func (c *DedupChecker) Name() string {
	return "dedup"
}

// Check reports the coalescing counters.
func (c *DedupChecker) Check(ctx context.Context) Result {
	stats := c.group.Stats()
	details := map[string]any{
		"leaders":   stats.Leaders,
		"joined":    stats.Joined,
		"in_flight": stats.InFlight,
	}
	if !c.group.Enabled() {
		return Degraded("deduplication disabled").WithDetails(details)
	}
	return Healthy("deduplication enabled").WithDetails(details)
}

var (
	_ Checker = (*BreakerChecker)(nil)
	_ Checker = (*CacheChecker)(nil)
	_ Checker = (*DedupChecker)(nil)
)
