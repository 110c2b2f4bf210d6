package health

import (
	"context"
	"fmt"
	"testing"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

func BenchmarkBreakerChecker_Check(b *testing.B) {
	checker := NewBreakerChecker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

func BenchmarkCacheChecker_Check(b *testing.B) {
	checker := NewCacheChecker(cache.NewStore(cache.DefaultConfig()))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

func benchmarkCheckAll(b *testing.B, parallel bool) {
	agg := NewAggregator(AggregatorConfig{Parallel: parallel})
	for i := 0; i < 5; i++ {
		agg.Register(healthyFunc(fmt.Sprintf("check%d", i)))
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.CheckAll(ctx)
	}
}

// BenchmarkAggregator_CheckAll_Sequential measures sequential check aggregation.
func BenchmarkAggregator_CheckAll_Sequential(b *testing.B) { benchmarkCheckAll(b, false) }

// BenchmarkAggregator_CheckAll_Parallel measures parallel check aggregation.
func BenchmarkAggregator_CheckAll_Parallel(b *testing.B) { benchmarkCheckAll(b, true) }

func BenchmarkOverallStatus(b *testing.B) {
	results := map[string]Result{
		"breaker": Healthy("ok"),
		"cache":   Degraded("disabled"),
		"dedup":   Healthy("ok"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = OverallStatus(results)
	}
}
