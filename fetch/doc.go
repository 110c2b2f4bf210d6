// Package fetch is the entry point of the data-access layer.
//
// A Fetcher answers reads from the cache when it can and otherwise makes one
// upstream call per resource, shared by every concurrent caller, behind the
// circuit breaker, the retry engine and the rate limiter:
//
//	cache hit? -> return
//	dedup(type, key) -> breaker -> retry -> rate limiter -> fn
//	success -> cache set
//
// Errors come back exactly as the upstream function or the resilience layer
// produced them. Writes go through Mutate, which invalidates the affected
// cache entries only after the write succeeds.
//
//	cfg, err := config.FromEnv()
//	...
//	f, err := fetch.NewFromConfig(cfg, obs)
//	page, err := fetch.Fetch(ctx, f, cache.Page, id, func(ctx context.Context) (*Page, error) {
//	    return client.GetPage(ctx, id)
//	})
//
// A caller that joins an in-flight call gets that call's outcome even if the
// breaker opens while it waits; only calls that start after the breaker
// opened are rejected with resilience.ErrCircuitOpen.
package fetch
