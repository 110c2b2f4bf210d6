package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/dedup"
	"github.com/Coastal-Programs/notion-cli-sub005/observe"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

type page struct {
	ID    string
	Title string
}

// testClock is a manually advanced clock shared by the store and breaker.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	f      *Fetcher
	store  *cache.Store
	group  *dedup.Group
	clock  *testClock
	logs   *observer.ObservedLogs
	delays func() []time.Duration
}

// newFixture builds a Fetcher with a clocked store, a dedup group, a
// zero-jitter retry policy whose sleeps are recorded instead of waited,
// and an observed zap logger. extra options apply last.
func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()
	clock := newTestClock()
	store := cache.NewStore(cache.DefaultConfig(), cache.WithClock(clock.Now))
	group := dedup.New()

	var mu sync.Mutex
	var delays []time.Duration
	retry := resilience.DefaultRetryConfig()
	retry.JitterFactor = 0
	retry.Sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	core, logs := observer.New(zapcore.DebugLevel)

	opts := append([]Option{
		WithCache(store),
		WithDeduplicator(group),
		WithRetryConfig(retry),
		WithLogger(observe.NewZapLogger(zap.New(core))),
	}, extra...)

	return &fixture{
		f:     New(opts...),
		store: store,
		group: group,
		clock: clock,
		logs:  logs,
		delays: func() []time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return append([]time.Duration(nil), delays...)
		},
	}
}

// counted wraps fn and counts its invocations.
func counted[T any](fn func(ctx context.Context) (T, error)) (func(context.Context) (T, error), *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (T, error) {
		calls.Add(1)
		return fn(ctx)
	}, &calls
}

// TestFetch_RetryAfterHonoredThenCached fetches a page whose first two
// attempts are throttled with a 2s Retry-After.
func TestFetch_RetryAfterHonoredThenCached(t *testing.T) {
	fx := newFixture(t)

	throttled := &resilience.APIError{StatusCode: 429, Code: "rate_limited", RetryAfter: 2 * time.Second}
	attempt := 0
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		attempt++
		if attempt <= 2 {
			return nil, throttled
		}
		return &page{ID: "p1"}, nil
	})

	got, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ID != "p1" {
		t.Errorf("Fetch() = %+v, want id p1", got)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}

	delays := fx.delays()
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [2s 2s]", delays)
	}
	if n := fx.logs.FilterMessage("retrying upstream call").Len(); n != 2 {
		t.Errorf("retry log entries = %d, want 2", n)
	}

	// Cached with the page TTL of one minute.
	fx.clock.Advance(59 * time.Second)
	if v, ok := fx.store.Get(cache.Page, "p1"); !ok || v.(*page) != got {
		t.Errorf("cache should hold the fetched page just before the TTL, got %v %v", v, ok)
	}
	fx.clock.Advance(time.Second)
	if _, ok := fx.store.Get(cache.Page, "p1"); ok {
		t.Error("cache entry should expire at the page TTL")
	}
}

func TestFetch_CacheHitSkipsUpstream(t *testing.T) {
	fx := newFixture(t)
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return &page{ID: "p1", Title: "Roadmap"}, nil
	})

	first, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	second, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if first != second {
		t.Error("cache hit should return the stored value")
	}
	if s := fx.f.Stats().Cache; s.Hits != 1 || s.Misses != 1 {
		t.Errorf("cache stats = %+v, want 1 hit 1 miss", s)
	}
}

// waitForWaiting blocks until n callers are parked on the dedup group.
func waitForWaiting(t *testing.T, g *dedup.Group, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.Stats().Waiting < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d callers waiting, want %d", g.Stats().Waiting, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFetch_ConcurrentCallersShareOneCall(t *testing.T) {
	fx := newFixture(t)
	release := make(chan struct{})
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		<-release
		return &page{ID: "p1"}, nil
	})

	const callers = 10
	results := make([]*page, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
		}(i)
	}

	waitForWaiting(t, fx.group, callers)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different result", i)
		}
	}
	if s := fx.group.Stats(); s.Leaders != 1 || s.Joined != callers-1 {
		t.Errorf("dedup stats = %+v, want 1 leader %d joined", s, callers-1)
	}
}

func TestFetch_ConcurrentCallersShareOneError(t *testing.T) {
	fx := newFixture(t)
	release := make(chan struct{})
	denied := &resilience.APIError{StatusCode: 403, Code: "restricted_resource"}
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		<-release
		return nil, denied
	})

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
		}(i)
	}

	waitForWaiting(t, fx.group, callers)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	for i, err := range errs {
		if err != denied {
			t.Errorf("caller %d error = %v, want the identical upstream error", i, err)
		}
	}
}

func TestFetch_ClientErrorReturnedUnwrapped(t *testing.T) {
	fx := newFixture(t)
	invalid := &resilience.APIError{StatusCode: 400, Code: "validation_error", Message: "bad id"}
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return nil, invalid
	})

	_, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != invalid {
		t.Fatalf("Fetch() error = %v, want the upstream error itself", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if len(fx.delays()) != 0 {
		t.Errorf("delays = %v, want none", fx.delays())
	}

	// Failures are never cached.
	_, _ = Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if calls.Load() != 2 {
		t.Errorf("calls after second fetch = %d, want 2", calls.Load())
	}
}

func TestFetch_ServerErrorsRetriedThenSucceed(t *testing.T) {
	fx := newFixture(t)
	attempt := 0
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		attempt++
		if attempt <= 3 {
			return nil, &resilience.APIError{StatusCode: 500}
		}
		return &page{ID: "p1"}, nil
	})

	if _, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	got := fx.delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFetch_WithRetryOverride(t *testing.T) {
	fx := newFixture(t)
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return nil, &resilience.APIError{StatusCode: 502}
	})

	_, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn,
		WithRetry(func(c *resilience.RetryConfig) { c.MaxRetries = 1 }))
	if err == nil {
		t.Fatal("Fetch() should fail")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if fx.f.RetryConfig().MaxRetries != 3 {
		t.Error("call override must not change the Fetcher's policy")
	}
}

func TestFetch_BreakerShedsAfterThreshold(t *testing.T) {
	fx := newFixture(t,
		WithBreakerConfig(resilience.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}),
	)
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return nil, &resilience.APIError{StatusCode: 503}
	})
	noRetry := WithRetry(func(c *resilience.RetryConfig) { c.MaxRetries = 0 })

	for i := 0; i < 2; i++ {
		_, _ = Fetch(context.Background(), fx.f, cache.Block, "b1", fn, noRetry)
	}
	if got := fx.f.CircuitBreaker().State(); got != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	_, err := Fetch(context.Background(), fx.f, cache.Block, "b1", fn, noRetry)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Fetch() error = %v, want ErrCircuitOpen", err)
	}
	var open *resilience.CircuitOpenError
	if !errors.As(err, &open) {
		t.Errorf("Fetch() error should be a *CircuitOpenError, got %T", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, open breaker should not call upstream", calls.Load())
	}
	if n := fx.logs.FilterMessage("circuit breaker opened").Len(); n != 1 {
		t.Errorf("breaker log entries = %d, want 1", n)
	}
}

func TestFetch_SkipCacheRefreshes(t *testing.T) {
	fx := newFixture(t)
	version := 0
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		version++
		return &page{ID: "p1", Title: string(rune('A' + version - 1))}, nil
	})

	_, _ = Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	fresh, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn, SkipCache())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if fresh.Title != "B" {
		t.Errorf("Title = %q, want B", fresh.Title)
	}

	cached, _ := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if cached != fresh {
		t.Error("skip-cache result should replace the cached value")
	}
}

func TestFetch_WithTTL(t *testing.T) {
	fx := newFixture(t)
	fn := func(ctx context.Context) (string, error) { return "alice", nil }

	if _, err := Fetch(context.Background(), fx.f, cache.User, "u1", fn, WithTTL(5*time.Second)); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	fx.clock.Advance(4 * time.Second)
	if _, ok := fx.store.Get(cache.User, "u1"); !ok {
		t.Error("entry should be live before the explicit TTL")
	}
	fx.clock.Advance(time.Second)
	if _, ok := fx.store.Get(cache.User, "u1"); ok {
		t.Error("entry should expire at the explicit TTL, not the user TTL")
	}
}

func TestFetch_CachedValueOfOtherTypeIsAMiss(t *testing.T) {
	fx := newFixture(t)
	fx.store.Set(cache.Page, "p1", "not a page")

	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return &page{ID: "p1"}, nil
	})
	got, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got == nil || calls.Load() != 1 {
		t.Errorf("Fetch() = %v with %d calls, want a fresh page", got, calls.Load())
	}
	if n := fx.logs.FilterMessage("cached value has unexpected type, refetching").Len(); n != 1 {
		t.Errorf("type mismatch log entries = %d, want 1", n)
	}
}

func TestFetch_SharedResultOfOtherTypeIsRefetched(t *testing.T) {
	fx := newFixture(t)
	release := make(chan struct{})
	pageFn, pageCalls := counted(func(ctx context.Context) (*page, error) {
		<-release
		return &page{ID: "p1"}, nil
	})
	rawFn, rawCalls := counted(func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"id": "p1"}, nil
	})

	leaderDone := make(chan error, 1)
	go func() {
		_, err := Fetch(context.Background(), fx.f, cache.Page, "p1", pageFn)
		leaderDone <- err
	}()
	waitForWaiting(t, fx.group, 1)

	type rawResult struct {
		v   map[string]any
		err error
	}
	joined := make(chan rawResult, 1)
	go func() {
		v, err := Fetch(context.Background(), fx.f, cache.Page, "p1", rawFn)
		joined <- rawResult{v, err}
	}()
	waitForWaiting(t, fx.group, 2)
	close(release)

	if err := <-leaderDone; err != nil {
		t.Fatalf("leader Fetch() error = %v", err)
	}
	got := <-joined
	if got.err != nil {
		t.Fatalf("joiner Fetch() error = %v", got.err)
	}
	if got.v == nil || got.v["id"] != "p1" {
		t.Errorf("joiner Fetch() = %v, want its own result", got.v)
	}
	if pageCalls.Load() != 1 || rawCalls.Load() != 1 {
		t.Errorf("calls = %d page, %d raw, want 1 each", pageCalls.Load(), rawCalls.Load())
	}
	if n := fx.logs.FilterMessage("shared result has unexpected type, refetching").Len(); n != 1 {
		t.Errorf("type mismatch log entries = %d, want 1", n)
	}
}

func TestFetch_InvalidatedWhileInFlightIsNotCached(t *testing.T) {
	fx := newFixture(t)
	release := make(chan struct{})
	version := "before write"
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		<-release
		return &page{ID: "p1", Title: version}, nil
	})

	done := make(chan *page, 1)
	go func() {
		p, _ := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
		done <- p
	}()
	waitForWaiting(t, fx.group, 1)

	fx.f.Invalidate(cache.Page, "p1")
	close(release)

	if p := <-done; p == nil || p.Title != "before write" {
		t.Fatalf("in-flight Fetch() = %+v, want its result returned", p)
	}
	if _, ok := fx.store.Get(cache.Page, "p1"); ok {
		t.Error("result of a call invalidated in flight should not be cached")
	}

	version = "after write"
	got, err := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Title != "after write" || calls.Load() != 2 {
		t.Errorf("Fetch() = %+v after %d calls, want a fresh read", got, calls.Load())
	}
	if _, ok := fx.store.Get(cache.Page, "p1"); !ok {
		t.Error("a read started after the invalidation should be cached")
	}
}

func TestFetch_InvalidKey(t *testing.T) {
	fx := newFixture(t)
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		return &page{}, nil
	})

	if _, err := Fetch(context.Background(), fx.f, cache.Page, "  ", fn); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Fetch() error = %v, want ErrInvalidKey", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid key must not reach upstream")
	}
}

func TestFetch_NoComponents(t *testing.T) {
	f := New(WithRetryConfig(resilience.RetryConfig{MaxRetries: 0}))
	fn, calls := counted(func(ctx context.Context) (int, error) {
		return 42, nil
	})

	for i := 0; i < 3; i++ {
		got, err := Fetch(context.Background(), f, cache.Database, "d1", fn)
		if err != nil || got != 42 {
			t.Fatalf("Fetch() = %v, %v", got, err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 without a cache", calls.Load())
	}
	if s := f.Stats(); s.Breaker != nil {
		t.Error("Stats().Breaker should be nil without a breaker")
	}
}

func TestFetch_CancelledCallerDoesNotAbortSharedCall(t *testing.T) {
	fx := newFixture(t)
	release := make(chan struct{})
	fn, calls := counted(func(ctx context.Context) (*page, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &page{ID: "p1"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, fx.f, cache.Page, "p1", fn)
		leaderErr <- err
	}()
	waitForWaiting(t, fx.group, 1)

	joined := make(chan *page, 1)
	go func() {
		p, _ := Fetch(context.Background(), fx.f, cache.Page, "p1", fn)
		joined <- p
	}()
	waitForWaiting(t, fx.group, 2)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(release)

	if p := <-joined; p == nil || p.ID != "p1" {
		t.Errorf("joined caller got %v, want page p1", p)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
