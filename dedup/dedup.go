// Package dedup coalesces concurrent identical upstream calls.
//
// A Group runs at most one call per (resource type, key) at a time. Callers
// that arrive while a call is in flight join it and receive the same value
// or the same error. Nothing is remembered once the call settles; caching
// is the cache package's job and retries belong beneath the coalesced
// function.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ErrUnexpectedType is returned by Coalesce when the call it joined was
// started with a result of another type.
var ErrUnexpectedType = errors.New("dedup: shared result has unexpected type")

// Stats is a snapshot of a Group's counters.
type Stats struct {
	// Leaders counts calls that invoked the function.
	Leaders uint64
	// Joined counts calls served by another caller's in-flight call.
	Joined uint64
	// InFlight is the number of calls currently running.
	InFlight int64
	// Waiting is the number of callers blocked on an in-flight call,
	// leaders included.
	Waiting int64
}

// Group coalesces calls keyed by resource type and key. The zero value is
// not ready for use; call New.
type Group struct {
	sf      singleflight.Group
	enabled atomic.Bool

	leaders  atomic.Uint64
	joined   atomic.Uint64
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New returns an enabled Group.
func New() *Group {
	g := &Group{}
	g.enabled.Store(true)
	return g
}

// Do invokes fn unless a call for the same resource type and key is already
// in flight, in which case it waits for that call's outcome. shared reports
// whether the outcome was delivered to more than one caller.
//
// fn runs on a context that keeps ctx's values but not its cancellation, so
// one caller giving up does not fail the others. A caller whose ctx ends
// first returns ctx.Err() while the call continues for the rest.
func (g *Group) Do(ctx context.Context, resourceType, key string, fn func(context.Context) (any, error)) (v any, err error, shared bool) {
	if !g.Enabled() {
		g.leaders.Add(1)
		v, err = fn(ctx)
		return v, err, false
	}

	var led atomic.Bool
	callCtx := context.WithoutCancel(ctx)

	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	ch := g.sf.DoChan(flightKey(resourceType, key), func() (any, error) {
		led.Store(true)
		g.leaders.Add(1)
		g.inFlight.Add(1)
		defer g.inFlight.Add(-1)
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		if !led.Load() {
			g.joined.Add(1)
		}
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// Coalesce is the typed form of Do. Joining a call started with a result
// of another type yields ErrUnexpectedType rather than a zero value.
func Coalesce[T any](ctx context.Context, g *Group, resourceType, key string, fn func(context.Context) (T, error)) (T, error, bool) {
	v, err, shared := g.Do(ctx, resourceType, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	result, ok := v.(T)
	if err == nil && v != nil && !ok {
		return result, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedType, v, result), shared
	}
	return result, err, shared
}

// Forget detaches the in-flight call for resourceType and key, if any.
// Callers already waiting still receive its outcome; later callers start a
// new call.
func (g *Group) Forget(resourceType, key string) {
	g.sf.Forget(flightKey(resourceType, key))
}

// Enabled reports whether calls are coalesced.
func (g *Group) Enabled() bool {
	return g.enabled.Load()
}

// SetEnabled turns coalescing on or off. While disabled every call invokes
// its function.
func (g *Group) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Stats returns a snapshot of the group's counters.
func (g *Group) Stats() Stats {
	return Stats{
		Leaders:  g.leaders.Load(),
		Joined:   g.joined.Load(),
		InFlight: g.inFlight.Load(),
		Waiting:  g.waiting.Load(),
	}
}

func flightKey(resourceType, key string) string {
	return resourceType + ":" + key
}
