package resilience

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the group size used by ExecuteBatch when the
// requested concurrency is not positive.
const DefaultBatchConcurrency = 5

// BatchResult is the outcome of one operation in a batch.
type BatchResult[T any] struct {
	Value T
	Err   error
}

// ExecuteBatch runs ops through r in fixed-size groups of concurrency
// operations. Each group completes before the next starts. Results are
// returned in input order; individual failures never abort the batch.
// A nil r runs each operation once.
func ExecuteBatch[T any](ctx context.Context, ops []func(context.Context) (T, error), concurrency int, r *Retry) []BatchResult[T] {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make([]BatchResult[T], len(ops))
	for start := 0; start < len(ops); start += concurrency {
		end := min(start+concurrency, len(ops))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				var v T
				var err error
				if r != nil {
					v, err = Do(ctx, r, ops[i])
				} else {
					v, err = ops[i](ctx)
				}
				results[i] = BatchResult[T]{Value: v, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}
