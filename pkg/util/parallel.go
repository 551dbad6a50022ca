package util

import (
	"context"
	"sync"
	"sync/atomic"
)

// Parallel runs fn over inputs with at most workerLimit goroutines. The first
// error cancels the context passed to the remaining calls and is returned.
func Parallel[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	workers := min(max(workerLimit, 1), len(inputs))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var next atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := int(next.Add(1)) - 1
				if i >= len(inputs) {
					return
				}
				if err := fn(ctx, inputs[i]); err != nil {
					cancel(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}
