// Package pipeline runs per-frame work concurrently and hands the results to
// a single consumer in strict index order.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/photoreel/config"
	apperrors "github.com/Skryldev/photoreel/errors"
)

// Concurrency resolves how many tasks may be admitted at once.  An explicit
// worker count wins; otherwise one core (two for background work) is left
// to the rest of the system.
func Concurrency(workers int, priority config.Priority) int {
	if workers > 0 {
		return workers
	}
	headroom := 1
	if priority == config.PriorityBackground {
		headroom = 2
	}
	return max(runtime.NumCPU()-headroom, 1)
}

// Ordered runs N tasks with at most Limit admitted-but-unconsumed results at
// any time.  A task for index i is only started while i < next+Limit, where
// next is the lowest index not yet consumed.
type Ordered[T any] struct {
	Limit int
	// Task produces the value for index.  It must honour ctx.
	Task func(ctx context.Context, index int) (T, error)
	// Consume receives values strictly in index order from one goroutine.
	// It takes ownership of v even when it returns an error.
	Consume func(ctx context.Context, index int, v T) error
	// Discard receives every produced value that was never consumed.
	Discard func(index int, v T)
	// Progress, when set, is called after each successful Consume.
	Progress func(consumed, total int)
}

type indexed[T any] struct {
	index int
	value T
}

// Run executes indices 0..n-1.  The first failure cancels everything still
// running; the returned error carries the failing index when known.
func (o *Ordered[T]) Run(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	limit := max(o.Limit, 1)

	g, gctx := errgroup.WithContext(ctx)
	// One token per admitted, not yet consumed index.
	window := make(chan struct{}, limit)
	// Never blocks: at most limit results are outstanding.
	results := make(chan indexed[T], limit)

	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case <-gctx.Done():
				return nil
			case window <- struct{}{}:
			}
			i := i
			g.Go(func() error {
				v, err := o.Task(gctx, i)
				if err != nil {
					return apperrors.AtIndex(i, apperrors.CategoryPipeline, "pipeline.task", err)
				}
				results <- indexed[T]{index: i, value: v}
				return nil
			})
		}
		return nil
	})

	pending := make(map[int]T, limit)
	g.Go(func() error {
		next := 0
		for next < n {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case r := <-results:
				pending[r.index] = r.value
			}
			for {
				v, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := gctx.Err(); err != nil {
					o.discard(next, v)
					return err
				}
				if err := o.Consume(gctx, next, v); err != nil {
					return apperrors.AtIndex(next, apperrors.CategoryEncode, "pipeline.consume", err)
				}
				next++
				<-window
				if o.Progress != nil {
					o.Progress(next, n)
				}
			}
		}
		return nil
	})

	err := g.Wait()
	close(results)
	for r := range results {
		o.discard(r.index, r.value)
	}
	for i, v := range pending {
		o.discard(i, v)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "pipeline.run", err)
	}
	return nil
}

func (o *Ordered[T]) discard(index int, v T) {
	if o.Discard != nil {
		o.Discard(index, v)
	}
}
