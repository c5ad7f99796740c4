// Package exec is the bounded concurrency executor: it runs a sequence of
// tasks with at most N in flight at a time and collects results preserving
// input order, isolating per-task failures from one another.
package exec

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/seanblong/codeknow/internal/apperr"
)

// Result is one task's outcome, aligned by index with its input.
type Result[T any] struct {
	Value T
	Err   error
}

// Task is a single unit of work submitted to Run.
type Task[T any] func(ctx context.Context) (T, error)

// Run executes tasks with at most limit concurrently in flight. limit is
// clamped into [1,20]; results are returned in the same order
// as tasks regardless of completion order, and a single task's error never
// aborts the others — ctx cancellation is the only thing that does.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []Result[T] {
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			v, err := task(gctx)
			results[i] = Result[T]{Value: v, Err: err}
			return nil
		})
	}
	// g.Wait's error is always nil: task errors are captured per-index above,
	// never returned to the group, so a failing task can't cancel gctx and
	// abort its siblings.
	_ = g.Wait()
	return results
}

// Limit validates a requested concurrency width against the [1,20] range,
// returning an InvalidInput error for callers that accept it from the
// outside (as opposed to internal mode-derived widths, which are always
// already in range).
func Limit(n int) (int, error) {
	if n < 1 || n > 20 {
		return 0, apperr.New(apperr.InvalidInput, "concurrency must be in [1,20]")
	}
	return n, nil
}
