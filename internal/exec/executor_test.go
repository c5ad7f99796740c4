package exec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPreservesInputOrder(t *testing.T) {
	tasks := make([]Task[int], 10)
	for i := 0; i < 10; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i, nil
		}
	}

	results := Run(context.Background(), 4, tasks)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error at %d: %v", i, r.Err)
		}
		if r.Value != i {
			t.Errorf("expected result %d at index %d, got %d", i, i, r.Value)
		}
	}
}

func TestRunIsolatesPerTaskFailures(t *testing.T) {
	errBoom := errors.New("boom")
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, errBoom },
		func(ctx context.Context) (int, error) { return 3, nil },
	}

	results := Run(context.Background(), 2, tasks)
	if results[0].Err != nil || results[0].Value != 1 {
		t.Errorf("expected task 0 to succeed, got %+v", results[0])
	}
	if results[1].Err != errBoom {
		t.Errorf("expected task 1 to carry errBoom, got %+v", results[1])
	}
	if results[2].Err != nil || results[2].Value != 3 {
		t.Errorf("expected task 2 to succeed despite task 1's failure, got %+v", results[2])
	}
}

func TestRunNeverExceedsConcurrencyLimit(t *testing.T) {
	const limit = 3
	var inFlight int32
	var peak int32

	tasks := make([]Task[struct{}], 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return struct{}{}, nil
		}
	}

	Run(context.Background(), limit, tasks)

	if peak > limit {
		t.Errorf("expected peak in-flight <= %d, got %d", limit, peak)
	}
}

func TestRunClampsLimitIntoRange(t *testing.T) {
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
	}
	// Out-of-range limits must not panic or deadlock; they clamp.
	if results := Run(context.Background(), 0, tasks); results[0].Value != 1 {
		t.Errorf("expected clamp to 1 to still run the task")
	}
	if results := Run(context.Background(), 999, tasks); results[0].Value != 1 {
		t.Errorf("expected clamp to 20 to still run the task")
	}
}

func TestRunEmptyTasksReturnsEmptyResults(t *testing.T) {
	results := Run[int](context.Background(), 5, nil)
	if len(results) != 0 {
		t.Errorf("expected empty results, got %+v", results)
	}
}

func TestLimitValidatesRange(t *testing.T) {
	if _, err := Limit(0); err == nil {
		t.Errorf("expected error for 0")
	}
	if _, err := Limit(21); err == nil {
		t.Errorf("expected error for 21")
	}
	if n, err := Limit(10); err != nil || n != 10 {
		t.Errorf("expected 10, nil, got %d, %v", n, err)
	}
}
