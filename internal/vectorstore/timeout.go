package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/seanblong/codeknow/internal/apperr"
)

// timeoutStore applies a per-call deadline to every unary store call,
// surfacing expiry as DependencyTimeout so circuit-breaker accounting
// counts it as a failure. Scroll is exempt: a streaming sweep runs under
// the caller's own deadline, and cutting it off per page would corrupt
// the cursor mid-iteration.
type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout wraps store so every unary call observes the given per-call
// deadline. A non-positive timeout returns store unchanged.
func WithTimeout(store Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{inner: store, timeout: timeout}
}

func (s *timeoutStore) Upsert(ctx context.Context, points []Point) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return timeoutErr(s.inner.Upsert(ctx, points))
}

func (s *timeoutStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.inner.Search(ctx, vector, topK, filter)
	return out, timeoutErr(err)
}

func (s *timeoutStore) Scroll(ctx context.Context, filter Filter, pageSize int) (ScrollCursor, error) {
	return s.inner.Scroll(ctx, filter, pageSize)
}

func (s *timeoutStore) Delete(ctx context.Context, filter Filter) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return timeoutErr(s.inner.Delete(ctx, filter))
}

func (s *timeoutStore) Count(ctx context.Context, filter Filter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.inner.Count(ctx, filter)
	return n, timeoutErr(err)
}

func (s *timeoutStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return timeoutErr(s.inner.Health(ctx))
}

func timeoutErr(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.DependencyTimeout, "vector store call deadline expired", err)
	}
	return err
}

var _ Store = (*timeoutStore)(nil)
