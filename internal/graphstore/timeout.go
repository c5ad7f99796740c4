package graphstore

import (
	"context"
	"errors"
	"time"

	"github.com/seanblong/codeknow/internal/apperr"
)

// timeoutStore applies a per-call deadline to every unary graph query,
// surfacing expiry as DependencyTimeout so circuit-breaker accounting
// counts it as a failure. The extraction sweep is exempt: it streams
// potentially large result sets under the caller's own deadline, and a
// per-call cutoff would kill the session mid-stream.
type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout wraps store so every unary query observes the given per-call
// deadline. A non-positive timeout returns store unchanged.
func WithTimeout(store Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{inner: store, timeout: timeout}
}

func (s *timeoutStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	found, err := s.inner.Exists(ctx, repositoryName)
	return found, timeoutErr(err)
}

func (s *timeoutStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	found, err := s.inner.ClassExists(ctx, repositoryName, className)
	return found, timeoutErr(err)
}

func (s *timeoutStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (MethodExistence, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	existence, err := s.inner.MethodExists(ctx, repositoryName, className, methodName)
	return existence, timeoutErr(err)
}

func (s *timeoutStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (FunctionExistence, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	existence, err := s.inner.FunctionExists(ctx, repositoryName, functionName)
	return existence, timeoutErr(err)
}

func (s *timeoutStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (ExtractionCursor, error) {
	return s.inner.ListClassesMethodsFunctions(ctx, repositoryName)
}

func (s *timeoutStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	names, err := s.inner.NearestNames(ctx, repositoryName, scope, target, limit)
	return names, timeoutErr(err)
}

func (s *timeoutStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return timeoutErr(s.inner.Health(ctx))
}

func timeoutErr(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.DependencyTimeout, "graph query deadline expired", err)
	}
	return err
}

var _ Store = (*timeoutStore)(nil)
