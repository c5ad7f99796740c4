// Package breaker is the circuit breaker: one instance guards
// each dependency (vector store, graph store), short-circuiting calls while
// the dependency is unhealthy instead of letting every caller pay its
// timeout.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/seanblong/codeknow/internal/apperr"
)

// Config holds the breaker's two knobs.
type Config struct {
	Name              string
	FailureThreshold  uint32
	Cooldown          time.Duration
}

// Breaker wraps a gobreaker.CircuitBreaker[any] so callers never import
// gobreaker directly; State() exposes the three states for health
// reporting.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// New builds a Breaker. Consecutive failures reaching FailureThreshold trip
// it Open; after Cooldown it allows exactly one trial call (HalfOpen) via
// gobreaker's own HalfOpen single-trial semantics.
func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Do runs fn through the breaker. When the breaker is Open, fn is never
// invoked and a DependencyUnavailable error is returned immediately.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, apperr.Wrap(apperr.DependencyUnavailable, "circuit open for "+b.cb.Name(), err)
		}
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// State is the breaker's three-state vocabulary.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// State returns the breaker's current state for health reporting.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// IsOpen is a convenience check used by the Validator and Search Engine to
// decide on degraded-mode fallback without comparing strings.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}
