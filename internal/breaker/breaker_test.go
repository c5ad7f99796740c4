package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seanblong/codeknow/internal/apperr"
)

var errBoom = errors.New("boom")

func fails(ctx context.Context) (int, error) { return 0, errBoom }
func succeeds(ctx context.Context) (int, error) { return 1, nil }

func TestClosedPassesCallsThrough(t *testing.T) {
	b := New(Config{Name: "graph", FailureThreshold: 3, Cooldown: time.Hour})

	v, err := Do(context.Background(), b, succeeds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestConsecutiveFailuresTripOpen(t *testing.T) {
	b := New(Config{Name: "graph", FailureThreshold: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := Do(context.Background(), b, fails); err == nil {
			t.Fatalf("expected failure on call %d", i)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 consecutive failures, got %s", b.State())
	}
	if !b.IsOpen() {
		t.Errorf("expected IsOpen true")
	}
}

func TestOpenShortCircuitsWithoutInvokingFn(t *testing.T) {
	b := New(Config{Name: "graph", FailureThreshold: 1, Cooldown: time.Hour})

	if _, err := Do(context.Background(), b, fails); err == nil {
		t.Fatalf("expected the tripping call to fail")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := Do(context.Background(), b, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Fatalf("expected fn not to be invoked while open")
	}
	if !apperr.Is(err, apperr.DependencyUnavailable) {
		t.Errorf("expected DependencyUnavailable, got %v", err)
	}
}

func TestHalfOpenSuccessClosesBreaker(t *testing.T) {
	b := New(Config{Name: "graph", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	if _, err := Do(context.Background(), b, fails); err == nil {
		t.Fatalf("expected tripping failure")
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := Do(context.Background(), b, succeeds); err != nil {
		t.Fatalf("expected trial call to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after half-open success, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{Name: "graph", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	if _, err := Do(context.Background(), b, fails); err == nil {
		t.Fatalf("expected tripping failure")
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := Do(context.Background(), b, fails); err == nil {
		t.Fatalf("expected trial call to fail")
	}
	if b.State() != StateOpen {
		t.Errorf("expected open after half-open failure, got %s", b.State())
	}
}
