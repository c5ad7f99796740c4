// Package health is the health monitor: it aggregates the
// vector store, graph store and validation cache into a single status
// report callers poll instead of independently probing each dependency.
package health

import (
	"context"

	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/cache"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/vectorstore"
)

// Status is one component's health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Report is the shape status() returns.
type Report struct {
	Components Components `json:"components"`
	Overall    Status     `json:"overall"`
}

// Components is the per-dependency breakdown. Breakers carries the
// current circuit-breaker state per guarded dependency, keyed by the
// dependency name the breaker was registered under.
type Components struct {
	Vector   Status                   `json:"vector"`
	Graph    Status                   `json:"graph"`
	Cache    cache.Stats              `json:"cache"`
	Breakers map[string]breaker.State `json:"breakers,omitempty"`
}

// Monitor composes the dependencies status() reports on.
type Monitor struct {
	vector   vectorstore.Store
	graph    graphstore.Store
	cache    *cache.Cache
	breakers map[string]*breaker.Breaker
}

// New builds a Monitor. breakers may be nil when no dependency is guarded
// by a circuit breaker.
func New(vector vectorstore.Store, graph graphstore.Store, c *cache.Cache, breakers map[string]*breaker.Breaker) *Monitor {
	return &Monitor{vector: vector, graph: graph, cache: c, breakers: breakers}
}

// Status runs both stores' health checks and composes the overall
// verdict: healthy iff both stores are healthy and the cache's hit
// rate sanity-checks non-negative; a degraded vector store is always
// degraded overall, and a degraded graph store alone is degraded too (the
// engine can still serve semantic-only results, but that is a lesser
// guarantee than "healthy").
func (m *Monitor) Status(ctx context.Context) Report {
	vectorStatus := StatusHealthy
	if err := m.vector.Health(ctx); err != nil {
		vectorStatus = StatusDegraded
	}
	graphStatus := StatusHealthy
	if err := m.graph.Health(ctx); err != nil {
		graphStatus = StatusDegraded
	}

	stats := m.cache.StatsSnapshot()
	overall := StatusHealthy
	if vectorStatus == StatusDegraded || graphStatus == StatusDegraded {
		overall = StatusDegraded
	}
	if stats.Hits < 0 || stats.Misses < 0 {
		overall = StatusDegraded
	}

	var breakers map[string]breaker.State
	if len(m.breakers) > 0 {
		breakers = make(map[string]breaker.State, len(m.breakers))
		for name, b := range m.breakers {
			breakers[name] = b.State()
		}
	}

	return Report{
		Components: Components{Vector: vectorStatus, Graph: graphStatus, Cache: stats, Breakers: breakers},
		Overall:    overall,
	}
}
