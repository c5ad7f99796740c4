// Package vectorstore is the vector store abstraction: upsert
// and search CodeExample points with structured payload filters, backed by
// either Postgres+pgvector or Qdrant. Call sites only ever see the Store
// capability set; the backend is a variant tag chosen at construction time.
package vectorstore

import (
	"context"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Point is one vector-store record: a CodeExample reduced to what upsert
// needs.
type Point struct {
	ID      string
	Vector  []float32
	Payload codegraph.CodeExamplePayload
}

// ScoredPoint is a Point returned from Search with its similarity score,
// normalised into [0,1].
type ScoredPoint struct {
	Point
	Score float64
}

// Filter is a conjunction of equality constraints over payload keys. A zero
// value (empty map) matches everything.
type Filter map[string]string

// ScrollCursor streams payloads matching a filter, page by page. Backends
// hide their native pagination token behind this type.
type ScrollCursor interface {
	// Next advances the cursor. It returns ok=false once exhausted.
	Next(ctx context.Context) (Point, bool, error)
	Close() error
}

// Store is the capability set every vector-store backend implements.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error)
	Scroll(ctx context.Context, filter Filter, pageSize int) (ScrollCursor, error)
	Delete(ctx context.Context, filter Filter) error
	Count(ctx context.Context, filter Filter) (int, error)
	Health(ctx context.Context) error
}

// Backend names the concrete implementation behind a Store, surfaced for
// diagnostics and the health monitor.
type Backend string

const (
	BackendPgvector Backend = "pgvector"
	BackendQdrant   Backend = "qdrant"
)
