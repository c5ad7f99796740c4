// Package searchengine is the validated search engine: it
// embeds a query, over-fetches semantic candidates, and validates each
// candidate's structural claims against the code graph before ranking, so
// a semantically similar but non-existent method never outranks a real
// one.
package searchengine

import (
	"context"
	"sort"
	"strings"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/embedprovider"
	"github.com/seanblong/codeknow/internal/exec"
	"github.com/seanblong/codeknow/internal/validator"
	"github.com/seanblong/codeknow/internal/vectorstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Mode picks the over-fetch factor and validation concurrency width.
// Wider modes trade latency for more thoroughly validated results.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeThorough Mode = "thorough"
)

// Widths carries the per-mode tuning from configuration: over-fetch
// factors and validation concurrency, one each per mode.
type Widths struct {
	OverFetchFast, OverFetchBalanced, OverFetchThorough       int
	ConcurrencyFast, ConcurrencyBalanced, ConcurrencyThorough int
}

func (w Widths) overFetch(mode Mode) int {
	switch mode {
	case ModeThorough:
		return w.OverFetchThorough
	case ModeBalanced:
		return w.OverFetchBalanced
	default:
		return w.OverFetchFast
	}
}

func (w Widths) concurrency(mode Mode) int {
	switch mode {
	case ModeThorough:
		return w.ConcurrencyThorough
	case ModeBalanced:
		return w.ConcurrencyBalanced
	default:
		return w.ConcurrencyFast
	}
}

// Query is one search_and_validate request.
type Query struct {
	Text          string
	TopK          int
	Filter        vectorstore.Filter
	MinConfidence float64
	Mode          Mode
}

// Result is one ranked, validated hit.
type Result struct {
	CodeExample      codegraph.CodeExamplePayload
	ID               string
	SemanticScore    float64
	StructuralScore  float64
	Combined         float64
	ValidationStatus string
}

// Engine composes the embedding provider, vector store, validator and
// bounded-concurrency executor into search_and_validate.
type Engine struct {
	embed     embedprovider.Client
	store     vectorstore.Store
	validator *validator.Validator
	graphBrk  *breaker.Breaker
	widths    Widths
}

// New builds an Engine. graphBrk is consulted directly (not through the
// validator) so the engine can switch its whole response into degraded
// semantic-only mode, rather than discovering it one per-hit verdict at a
// time.
func New(embed embedprovider.Client, store vectorstore.Store, v *validator.Validator, graphBrk *breaker.Breaker, widths Widths) *Engine {
	return &Engine{embed: embed, store: store, validator: v, graphBrk: graphBrk, widths: widths}
}

// Search embeds the query, over-fetches candidates by mode, validates
// each hit's structural claims, and returns the top results ranked by
// combined confidence.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperr.New(apperr.InvalidInput, "query text must not be empty")
	}
	if q.TopK < 1 || q.TopK > 50 {
		return nil, apperr.New(apperr.InvalidInput, "top_k must be in [1,50]")
	}
	if q.MinConfidence < 0 || q.MinConfidence > 1 {
		return nil, apperr.New(apperr.InvalidInput, "min_confidence must be in [0,1]")
	}
	mode := q.Mode
	if mode == "" {
		mode = ModeBalanced
	}

	vectors, err := e.embed.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.Internal, "embedding provider returned no vector for query")
	}
	queryVector := vectors[0]

	overFetch := e.widths.overFetch(mode)
	if overFetch < 1 {
		overFetch = 1
	}
	hits, err := e.store.Search(ctx, queryVector, q.TopK*overFetch, q.Filter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	degraded := e.graphBrk != nil && e.graphBrk.IsOpen()

	limit, _ := exec.Limit(e.widths.concurrency(mode))
	tasks := make([]exec.Task[Result], len(hits))
	for i, hit := range hits {
		hit := hit
		tasks[i] = func(ctx context.Context) (Result, error) {
			return e.scoreHit(ctx, hit, degraded)
		}
	}
	scored := exec.Run(ctx, limit, tasks)

	results := make([]Result, 0, len(scored))
	for _, r := range scored {
		if r.Err != nil {
			continue
		}
		if r.Value.Combined < q.MinConfidence {
			continue
		}
		results = append(results, r.Value)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		return a.ID < b.ID
	})

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

func (e *Engine) scoreHit(ctx context.Context, hit vectorstore.ScoredPoint, degraded bool) (Result, error) {
	semanticScore := clamp01(hit.Score)

	if degraded {
		return Result{
			CodeExample:      hit.Payload,
			ID:               hit.ID,
			SemanticScore:    semanticScore,
			StructuralScore:  0.5,
			Combined:         0.4*semanticScore + 0.6*0.5,
			ValidationStatus: "degraded",
		}, nil
	}

	refs := refsForHit(hit.Payload)
	var sum float64
	var n int
	for _, ref := range refs {
		verdict, err := e.validator.Validate(ctx, hit.Payload.RepositoryName, ref)
		if err != nil {
			return Result{}, err
		}
		sum += verdict.Confidence
		n++
	}
	structuralScore := 0.5
	if n > 0 {
		structuralScore = sum / float64(n)
	}

	return Result{
		CodeExample:      hit.Payload,
		ID:               hit.ID,
		SemanticScore:    semanticScore,
		StructuralScore:  structuralScore,
		Combined:         0.4*semanticScore + 0.6*structuralScore,
		ValidationStatus: "validated",
	}, nil
}

// refsForHit assembles the validation refs implied by a hit's payload:
// the class if any, the method or function, and the enclosing module as
// an import.
func refsForHit(p codegraph.CodeExamplePayload) []validator.Ref {
	var refs []validator.Ref
	if p.ModuleName != "" {
		refs = append(refs, validator.Ref{Kind: codegraph.RefImport, ModulePath: p.ModuleName})
	}
	switch p.Kind {
	case codegraph.KindClass:
		refs = append(refs, validator.Ref{Kind: codegraph.RefClass, ClassName: p.Name, ModuleHint: p.ModuleName})
	case codegraph.KindMethod:
		if p.ClassName != "" {
			refs = append(refs, validator.Ref{Kind: codegraph.RefClass, ClassName: p.ClassName, ModuleHint: p.ModuleName})
		}
		refs = append(refs, validator.Ref{
			Kind: codegraph.RefMethod, ClassName: p.ClassName, Name: p.Name,
			Argc: len(p.Parameters),
		})
	case codegraph.KindFunction:
		refs = append(refs, validator.Ref{
			Kind: codegraph.RefFunction, Name: p.Name, ModuleHint: p.ModuleName,
			Argc: len(p.Parameters),
		})
	}
	return refs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
