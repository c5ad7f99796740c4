package searchengine

import (
	"context"
	"testing"
	"time"

	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/cache"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/validator"
	"github.com/seanblong/codeknow/internal/vectorstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

type stubEmbedder struct{ dim int }

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}
func (s stubEmbedder) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	return "", nil
}
func (s stubEmbedder) Dim() int { return s.dim }

type fakeVectorStore struct {
	hits []vectorstore.ScoredPoint
}

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) Scroll(ctx context.Context, filter vectorstore.Filter, pageSize int) (vectorstore.ScrollCursor, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, filter vectorstore.Filter) error { return nil }
func (f *fakeVectorStore) Count(ctx context.Context, filter vectorstore.Filter) (int, error) {
	return len(f.hits), nil
}
func (f *fakeVectorStore) Health(ctx context.Context) error { return nil }

type fakeGraphStore struct{}

func (f *fakeGraphStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	return true, nil
}
func (f *fakeGraphStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	return true, nil
}
func (f *fakeGraphStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (graphstore.MethodExistence, error) {
	return graphstore.MethodExistence{Found: true}, nil
}
func (f *fakeGraphStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (graphstore.FunctionExistence, error) {
	return graphstore.FunctionExistence{Found: true}, nil
}
func (f *fakeGraphStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (graphstore.ExtractionCursor, error) {
	return nil, nil
}
func (f *fakeGraphStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeGraphStore) Health(ctx context.Context) error { return nil }

func widths() Widths {
	return Widths{
		OverFetchFast: 1, OverFetchBalanced: 2, OverFetchThorough: 4,
		ConcurrencyFast: 2, ConcurrencyBalanced: 6, ConcurrencyThorough: 10,
	}
}

func TestSearchRejectsInvalidInput(t *testing.T) {
	e := New(stubEmbedder{dim: 4}, &fakeVectorStore{}, nil, nil, widths())

	cases := []struct {
		name string
		q    Query
	}{
		{"empty text", Query{Text: "", TopK: 5}},
		{"blank text", Query{Text: "   ", TopK: 5}},
		{"top_k zero", Query{Text: "x", TopK: 0}},
		{"top_k too large", Query{Text: "x", TopK: 51}},
		{"min_confidence negative", Query{Text: "x", TopK: 5, MinConfidence: -0.1}},
		{"min_confidence too large", Query{Text: "x", TopK: 5, MinConfidence: 1.1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.Search(context.Background(), c.q); err == nil {
				t.Errorf("expected an error for %+v", c.q)
			}
		})
	}
}

func TestSearchEmptyStoresReturnsEmptyNoError(t *testing.T) {
	e := New(stubEmbedder{dim: 4}, &fakeVectorStore{}, nil, nil, widths())
	results, err := e.Search(context.Background(), Query{Text: "anything", TopK: 5, Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchDegradedModeUsesUniformStructuralScore(t *testing.T) {
	hits := []vectorstore.ScoredPoint{
		{Point: vectorstore.Point{ID: "a", Payload: codegraph.CodeExamplePayload{Kind: codegraph.KindFunction, Name: "f1"}}, Score: 0.9},
		{Point: vectorstore.Point{ID: "b", Payload: codegraph.CodeExamplePayload{Kind: codegraph.KindFunction, Name: "f2"}}, Score: 0.7},
		{Point: vectorstore.Point{ID: "c", Payload: codegraph.CodeExamplePayload{Kind: codegraph.KindFunction, Name: "f3"}}, Score: 0.5},
	}
	store := &fakeVectorStore{hits: hits}

	c := cache.New(cache.Config{MaxEntries: 10, TTL: time.Minute})
	brk := breaker.New(breaker.Config{Name: "graph", FailureThreshold: 1, Cooldown: time.Hour})
	v := validator.New(&fakeGraphStore{}, c, brk)

	// Trip the breaker open by routing one failing call through it before
	// searching for real.
	failStore := &failingGraphStore{}
	failingValidator := validator.New(failStore, cache.New(cache.Config{MaxEntries: 10, TTL: time.Minute}), brk)
	_, _ = failingValidator.Validate(context.Background(), "repo", validator.Ref{Kind: codegraph.RefImport, ModulePath: "x"})

	e := New(stubEmbedder{dim: 4}, store, v, brk, widths())
	results, err := e.Search(context.Background(), Query{Text: "anything", TopK: 3, MinConfidence: 0.0, Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	want := []float64{0.66, 0.58, 0.50}
	for i, r := range results {
		if r.ValidationStatus != "degraded" {
			t.Errorf("result %d: expected degraded status, got %q", i, r.ValidationStatus)
		}
		if r.StructuralScore != 0.5 {
			t.Errorf("result %d: expected structural score 0.5, got %v", i, r.StructuralScore)
		}
		if diff := r.Combined - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("result %d: expected combined %v, got %v", i, want[i], r.Combined)
		}
	}
}

type failingGraphStore struct{}

func (failingGraphStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	return false, errFail{}
}
func (failingGraphStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	return false, errFail{}
}
func (failingGraphStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (graphstore.MethodExistence, error) {
	return graphstore.MethodExistence{}, errFail{}
}
func (failingGraphStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (graphstore.FunctionExistence, error) {
	return graphstore.FunctionExistence{}, errFail{}
}
func (failingGraphStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (graphstore.ExtractionCursor, error) {
	return nil, errFail{}
}
func (failingGraphStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	return nil, errFail{}
}
func (failingGraphStore) Health(ctx context.Context) error { return errFail{} }

type errFail struct{}

func (errFail) Error() string { return "boom" }

func TestSearchDropsResultsBelowMinConfidence(t *testing.T) {
	hits := []vectorstore.ScoredPoint{
		{Point: vectorstore.Point{ID: "a", Payload: codegraph.CodeExamplePayload{Kind: codegraph.KindFunction, Name: "f1"}}, Score: 0.9},
		{Point: vectorstore.Point{ID: "b", Payload: codegraph.CodeExamplePayload{Kind: codegraph.KindFunction, Name: "f2"}}, Score: 0.1},
	}
	store := &fakeVectorStore{hits: hits}
	c := cache.New(cache.Config{MaxEntries: 10, TTL: time.Minute})
	brk := breaker.New(breaker.Config{Name: "graph", FailureThreshold: 5, Cooldown: time.Minute})
	v := validator.New(&fakeGraphStore{}, c, brk)

	e := New(stubEmbedder{dim: 4}, store, v, brk, widths())
	results, err := e.Search(context.Background(), Query{Text: "q", TopK: 5, MinConfidence: 0.5, Mode: ModeFast})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if r.Combined < 0.5 {
			t.Errorf("expected no result below min_confidence, got %+v", r)
		}
	}
}
