package indexer

import (
	"context"
	"testing"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/vectorstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

type fakeCursor struct {
	records []codegraph.ExtractionRecord
	pos     int
}

func (c *fakeCursor) Next(ctx context.Context) (codegraph.ExtractionRecord, bool, error) {
	if c.pos >= len(c.records) {
		return codegraph.ExtractionRecord{}, false, nil
	}
	rec := c.records[c.pos]
	c.pos++
	return rec, true, nil
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

type fakeGraphStore struct {
	repoExists bool
	records    []codegraph.ExtractionRecord
}

func (f *fakeGraphStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	return f.repoExists, nil
}
func (f *fakeGraphStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	return false, nil
}
func (f *fakeGraphStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (graphstore.MethodExistence, error) {
	return graphstore.MethodExistence{}, nil
}
func (f *fakeGraphStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (graphstore.FunctionExistence, error) {
	return graphstore.FunctionExistence{}, nil
}
func (f *fakeGraphStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (graphstore.ExtractionCursor, error) {
	return &fakeCursor{records: f.records}, nil
}
func (f *fakeGraphStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeGraphStore) Health(ctx context.Context) error { return nil }

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f fakeEmbedder) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	return "", nil
}
func (f fakeEmbedder) Dim() int { return f.dim }

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperr.New(apperr.DependencyUnavailable, "embedding provider down")
}
func (failingEmbedder) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	return "", nil
}
func (failingEmbedder) Dim() int { return 4 }

type fakeVectorStore struct {
	upserted []vectorstore.Point
	deletes  []vectorstore.Filter
}

func (f *fakeVectorStore) Upsert(ctx context.Context, points []vectorstore.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	return nil, nil
}
func (f *fakeVectorStore) Scroll(ctx context.Context, filter vectorstore.Filter, pageSize int) (vectorstore.ScrollCursor, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, filter vectorstore.Filter) error {
	f.deletes = append(f.deletes, filter)
	return nil
}
func (f *fakeVectorStore) Count(ctx context.Context, filter vectorstore.Filter) (int, error) {
	return len(f.upserted), nil
}
func (f *fakeVectorStore) Health(ctx context.Context) error { return nil }

func sampleRecords() []codegraph.ExtractionRecord {
	return []codegraph.ExtractionRecord{
		{
			Kind: codegraph.KindClass, Name: "C", FullName: "C", FilePath: "r/c.py",
		},
		{
			Kind: codegraph.KindMethod, Name: "m", FullName: "C.m", ClassName: "C", FilePath: "r/c.py",
			Parameters: []codegraph.Parameter{{Name: "self"}, {Name: "x", Type: "int"}},
			ReturnType: "int",
		},
	}
}

func TestReindexRepositoryNotFound(t *testing.T) {
	ix := New(&fakeGraphStore{repoExists: false}, fakeEmbedder{dim: 4}, &fakeVectorStore{})
	_, err := ix.Reindex(context.Background(), "missing")
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}

func TestReindexWritesOneExamplePerClassAndMethod(t *testing.T) {
	graph := &fakeGraphStore{repoExists: true, records: sampleRecords()}
	vector := &fakeVectorStore{}
	ix := New(graph, fakeEmbedder{dim: 4}, vector)

	result, err := ix.Reindex(context.Background(), "R")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Classes != 1 || result.Methods != 1 || result.Functions != 0 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if result.Written != 2 {
		t.Errorf("expected 2 written, got %d", result.Written)
	}
	if len(vector.upserted) != 2 {
		t.Fatalf("expected 2 upserted points, got %d", len(vector.upserted))
	}
	if len(vector.deletes) != 1 {
		t.Errorf("expected exactly one purge-before-write delete, got %d", len(vector.deletes))
	}

	fullNames := map[string]bool{}
	for _, p := range vector.upserted {
		fullNames[p.Payload.FullName] = true
	}
	if !fullNames["C"] || !fullNames["C.m"] {
		t.Errorf("expected full_name values \"C\" and \"C.m\", got %+v", fullNames)
	}
}

func TestReindexIdsAreStableHex(t *testing.T) {
	rec := sampleRecords()[1]
	id1 := ExampleID("R", rec)
	id2 := ExampleID("R", rec)
	if id1 != id2 {
		t.Errorf("expected stable id, got %q vs %q", id1, id2)
	}
	if len(id1) != 32 {
		t.Errorf("expected a 32-char (128-bit) hex id, got %q", id1)
	}
}

func TestReindexRollsBackOnEmbeddingFailure(t *testing.T) {
	graph := &fakeGraphStore{repoExists: true, records: sampleRecords()}
	vector := &fakeVectorStore{}
	ix := New(graph, failingEmbedder{}, vector)

	_, err := ix.Reindex(context.Background(), "R")
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if len(vector.upserted) != 0 {
		t.Errorf("expected no upserts to survive an embedding failure, got %d", len(vector.upserted))
	}
	// One delete for purge-before-write, one for rollback.
	if len(vector.deletes) != 2 {
		t.Errorf("expected purge delete plus rollback delete, got %d", len(vector.deletes))
	}
}

func TestSummaryIsDeterministic(t *testing.T) {
	rec := sampleRecords()[1]
	if Summary(rec) != Summary(rec) {
		t.Error("expected deterministic summary text for the same record")
	}
}
