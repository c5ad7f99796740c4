package hallucination

import (
	"context"
	"testing"
	"time"

	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/cache"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/validator"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

type fakeGraphStore struct {
	repoExists  bool
	classExists map[string]bool
	methods     map[string]graphstore.MethodExistence
}

func (f *fakeGraphStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	return f.repoExists, nil
}

func (f *fakeGraphStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	return f.classExists[className], nil
}

func (f *fakeGraphStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (graphstore.MethodExistence, error) {
	return f.methods[className+"."+methodName], nil
}

func (f *fakeGraphStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (graphstore.FunctionExistence, error) {
	return graphstore.FunctionExistence{}, nil
}

func (f *fakeGraphStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (graphstore.ExtractionCursor, error) {
	return nil, nil
}

func (f *fakeGraphStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeGraphStore) Health(ctx context.Context) error { return nil }

func newDetector(store graphstore.Store) *Detector {
	c := cache.New(cache.Config{MaxEntries: 100, TTL: time.Minute})
	b := breaker.New(breaker.Config{Name: "graph", FailureThreshold: 5, Cooldown: time.Second})
	v := validator.New(store, c, b)
	return New(v, nil, nil)
}

func TestCheckSimpleHallucinationCase(t *testing.T) {
	store := &fakeGraphStore{
		repoExists:  true,
		classExists: map[string]bool{"C": true},
		methods: map[string]graphstore.MethodExistence{
			"C.m": {Found: true, Parameters: []codegraph.Parameter{{Name: "self"}, {Name: "x"}}},
		},
	}
	d := newDetector(store)

	report, err := d.Check(context.Background(), Request{
		ProgramText:    "from r import C\nC().m(1)\nC().nope(2)\n",
		RepositoryHint: "r",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(report.Items), report.Items)
	}

	byName := map[string]codegraph.HallucinationItem{}
	for _, item := range report.Items {
		byName[item.Name] = item
	}

	c, ok := byName["C"]
	if !ok || !c.Supported {
		t.Errorf("expected C supported, got %+v", c)
	}
	m, ok := byName["m"]
	if !ok || !m.Supported || m.Confidence < 0.8 {
		t.Errorf("expected m supported with confidence >= 0.8, got %+v", m)
	}
	nope, ok := byName["nope"]
	if !ok || nope.Supported {
		t.Errorf("expected nope unsupported, got %+v", nope)
	}

	if report.OverallRisk != codegraph.RiskHigh {
		t.Errorf("expected overall_risk high (1/3 unsupported), got %q", report.OverallRisk)
	}
}

func TestCheckEmptyProgramReturnsLowRiskFullConfidence(t *testing.T) {
	d := newDetector(&fakeGraphStore{repoExists: true})

	report, err := d.Check(context.Background(), Request{ProgramText: "", RepositoryHint: "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallRisk != codegraph.RiskLow {
		t.Errorf("expected low risk for empty program, got %q", report.OverallRisk)
	}
	if report.OverallConfidence != 1.0 {
		t.Errorf("expected confidence 1.0 for empty program, got %v", report.OverallConfidence)
	}
	if len(report.Items) != 0 {
		t.Errorf("expected no items for empty program, got %d", len(report.Items))
	}
}

func TestCheckIncludeSuggestionsWithoutStoreErrors(t *testing.T) {
	d := newDetector(&fakeGraphStore{repoExists: true})
	_, err := d.Check(context.Background(), Request{
		ProgramText:        "load(x)\n",
		IncludeSuggestions: true,
	})
	if err == nil {
		t.Fatal("expected error when suggestions requested without vector store/embedder")
	}
}

func TestRiskThresholds(t *testing.T) {
	cases := []struct {
		fraction float64
		want     codegraph.RiskLevel
	}{
		{0, codegraph.RiskLow},
		{0.05, codegraph.RiskMedium},
		{0.1, codegraph.RiskMedium},
		{0.2, codegraph.RiskHigh},
		{1.0 / 3.0, codegraph.RiskHigh},
		{0.5, codegraph.RiskCritical},
	}
	for _, c := range cases {
		if got := riskFor(c.fraction); got != c.want {
			t.Errorf("riskFor(%v) = %q, want %q", c.fraction, got, c.want)
		}
	}
}
