// Package hallucination is the hallucination detector: it runs
// the static analyser over a piece of generated code and validates every
// class, method, function and attribute reference it finds against the
// code graph, producing a risk-scored report of what the generator
// invented.
package hallucination

import (
	"context"
	"fmt"
	"time"

	"github.com/seanblong/codeknow/internal/analyser"
	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/embedprovider"
	"github.com/seanblong/codeknow/internal/exec"
	"github.com/seanblong/codeknow/internal/validator"
	"github.com/seanblong/codeknow/internal/vectorstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// concurrency is the executor width for validation fan-out.
const concurrency = 8

// suggestionLimit is how many suggested corrections accompany an
// unsupported item.
const suggestionLimit = 3

// supportedThreshold is the confidence floor for an item to count as
// supported.
const supportedThreshold = 0.6

// Request is one check() call.
type Request struct {
	ProgramText      string
	RepositoryHint   string
	IncludeSuggestions bool
	Detailed         bool
}

// Detector composes the static analyser, the validator and (optionally) the
// embedding client plus vector store into check().
type Detector struct {
	validator *validator.Validator
	store     vectorstore.Store
	embed     embedprovider.Client
}

// New builds a Detector. store and embed may both be nil when suggested
// corrections are never requested; Check returns an error if
// IncludeSuggestions is set without both.
func New(v *validator.Validator, store vectorstore.Store, embed embedprovider.Client) *Detector {
	return &Detector{validator: v, store: store, embed: embed}
}

// Check analyses req.ProgramText, validates every reference it makes,
// classifies each as supported or unsupported, and rolls the per-item
// confidences up into an overall risk verdict.
func (d *Detector) Check(ctx context.Context, req Request) (codegraph.HallucinationReport, error) {
	if req.IncludeSuggestions && (d.store == nil || d.embed == nil) {
		return codegraph.HallucinationReport{}, apperr.New(apperr.InvalidInput, "suggested corrections requested without a vector store and embedding client")
	}

	result := analyser.Analyse(req.ProgramText)
	items := dedupeItems(result.References())

	if len(items) == 0 {
		return codegraph.HallucinationReport{
			ScriptPath:        req.RepositoryHint,
			OverallRisk:       codegraph.RiskLow,
			OverallConfidence: 1.0,
			GeneratedAt:       time.Now(),
		}, nil
	}

	tasks := make([]exec.Task[codegraph.HallucinationItem], len(items))
	for i, ref := range items {
		ref := ref
		tasks[i] = func(ctx context.Context) (codegraph.HallucinationItem, error) {
			item, err := d.checkItem(ctx, req.RepositoryHint, ref, req.IncludeSuggestions)
			if err == nil && !req.Detailed && item.Supported {
				item.Evidence = ""
			}
			return item, err
		}
	}
	limit, _ := exec.Limit(concurrency)
	scored := exec.Run(ctx, limit, tasks)

	report := codegraph.HallucinationReport{
		ScriptPath:  req.RepositoryHint,
		GeneratedAt: time.Now(),
	}
	var sum float64
	var unsupported int
	for _, r := range scored {
		item := r.Value
		if r.Err != nil {
			item.Evidence = r.Err.Error()
		}
		report.Items = append(report.Items, item)
		sum += item.Confidence
		if !item.Supported {
			unsupported++
		}
	}
	report.OverallConfidence = sum / float64(len(items))
	report.OverallRisk = riskFor(float64(unsupported) / float64(len(items)))
	return report, nil
}

func (d *Detector) checkItem(ctx context.Context, repositoryHint string, ref analyser.Reference, includeSuggestions bool) (codegraph.HallucinationItem, error) {
	vref := toValidatorRef(ref)
	verdict, err := d.validator.Validate(ctx, repositoryHint, vref)
	if err != nil {
		return codegraph.HallucinationItem{Kind: ref.Kind, Name: ref.Name}, err
	}

	supported := verdict.Found && verdict.Confidence >= supportedThreshold
	item := codegraph.HallucinationItem{
		Kind:       ref.Kind,
		Name:       ref.Name,
		Supported:  supported,
		Confidence: verdict.Confidence,
		Evidence:   verdict.Reason,
	}

	if !supported && includeSuggestions {
		item.Suggestions = d.suggestCorrections(ctx, ref)
	}
	return item, nil
}

// suggestCorrections embeds a textual synopsis of an unsupported reference
// and returns up to suggestionLimit nearest real CodeExamples. Failures
// here degrade to no suggestions rather than failing the whole report: a
// missing correction is strictly less useful than one, but never wrong.
func (d *Detector) suggestCorrections(ctx context.Context, ref analyser.Reference) []codegraph.CodeExample {
	synopsis := synopsisFor(ref)
	vectors, err := d.embed.Embed(ctx, []string{synopsis})
	if err != nil || len(vectors) == 0 {
		return nil
	}
	hits, err := d.store.Search(ctx, vectors[0], suggestionLimit, nil)
	if err != nil {
		return nil
	}
	out := make([]codegraph.CodeExample, 0, len(hits))
	for _, h := range hits {
		out = append(out, codegraph.CodeExample{ID: h.ID, Embedding: h.Vector, Payload: h.Payload})
	}
	return out
}

func synopsisFor(ref analyser.Reference) string {
	switch ref.Kind {
	case codegraph.RefMethod:
		return fmt.Sprintf("method %s on %s", ref.Name, ref.ReceiverTypeHint)
	case codegraph.RefFunction:
		return fmt.Sprintf("function %s", ref.Name)
	case codegraph.RefAttribute:
		return fmt.Sprintf("attribute %s on %s", ref.Name, ref.ReceiverTypeHint)
	default:
		return ref.Name
	}
}

func toValidatorRef(ref analyser.Reference) validator.Ref {
	vref := validator.Ref{
		Kind:        ref.Kind,
		ModuleHint:  ref.ModuleHint,
		ClassName:   ref.ReceiverTypeHint,
		Name:        ref.Name,
		Argc:        ref.PositionalArgc,
		KeywordArgs: ref.KeywordArgs,
	}
	if ref.Kind == codegraph.RefClass {
		// A class instantiation's name is the class itself, not a receiver.
		vref.ClassName = ref.Name
	}
	return vref
}

// dedupeItems collapses repeated references (e.g. a class instantiated at
// several call sites) to one item per (kind, name, receiver) triple, and
// drops raw import references: an import is not itself a checkable class/
// method/function claim, and its only evidence (repository existence)
// already folds into every other item's confidence.
func dedupeItems(refs []analyser.Reference) []analyser.Reference {
	seen := make(map[string]bool, len(refs))
	out := make([]analyser.Reference, 0, len(refs))
	for _, ref := range refs {
		if ref.Kind == codegraph.RefImport {
			continue
		}
		key := string(ref.Kind) + "\x1f" + ref.ReceiverTypeHint + "\x1f" + ref.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}

// highRiskCeiling is the high/critical boundary: one unsupported
// reference out of three still reads as high, not critical.
const highRiskCeiling = 1.0 / 3.0

func riskFor(fraction float64) codegraph.RiskLevel {
	const epsilon = 1e-9
	switch {
	case fraction <= epsilon:
		return codegraph.RiskLow
	case fraction <= 0.1+epsilon:
		return codegraph.RiskMedium
	case fraction <= highRiskCeiling+epsilon:
		return codegraph.RiskHigh
	default:
		return codegraph.RiskCritical
	}
}
