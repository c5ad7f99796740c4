// Package validator checks a single
// reference emitted by the static analyser against the code knowledge
// graph, composing a confidence score instead of a bare true/false, and
// memoises the verdict in the TTL+LRU cache so repeated references (the
// same import, the same method, across many hits in a search) cost one
// graph round trip rather than one per occurrence.
package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/cache"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Ref is the canonical tuple Validate accepts, one of five reference
// forms. Kind selects which fields are meaningful:
//   - RefImport:    ModulePath
//   - RefClass:     ClassName, ModuleHint
//   - RefMethod:    ClassName, Name, Argc, KeywordArgs
//   - RefFunction:  Name, ModuleHint, Argc, KeywordArgs
//   - RefAttribute: ClassName, Name
type Ref struct {
	Kind        codegraph.ReferenceKind
	ModulePath  string
	ModuleHint  string
	ClassName   string
	Name        string
	Argc        int
	KeywordArgs []string
}

// unknownReceiver mirrors analyser.UnknownReceiver without importing that
// package, keeping validator usable independently of the analyser's text
// grammar.
const unknownReceiver = "unknown"

// Validator composes the cache, the graph-store circuit breaker and the
// graph store itself into the single Validate operation.
type Validator struct {
	store   graphstore.Store
	cache   *cache.Cache
	breaker *breaker.Breaker
}

// New builds a Validator. cache and brk must not be nil.
func New(store graphstore.Store, c *cache.Cache, brk *breaker.Breaker) *Validator {
	return &Validator{store: store, cache: c, breaker: brk}
}

// Validate resolves ref against repositoryName's graph content, going
// through the cache and the breaker first. Every verdict is scoped to a
// repository: the same class name can exist in one repository and not
// another.
func (v *Validator) Validate(ctx context.Context, repositoryName string, ref Ref) (codegraph.ValidationVerdict, error) {
	key := CacheKey(repositoryName, ref)
	if verdict, ok := v.cache.Get(key); ok {
		return verdict, nil
	}

	if v.breaker.IsOpen() {
		verdict := codegraph.ValidationVerdict{
			Confidence: 0.5,
			Reason:     "graph_unavailable",
		}
		return verdict, nil
	}

	verdict, err := breaker.Do(ctx, v.breaker, func(ctx context.Context) (codegraph.ValidationVerdict, error) {
		return v.resolve(ctx, repositoryName, ref)
	})
	if err != nil {
		switch {
		case apperr.Is(err, apperr.DependencyUnavailable):
			return codegraph.ValidationVerdict{Confidence: 0.5, Reason: "graph_unavailable"}, nil
		case apperr.Is(err, apperr.DependencyTimeout):
			return codegraph.ValidationVerdict{Confidence: 0.5, Reason: "graph_timeout"}, nil
		}
		return codegraph.ValidationVerdict{}, err
	}

	v.cache.Put(key, verdict)
	return verdict, nil
}

func (v *Validator) resolve(ctx context.Context, repositoryName string, ref Ref) (codegraph.ValidationVerdict, error) {
	repoExists, err := v.store.Exists(ctx, repositoryName)
	if err != nil {
		return codegraph.ValidationVerdict{}, err
	}

	var confidence float64
	if repoExists {
		confidence += 0.30
	}

	switch ref.Kind {
	case codegraph.RefImport:
		return v.resolveImport(confidence, repoExists)
	case codegraph.RefClass:
		return v.resolveClass(ctx, repositoryName, ref, confidence, repoExists)
	case codegraph.RefMethod:
		return v.resolveMethod(ctx, repositoryName, ref, confidence, repoExists)
	case codegraph.RefFunction:
		return v.resolveFunction(ctx, repositoryName, ref, confidence, repoExists)
	case codegraph.RefAttribute:
		return v.resolveAttribute(ctx, repositoryName, ref, confidence, repoExists)
	default:
		return codegraph.ValidationVerdict{}, apperr.New(apperr.InvalidInput, "unknown reference kind: "+string(ref.Kind))
	}
}

// resolveImport: the graph does not model imports as nodes, so an import is
// considered found purely on repository existence (it contributes no
// signature-match component).
func (v *Validator) resolveImport(confidence float64, repoExists bool) (codegraph.ValidationVerdict, error) {
	return codegraph.ValidationVerdict{
		Found:      repoExists,
		Confidence: confidence,
		Reason:     reasonFor(repoExists, true),
	}, nil
}

// resolveClass: a Class reference carries no argc/keyword_args,
// so unlike method/function references it has nothing for the 0.30
// signature-match component to check. Existence alone only earns the 0.40
// existence component, capping a found class at 0.70 (medium band) rather
// than the 1.0 a method/function reaches when its signature also matches.
func (v *Validator) resolveClass(ctx context.Context, repositoryName string, ref Ref, confidence float64, repoExists bool) (codegraph.ValidationVerdict, error) {
	found, err := v.store.ClassExists(ctx, repositoryName, ref.ClassName)
	if err != nil {
		return codegraph.ValidationVerdict{}, err
	}
	if found {
		confidence += 0.40
	}
	verdict := codegraph.ValidationVerdict{
		Found:      found,
		Confidence: clamp(confidence),
		Reason:     reasonFor(repoExists, found),
	}
	if !found {
		verdict.Suggestions = v.suggest(ctx, repositoryName, "", ref.ClassName)
	}
	return verdict, nil
}

func (v *Validator) resolveMethod(ctx context.Context, repositoryName string, ref Ref, confidence float64, repoExists bool) (codegraph.ValidationVerdict, error) {
	unknown := ref.ClassName == "" || ref.ClassName == unknownReceiver
	if unknown {
		return codegraph.ValidationVerdict{
			Found:      false,
			Confidence: clampMax(confidence, 0.5),
			Reason:     "unknown_receiver",
		}, nil
	}

	existence, err := v.store.MethodExists(ctx, repositoryName, ref.ClassName, ref.Name)
	if err != nil {
		return codegraph.ValidationVerdict{}, err
	}
	if existence.Found {
		confidence += 0.40
		if signatureMatches(existence.Parameters, ref.Argc, ref.KeywordArgs) {
			confidence += 0.30
		}
	}
	verdict := codegraph.ValidationVerdict{
		Found:      existence.Found,
		Confidence: clamp(confidence),
		Reason:     reasonFor(repoExists, existence.Found),
	}
	if !existence.Found {
		verdict.Suggestions = v.suggest(ctx, repositoryName, ref.ClassName, ref.Name)
	}
	return verdict, nil
}

func (v *Validator) resolveFunction(ctx context.Context, repositoryName string, ref Ref, confidence float64, repoExists bool) (codegraph.ValidationVerdict, error) {
	existence, err := v.store.FunctionExists(ctx, repositoryName, ref.Name)
	if err != nil {
		return codegraph.ValidationVerdict{}, err
	}
	if existence.Found {
		confidence += 0.40
		if signatureMatches(existence.Parameters, ref.Argc, ref.KeywordArgs) {
			confidence += 0.30
		}
	}
	verdict := codegraph.ValidationVerdict{
		Found:      existence.Found,
		Confidence: clamp(confidence),
		Reason:     reasonFor(repoExists, existence.Found),
	}
	if !existence.Found {
		verdict.Suggestions = v.suggest(ctx, repositoryName, "", ref.Name)
	}
	return verdict, nil
}

// resolveAttribute: the graph store's canonical query set has no
// attribute_exists query, so an attribute reference can only be checked
// as far as its owning class, which caps confidence at 0.5.
func (v *Validator) resolveAttribute(ctx context.Context, repositoryName string, ref Ref, confidence float64, repoExists bool) (codegraph.ValidationVerdict, error) {
	if ref.ClassName == "" || ref.ClassName == unknownReceiver {
		return codegraph.ValidationVerdict{
			Confidence: clampMax(confidence, 0.5),
			Reason:     "unknown_receiver",
		}, nil
	}
	found, err := v.store.ClassExists(ctx, repositoryName, ref.ClassName)
	if err != nil {
		return codegraph.ValidationVerdict{}, err
	}
	if found {
		confidence += 0.40
	}
	return codegraph.ValidationVerdict{
		Found:      found,
		Confidence: clampMax(confidence, 0.5),
		Reason:     "attribute_not_checkable",
	}, nil
}

func (v *Validator) suggest(ctx context.Context, repositoryName, scope, target string) []string {
	names, err := v.store.NearestNames(ctx, repositoryName, scope, target, 5)
	if err != nil {
		return nil
	}
	return names
}

func signatureMatches(params []codegraph.Parameter, argc int, keywordArgs []string) bool {
	if argc > len(params) {
		return false
	}
	named := make(map[string]bool, len(params))
	for _, p := range params {
		named[p.Name] = true
	}
	for _, kw := range keywordArgs {
		if !named[kw] {
			return false
		}
	}
	return true
}

func reasonFor(repoExists, found bool) string {
	switch {
	case !repoExists:
		return "repository_not_indexed"
	case !found:
		return "not_found"
	default:
		return ""
	}
}

func clamp(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

func clampMax(c, max float64) float64 {
	if c > max {
		return max
	}
	return clamp(c)
}

// CacheKey hashes the canonical reference tuple so the cache never stores
// a raw query or program fragment, only a fixed-width structural
// fingerprint.
func CacheKey(repositoryName string, ref Ref) string {
	var b strings.Builder
	b.WriteString(repositoryName)
	b.WriteByte(0x1F)
	b.WriteString(string(ref.Kind))
	b.WriteByte(0x1F)
	b.WriteString(ref.ModulePath)
	b.WriteByte(0x1F)
	b.WriteString(ref.ModuleHint)
	b.WriteByte(0x1F)
	b.WriteString(ref.ClassName)
	b.WriteByte(0x1F)
	b.WriteString(ref.Name)
	b.WriteByte(0x1F)
	b.WriteString(strconv.Itoa(ref.Argc))
	b.WriteByte(0x1F)
	b.WriteString(strings.Join(ref.KeywordArgs, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// ConfidenceBand maps a confidence score onto the downstream thresholds,
// used by callers that bucket a verdict rather than act on its raw float.
func ConfidenceBand(confidence float64) codegraph.RiskLevel {
	switch {
	case confidence >= 0.9:
		return codegraph.RiskCritical
	case confidence >= 0.8:
		return codegraph.RiskHigh
	case confidence >= 0.6:
		return codegraph.RiskMedium
	default:
		return codegraph.RiskLow
	}
}
