// Package embedprovider is the embedding provider abstraction:
// turn text into fixed-dimension vectors, tolerate empty input, and surface
// rate-limiting versus fatal unavailability as distinct errors so callers
// (the indexer's batcher, the search engine) can react differently.
package embedprovider

import (
	"context"

	"github.com/seanblong/codeknow/internal/apperr"
)

// Client produces embeddings for batches of text and, where the backend
// supports it, short natural-language summaries of a piece of code. Safe
// for concurrent use.
type Client interface {
	// Embed returns one vector per input text, same order, same length.
	// An empty input returns an empty, non-nil slice and no error.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Summarize produces a short human-readable description used to enrich
	// the embedding signal for a code element.
	Summarize(ctx context.Context, filePath, language, content string) (string, error)
	// Dim returns the fixed vector dimension this client produces.
	Dim() int
}

// Provider enumerates the supported embedding backends.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// Config holds construction parameters for any Client implementation.
type Config struct {
	APIKey       string
	EmbedModel   string
	SummaryModel string
	Dim          int
	ProjectID    string
	Provider     Provider
	Location     string
}

// New builds a Client for the configured provider.
func New(ctx context.Context, cfg *Config) (Client, error) {
	if cfg == nil {
		return nil, apperr.New(apperr.InvalidInput, "embed provider config is required")
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderVertexAI:
		return newVertexAIClient(ctx, cfg)
	case ProviderStub:
		return newStubClient(cfg.Dim), nil
	default:
		return nil, apperr.New(apperr.InvalidInput, "unsupported embed provider: "+string(cfg.Provider))
	}
}

// ErrRateLimited is returned by a backend when the caller should retry with
// backoff.
var ErrRateLimited = apperr.New(apperr.DependencyUnavailable, "embedding provider rate limited")

// ErrProviderUnavailable is fatal for the current operation.
var ErrProviderUnavailable = apperr.New(apperr.DependencyUnavailable, "embedding provider unavailable")
