// Command api is the thin HTTP host that exposes the core capability
// set (validated search, repository reindexing, hallucination checking,
// health) over the stores, validator, search engine, indexer and
// hallucination detector wired together in this file.
package main

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/auth"
	"github.com/seanblong/codeknow/internal/breaker"
	"github.com/seanblong/codeknow/internal/cache"
	"github.com/seanblong/codeknow/internal/config"
	"github.com/seanblong/codeknow/internal/embedprovider"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/hallucination"
	"github.com/seanblong/codeknow/internal/health"
	"github.com/seanblong/codeknow/internal/indexer"
	"github.com/seanblong/codeknow/internal/searchengine"
	"github.com/seanblong/codeknow/internal/validator"
	"github.com/seanblong/codeknow/internal/vectorstore"
)

func main() {
	fs := pflag.NewFlagSet("codeknow-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("vector_backend", cfg.VectorStore.Backend).Msg("starting codeknow api")

	auth.InitializeAuth(
		cfg.Auth.JwtSecret,
		cfg.Auth.GithubClientID,
		cfg.Auth.GithubClientSecret,
		cfg.Auth.GithubRedirectURL,
		cfg.Auth.GithubAllowedOrg,
		cfg.Auth.Enabled,
	)

	ctx := context.Background()

	vector, err := buildVectorStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build vector store: %v", err)
	}
	if pg, ok := vector.(*vectorstore.PgvectorStore); ok {
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate vector store schema: %v", err)
		}
	}
	vector = vectorstore.WithTimeout(vector, time.Duration(cfg.Timeouts.VectorMs)*time.Millisecond)

	graph, err := graphstore.NewNeo4j(ctx, cfg.GraphStore.URI, cfg.GraphStore.Username, cfg.GraphStore.Password, cfg.GraphStore.Database)
	if err != nil {
		log.Fatalf("failed to build graph store: %v", err)
	}
	graphStore := graphstore.WithTimeout(graph, time.Duration(cfg.Timeouts.GraphMs)*time.Millisecond)

	embed, err := embedprovider.New(ctx, embedConfig(cfg))
	if err != nil {
		log.Fatalf("failed to build embedding provider: %v", err)
	}
	embed = embedprovider.WithTimeout(embed, time.Duration(cfg.Timeouts.EmbeddingMs)*time.Millisecond)

	validationCache := cache.New(cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	})
	graphBrk := breaker.New(breaker.Config{
		Name:             "graphstore",
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
		Cooldown:         time.Duration(cfg.Breaker.CooldownMs) * time.Millisecond,
	})

	v := validator.New(graphStore, validationCache, graphBrk)
	widths := searchengine.Widths{
		OverFetchFast: cfg.Search.OverFetchFast, OverFetchBalanced: cfg.Search.OverFetchBalanced, OverFetchThorough: cfg.Search.OverFetchThorough,
		ConcurrencyFast: cfg.Search.ConcurrencyFast, ConcurrencyBalanced: cfg.Search.ConcurrencyBalanced, ConcurrencyThorough: cfg.Search.ConcurrencyThorough,
	}
	engine := searchengine.New(embed, vector, v, graphBrk, widths)
	ix := indexer.New(graphStore, embed, vector)
	detector := hallucination.New(v, vector, embed)
	monitor := health.New(vector, graphStore, validationCache, map[string]*breaker.Breaker{"graph": graphBrk})

	mux := http.NewServeMux()
	registerRoutes(mux, engine, ix, detector, monitor)

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	addr := ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{Addr: addr, Handler: handler}
	logger.Info().Str("addr", addr).Msg("api server listening")
	log.Fatal(srv.ListenAndServe())
}

func buildVectorStore(ctx context.Context, cfg config.Specification) (vectorstore.Store, error) {
	switch strings.ToLower(cfg.VectorStore.Backend) {
	case "", "pgvector":
		return vectorstore.NewPgvector(ctx, cfg.Database, cfg.Dim)
	case "qdrant":
		return vectorstore.NewQdrant(ctx, cfg.VectorStore.QdrantHost, cfg.VectorStore.QdrantPort, cfg.VectorStore.QdrantCollection, cfg.Dim)
	default:
		log.Fatalf("unsupported vector store backend: %s", cfg.VectorStore.Backend)
		return nil, nil
	}
}

func embedConfig(cfg config.Specification) *embedprovider.Config {
	provider := embedprovider.Provider(strings.ToLower(cfg.Provider))
	switch provider {
	case embedprovider.ProviderOpenAI, embedprovider.ProviderVertexAI, embedprovider.ProviderStub:
	default:
		provider = embedprovider.ProviderStub
	}
	return &embedprovider.Config{
		APIKey:       cfg.APIKey,
		EmbedModel:   cfg.EmbedModel,
		SummaryModel: cfg.SummaryModel,
		Dim:          cfg.Dim,
		ProjectID:    cfg.ProjectID,
		Location:     cfg.Location,
		Provider:     provider,
	}
}

// registerRoutes binds the capability set onto the HTTP surface, each
// handler a pure translation of query parameters/JSON body into a core
// operation call.
func registerRoutes(mux *http.ServeMux, engine *searchengine.Engine, ix *indexer.Indexer, detector *hallucination.Detector, monitor *health.Monitor) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": auth.IsAuthEnabled()})
	})

	mux.HandleFunc("/health", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, monitor.Status(ctx))
	}))

	mux.HandleFunc("/search", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		handleSearch(w, r, engine)
	}))

	mux.HandleFunc("/index", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		handleIndex(w, r, ix)
	}))

	mux.HandleFunc("/hallucinations/check", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		handleHallucinationCheck(w, r, detector)
	}))
}

func handleSearch(w http.ResponseWriter, r *http.Request, engine *searchengine.Engine) {
	q := r.URL.Query().Get("query")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := 10
	if v := r.URL.Query().Get("top_k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			topK = n
		}
	}
	minConfidence := 0.0
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			minConfidence = f
		}
	}
	mode := searchengine.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = searchengine.ModeBalanced
	}
	filter := vectorstore.Filter{}
	if src := r.URL.Query().Get("source_filter"); src != "" {
		filter["repository_name"] = src
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	results, err := engine.Search(ctx, searchengine.Query{
		Text: q, TopK: topK, Filter: filter, MinConfidence: minConfidence, Mode: mode,
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}
	hlog.FromRequest(r).Info().Str("query", q).Int("top_k", topK).Dur("dur", time.Since(start)).Msg("search served")
	writeJSON(w, http.StatusOK, toSearchResponse(results))
}

type searchHit struct {
	ID               string      `json:"id"`
	Payload          interface{} `json:"payload"`
	SemanticScore    float64     `json:"semantic_score"`
	StructuralScore  float64     `json:"structural_score"`
	CombinedScore    float64     `json:"combined_score"`
	ValidationStatus string      `json:"validation_status"`
}

func toSearchResponse(results []searchengine.Result) []searchHit {
	out := make([]searchHit, 0, len(results))
	for _, r := range results {
		out = append(out, searchHit{
			ID:               r.ID,
			Payload:          r.CodeExample,
			SemanticScore:    r.SemanticScore,
			StructuralScore:  r.StructuralScore,
			CombinedScore:    math.Round(r.Combined*1e6) / 1e6,
			ValidationStatus: r.ValidationStatus,
		})
	}
	return out
}

func handleIndex(w http.ResponseWriter, r *http.Request, ix *indexer.Indexer) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	repo := r.URL.Query().Get("repository")
	if repo == "" {
		var body struct {
			Repository string `json:"repository_name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		repo = body.Repository
	}
	if repo == "" {
		writeError(w, http.StatusBadRequest, "repository_name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	result, err := ix.Reindex(ctx, repo)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleHallucinationCheck(w http.ResponseWriter, r *http.Request, detector *hallucination.Detector) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		ProgramText        string `json:"program_text"`
		RepositoryHint     string `json:"repository_hint"`
		IncludeSuggestions bool   `json:"include_suggestions"`
		Detailed           bool   `json:"detailed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	report, err := detector.Check(ctx, hallucination.Request{
		ProgramText:        body.ProgramText,
		RepositoryHint:     body.RepositoryHint,
		IncludeSuggestions: body.IncludeSuggestions,
		Detailed:           body.Detailed,
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeCoreError maps an apperr.Kind onto the appropriate HTTP status and
// serialises the user-visible error shape (kind, message, suggestion).
func writeCoreError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.InvalidInput:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.DependencyUnavailable, apperr.DependencyTimeout:
		status = http.StatusServiceUnavailable
	case apperr.Corrupt:
		status = http.StatusUnprocessableEntity
	}
	payload := map[string]string{"kind": string(kind), "message": err.Error()}
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	}
	if appErr != nil && appErr.Suggestion != "" {
		payload["suggestion"] = appErr.Suggestion
	}
	writeJSON(w, status, payload)
}
