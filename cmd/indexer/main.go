// Command indexer drives a reindex of one repository, either against
// the knowledge graph (the primary path) or, when no graph content exists
// yet for the repository, against a filesystem checkout as a supplementary
// extraction source (internal/indexer/fswalk.go).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/seanblong/codeknow/internal/config"
	"github.com/seanblong/codeknow/internal/embedprovider"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/indexer"
	"github.com/seanblong/codeknow/internal/vectorstore"
)

func main() {
	fs := pflag.NewFlagSet("codeknow-indexer", pflag.ExitOnError)
	fs.String("repository", "", "Repository name to (re)index (required)")
	fs.Bool("from-filesystem", false, "Extract from a filesystem checkout instead of the graph store")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	repositoryName, _ := fs.GetString("repository")
	fromFilesystem, _ := fs.GetBool("from-filesystem")
	if repositoryName == "" {
		log.Fatal("--repository is required")
	}

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
	embed, err := embedprovider.New(ctx, embedConfig(cfg))
	if err != nil {
		log.Fatalf("failed to build embedding provider: %v", err)
	}
	embed = embedprovider.WithTimeout(embed, time.Duration(cfg.Timeouts.EmbeddingMs)*time.Millisecond)

	var ix *indexer.Indexer
	if fromFilesystem {
		ix = indexer.New(nil, embed, vector)

		repoRoot := cfg.RepoRoot
		if cfg.RepoURL != "" {
			cloned, err := cloneToTemp(cfg.RepoURL, cfg.GitRef, cfg.GithubToken)
			if err != nil {
				log.Fatalf("clone failed: %v", err)
			}
			defer func() {
				if err := os.RemoveAll(cloned); err != nil {
					log.Printf("failed to remove temp directory %s: %v", cloned, err)
				}
			}()
			repoRoot = cloned
		}

		start := time.Now()
		result, err := ix.ReindexFromFilesystem(ctx, repositoryName, repoRoot)
		if err != nil {
			log.Fatalf("reindex from filesystem failed: %v", err)
		}
		log.Printf("indexed %s from %s in %s: classes=%d methods=%d functions=%d written=%d",
			repositoryName, repoRoot, time.Since(start), result.Classes, result.Methods, result.Functions, result.Written)
		return
	}

	graph, err := graphstore.NewNeo4j(ctx, cfg.GraphStore.URI, cfg.GraphStore.Username, cfg.GraphStore.Password, cfg.GraphStore.Database)
	if err != nil {
		log.Fatalf("failed to build graph store: %v", err)
	}
	ix = indexer.New(graphstore.WithTimeout(graph, time.Duration(cfg.Timeouts.GraphMs)*time.Millisecond), embed, vector)

	result, err := ix.Reindex(ctx, repositoryName)
	if err != nil {
		log.Fatalf("reindex failed: %v", err)
	}
	log.Printf("indexed %s: classes=%d methods=%d functions=%d written=%d took=%dms",
		repositoryName, result.Classes, result.Methods, result.Functions, result.Written, result.TookMS)
}

func buildVectorStore(ctx context.Context, cfg config.Specification) (vectorstore.Store, error) {
	switch strings.ToLower(cfg.VectorStore.Backend) {
	case "", "pgvector":
		return vectorstore.NewPgvector(ctx, cfg.Database, cfg.Dim)
	case "qdrant":
		return vectorstore.NewQdrant(ctx, cfg.VectorStore.QdrantHost, cfg.VectorStore.QdrantPort, cfg.VectorStore.QdrantCollection, cfg.Dim)
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s", cfg.VectorStore.Backend)
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

func cloneToTemp(repoURL, ref, token string) (string, error) {
	dir, err := os.MkdirTemp("", "codeknow-*")
	if err != nil {
		return "", err
	}
	url := repoURL
	if token != "" && strings.HasPrefix(url, "https://") {
		url = "https://" + token + ":x-oauth-basic@" + strings.TrimPrefix(url, "https://")
	}
	cmd := exec.Command("git", "clone", "--depth", "1", "--branch", ref, url, dir)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Printf("failed to remove temp directory %s: %v", dir, rmErr)
		}
		return "", fmt.Errorf("git clone: %w", err)
	}
	return dir, nil
}
