// Package indexer is the code extractor and indexer: it rebuilds
// every CodeExample for one repository from the knowledge graph via a
// graph-driven extraction sweep.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/internal/embedprovider"
	"github.com/seanblong/codeknow/internal/graphstore"
	"github.com/seanblong/codeknow/internal/vectorstore"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// embedBatchSize and upsertBatchSize are the fixed batch widths for
// embedding calls and vector-store writes.
const (
	embedBatchSize  = 20
	upsertBatchSize = 100
)

// Language is fixed: the graph only ever models the one language the
// static analyser recognises.
const Language = "python"

// Result is reindex(repository_name)'s return shape.
type Result struct {
	Classes   int   `json:"classes"`
	Methods   int   `json:"methods"`
	Functions int   `json:"functions"`
	Written   int   `json:"written"`
	TookMS    int64 `json:"took_ms"`
}

// Indexer composes the graph store, embedding provider and vector store
// into the reindex operation. Walker and FileReader back the filesystem
// fallback path (fswalk.go) and default to real disk access when nil.
type Indexer struct {
	Graph  graphstore.Store
	Embed  embedprovider.Client
	Vector vectorstore.Store

	Walker     FileSystemWalker
	FileReader FileReader
}

// New builds an Indexer.
func New(graph graphstore.Store, embed embedprovider.Client, vector vectorstore.Store) *Indexer {
	return &Indexer{Graph: graph, Embed: embed, Vector: vector}
}

// Reindex rebuilds every CodeExample for repositoryName from the graph:
// existence check, purge, extraction sweep, batched embedding, batched
// upsert.
func (ix *Indexer) Reindex(ctx context.Context, repositoryName string) (Result, error) {
	exists, err := ix.Graph.Exists(ctx, repositoryName)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, apperr.New(apperr.NotFound, "repository not found: "+repositoryName).
			WithSuggestion("parse the repository into the graph first")
	}

	cursor, err := ix.Graph.ListClassesMethodsFunctions(ctx, repositoryName)
	if err != nil {
		return Result{}, err
	}
	defer cursor.Close(ctx)

	var records []codegraph.ExtractionRecord
	for {
		rec, ok, err := cursor.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		records = append(records, rec)
	}

	return ix.commitRecords(ctx, repositoryName, records)
}

// commitRecords purges any prior examples for repositoryName, writes the
// given records as embedded CodeExamples, and on a failed write deletes
// whatever it had already written for the repository (the purged examples
// are not restored). Shared by the graph-driven Reindex and the filesystem
// fallback path in fswalk.go.
func (ix *Indexer) commitRecords(ctx context.Context, repositoryName string, records []codegraph.ExtractionRecord) (Result, error) {
	start := time.Now()

	filter := vectorstore.Filter{"repository_name": repositoryName}
	if err := ix.Vector.Delete(ctx, filter); err != nil {
		return Result{}, err
	}

	result := Result{}
	for _, rec := range records {
		switch rec.Kind {
		case codegraph.KindClass:
			result.Classes++
		case codegraph.KindMethod:
			result.Methods++
		case codegraph.KindFunction:
			result.Functions++
		}
	}

	written, err := ix.writeExamples(ctx, repositoryName, records)
	if err != nil {
		// Roll back any partial upserts for the repository before
		// propagating, so the caller observes all-or-nothing.
		if delErr := ix.Vector.Delete(ctx, filter); delErr != nil {
			log.Error().Err(delErr).Str("repository", repositoryName).Msg("rollback delete failed after partial index write")
		}
		return Result{}, err
	}
	result.Written = written
	result.TookMS = time.Since(start).Milliseconds()
	return result, nil
}

func (ix *Indexer) writeExamples(ctx context.Context, repositoryName string, records []codegraph.ExtractionRecord) (int, error) {
	written := 0
	for batchStart := 0; batchStart < len(records); batchStart += embedBatchSize {
		end := batchStart + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[batchStart:end]

		summaries := make([]string, len(batch))
		for i, rec := range batch {
			summaries[i] = Summary(rec)
		}
		embeddings, err := ix.Embed.Embed(ctx, summaries)
		if err != nil {
			return written, err
		}
		if len(embeddings) != len(batch) {
			return written, apperr.New(apperr.Internal, "embedding provider returned mismatched batch size")
		}

		points := make([]vectorstore.Point, len(batch))
		for i, rec := range batch {
			points[i] = vectorstore.Point{
				ID:      ExampleID(repositoryName, rec),
				Vector:  embeddings[i],
				Payload: payloadFor(repositoryName, rec),
			}
		}

		for upsertStart := 0; upsertStart < len(points); upsertStart += upsertBatchSize {
			upsertEnd := upsertStart + upsertBatchSize
			if upsertEnd > len(points) {
				upsertEnd = len(points)
			}
			chunk := points[upsertStart:upsertEnd]
			if err := ix.Vector.Upsert(ctx, chunk); err != nil {
				return written, err
			}
			written += len(chunk)
		}
	}
	return written, nil
}

func payloadFor(repositoryName string, rec codegraph.ExtractionRecord) codegraph.CodeExamplePayload {
	return codegraph.CodeExamplePayload{
		RepositoryName: repositoryName,
		FilePath:       rec.FilePath,
		ModuleName:     rec.ModuleName,
		Kind:           rec.Kind,
		Name:           rec.Name,
		FullName:       rec.FullName,
		ClassName:      rec.ClassName,
		Parameters:     rec.Parameters,
		ReturnType:     rec.ReturnType,
		Language:       Language,
	}
}

// ExampleID computes the deterministic id: a truncated hash of
// (repository_name, file_path, full_name, kind), so a repeated reindex
// against an unchanged graph produces byte-identical ids.
func ExampleID(repositoryName string, rec codegraph.ExtractionRecord) string {
	var b strings.Builder
	b.WriteString(repositoryName)
	b.WriteByte(0x1F)
	b.WriteString(rec.FilePath)
	b.WriteByte(0x1F)
	b.WriteString(rec.FullName)
	b.WriteByte(0x1F)
	b.WriteString(string(rec.Kind))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// Summary produces the deterministic, natural-language-enriched summary
// text: the same record always yields the same string, so the same graph
// state yields byte-identical summaries (and therefore byte-identical
// embeddings, given a deterministic embedding backend).
func Summary(rec codegraph.ExtractionRecord) string {
	params := make([]string, len(rec.Parameters))
	for i, p := range rec.Parameters {
		if p.Type != "" {
			params[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
		} else {
			params[i] = p.Name
		}
	}
	signature := fmt.Sprintf("(%s)", strings.Join(params, ", "))
	returns := rec.ReturnType
	if returns == "" {
		returns = "None"
	}

	var sentence string
	switch rec.Kind {
	case codegraph.KindClass:
		sentence = fmt.Sprintf("Class %s defined in %s.", rec.FullName, rec.FilePath)
	case codegraph.KindMethod:
		sentence = fmt.Sprintf("Method %s on class %s in %s, returning %s.", rec.Name, rec.ClassName, rec.FilePath, returns)
	case codegraph.KindFunction:
		sentence = fmt.Sprintf("Function %s in %s, returning %s.", rec.Name, rec.FilePath, returns)
	}

	return fmt.Sprintf("%s %s %s %s %s", rec.Kind, rec.FullName, signature, returns, sentence)
}
