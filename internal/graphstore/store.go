// Package graphstore is the graph store abstraction: the code
// knowledge graph of repositories, files, classes, methods and functions.
// Every query is parameterised — no caller ever builds Cypher by string
// concatenation — and the extraction sweep is streamed rather than loaded
// into memory.
package graphstore

import (
	"context"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

// MethodExistence is the result of the method_exists canonical query.
type MethodExistence struct {
	Found      bool
	Parameters []codegraph.Parameter
	ReturnType string
}

// FunctionExistence is the result of the function_exists canonical query.
type FunctionExistence struct {
	Found      bool
	Parameters []codegraph.Parameter
	ReturnType string
}

// ExtractionCursor streams ExtractionRecords produced by the sweep query.
type ExtractionCursor interface {
	Next(ctx context.Context) (codegraph.ExtractionRecord, bool, error)
	Close(ctx context.Context) error
}

// Store is the capability set backing the Validator and the Indexer.
type Store interface {
	// Exists is canonical query #1: repository existence.
	Exists(ctx context.Context, repositoryName string) (bool, error)
	// ClassExists is canonical query #2.
	ClassExists(ctx context.Context, repositoryName, className string) (bool, error)
	// MethodExists is canonical query #3.
	MethodExists(ctx context.Context, repositoryName, className, methodName string) (MethodExistence, error)
	// FunctionExists is canonical query #4.
	FunctionExists(ctx context.Context, repositoryName, functionName string) (FunctionExistence, error)
	// ListClassesMethodsFunctions is canonical query #5, the extraction
	// sweep that the Indexer scrolls through.
	ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (ExtractionCursor, error)
	// NearestNames returns up to limit names in the same scope
	// (class methods, or module-level functions) ordered by edit distance
	// to target, used to build Validator suggestions.
	NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error)
	Health(ctx context.Context) error
}
