package indexer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

// FileSystemWalker defines the interface for walking directories so the
// filesystem fallback path stays testable without touching a real disk.
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files.
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker walks via godirwalk.
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader reads via os.ReadFile.
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

var (
	classDefRe    = regexp.MustCompile(`^\s*class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	functionDefRe = regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(([^)]*)\)\s*(?:->\s*([\w.\[\], ]+))?\s*:`)
)

// ReindexFromFilesystem extracts classes, methods and functions directly
// from a repository checkout instead of the knowledge graph. It is a
// supplementary extraction source for a repository the graph has not
// ingested yet; the primary path assumes the graph is already populated.
func (ix *Indexer) ReindexFromFilesystem(ctx context.Context, repositoryName, repoRoot string) (Result, error) {
	var records []codegraph.ExtractionRecord

	walkErr := ix.walker().Walk(repoRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if shouldSkipForExtraction(path) {
				return nil
			}
			b, err := ix.fileReader().ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file during filesystem fallback extraction")
				return nil
			}

			relPath := rel(repoRoot, path)
			records = append(records, extractFromSource(relPath, string(b))...)
			return nil
		},
	})
	if walkErr != nil {
		return Result{}, walkErr
	}

	return ix.commitRecords(ctx, repositoryName, records)
}

func (ix *Indexer) walker() FileSystemWalker {
	if ix.Walker != nil {
		return ix.Walker
	}
	return &DefaultFileSystemWalker{}
}

func (ix *Indexer) fileReader() FileReader {
	if ix.FileReader != nil {
		return ix.FileReader
	}
	return &DefaultFileReader{}
}

// extractFromSource scans Python-shaped source text line by line for class
// and def statements, tracking the enclosing class by indentation so a
// method picks up its owning class's name the same way the graph would
// have recorded it.
func extractFromSource(relPath, content string) []codegraph.ExtractionRecord {
	var records []codegraph.ExtractionRecord
	var currentClass string
	var classIndent = -1

	for _, line := range strings.Split(content, "\n") {
		if m := classDefRe.FindStringSubmatch(line); m != nil {
			currentClass = m[1]
			classIndent = leadingSpaces(line)
			records = append(records, codegraph.ExtractionRecord{
				Kind:     codegraph.KindClass,
				Name:     m[1],
				FullName: m[1],
				FilePath: relPath,
			})
			continue
		}

		m := functionDefRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := len(m[1])
		name := m[2]
		params := parseParams(m[3])
		returnType := strings.TrimSpace(m[4])

		if currentClass != "" && indent > classIndent {
			fullName := currentClass + "." + name
			records = append(records, codegraph.ExtractionRecord{
				Kind: codegraph.KindMethod, Name: name, FullName: fullName,
				ClassName: currentClass, FilePath: relPath,
				Parameters: params, ReturnType: returnType,
			})
			continue
		}

		currentClass = ""
		classIndent = -1
		records = append(records, codegraph.ExtractionRecord{
			Kind: codegraph.KindFunction, Name: name, FullName: name,
			FilePath: relPath, Parameters: params, ReturnType: returnType,
		})
	}
	return records
}

func parseParams(raw string) []codegraph.Parameter {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	params := make([]codegraph.Parameter, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if eq := strings.Index(p, "="); eq >= 0 {
			p = strings.TrimSpace(p[:eq])
		}
		name, typ := p, ""
		if colon := strings.Index(p, ":"); colon >= 0 {
			name = strings.TrimSpace(p[:colon])
			typ = strings.TrimSpace(p[colon+1:])
		}
		params = append(params, codegraph.Parameter{Name: name, Type: typ})
	}
	return params
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' {
			break
		}
		n++
	}
	return n
}

func shouldSkipForExtraction(path string) bool {
	p := strings.ToLower(path)
	for _, dir := range []string{
		"/vendor/", "/.git/", "/node_modules/", "/build/", "/dist/",
		"/.venv/", "/venv/", "/__pycache__/", "/.pytest_cache/", "/.cache/",
	} {
		if strings.Contains(p, dir) {
			return true
		}
	}
	return filepath.Ext(p) != ".py"
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}
