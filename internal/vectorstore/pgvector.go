package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/seanblong/codeknow/internal/apperr"
)

// payloadColumns maps the fixed payload keys onto table columns.
// Filters may only reference these keys; anything else is a programmer
// error, not a silent no-op.
var payloadColumns = map[string]string{
	"repository_name":  "repository_name",
	"file_path":        "file_path",
	"module_name":      "module_name",
	"kind":             "kind",
	"name":             "name",
	"full_name":        "full_name",
	"class_name":       "class_name",
	"return_type":      "return_type",
	"language":         "language",
	"validation_status": "validation_status",
}

// PgvectorStore is the Postgres+pgvector backend.
type PgvectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPgvector connects to url and enforces dim on every write.
func NewPgvector(ctx context.Context, url string, dim int) (*PgvectorStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "parse vector store dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "connect vector store", err)
	}
	return &PgvectorStore{pool: pool, dim: dim}, nil
}

// Migrate creates the code_examples table and its indexes. Exposed
// separately from New so it can be driven deliberately (a schema change is
// not something a Store constructor should do implicitly every call).
func (s *PgvectorStore) Migrate(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS code_examples (
  id                TEXT PRIMARY KEY,
  repository_name   TEXT NOT NULL,
  file_path         TEXT NOT NULL,
  module_name       TEXT NOT NULL DEFAULT '',
  kind              TEXT NOT NULL,
  name              TEXT NOT NULL,
  full_name         TEXT NOT NULL,
  class_name        TEXT NOT NULL DEFAULT '',
  parameters        JSONB NOT NULL DEFAULT '[]',
  return_type       TEXT NOT NULL DEFAULT '',
  language          TEXT NOT NULL DEFAULT '',
  validation_status TEXT NOT NULL DEFAULT '',
  summary           TEXT NOT NULL DEFAULT '',
  embedding         vector(%d),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS code_examples_repository_idx ON code_examples (repository_name);
CREATE INDEX IF NOT EXISTS code_examples_embedding_idx ON code_examples
  USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`, s.dim)
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "migrate vector store schema", err)
	}
	return nil
}

func (s *PgvectorStore) Close() { s.pool.Close() }

func (s *PgvectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `
INSERT INTO code_examples (
  id, repository_name, file_path, module_name, kind, name, full_name,
  class_name, parameters, return_type, language, validation_status, summary, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  repository_name   = EXCLUDED.repository_name,
  file_path         = EXCLUDED.file_path,
  module_name       = EXCLUDED.module_name,
  kind              = EXCLUDED.kind,
  name              = EXCLUDED.name,
  full_name         = EXCLUDED.full_name,
  class_name        = EXCLUDED.class_name,
  parameters        = EXCLUDED.parameters,
  return_type       = EXCLUDED.return_type,
  language          = EXCLUDED.language,
  validation_status = EXCLUDED.validation_status,
  summary           = EXCLUDED.summary,
  embedding         = EXCLUDED.embedding;`

	for _, p := range points {
		if len(p.Vector) != s.dim {
			return apperr.New(apperr.Corrupt, fmt.Sprintf("vector dimension mismatch: got %d want %d", len(p.Vector), s.dim))
		}
		params, err := json.Marshal(p.Payload.Parameters)
		if err != nil {
			return apperr.Wrap(apperr.Corrupt, "marshal parameters", err)
		}
		batch.Queue(q,
			p.ID, p.Payload.RepositoryName, p.Payload.FilePath, p.Payload.ModuleName,
			string(p.Payload.Kind), p.Payload.Name, p.Payload.FullName, p.Payload.ClassName,
			params, p.Payload.ReturnType, p.Payload.Language, p.Payload.ValidationStatus,
			"", pgv.NewVector(p.Vector),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return apperr.Wrap(apperr.DependencyUnavailable, "upsert code example", err)
		}
	}
	return nil
}

func buildWhere(filter Filter, startArg int) (string, []any, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	where := "TRUE"
	args := make([]any, 0, len(filter))
	ai := startArg
	for _, k := range keys {
		col, ok := payloadColumns[k]
		if !ok {
			return "", nil, apperr.New(apperr.InvalidInput, "unknown filter key: "+k)
		}
		where += fmt.Sprintf(" AND %s = $%d", col, ai)
		args = append(args, filter[k])
		ai++
	}
	return where, args, nil
}

func (s *PgvectorStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error) {
	if topK <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "topK must be positive")
	}
	where, args, err := buildWhere(filter, 2)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
SELECT id, repository_name, file_path, module_name, kind, name, full_name,
       class_name, parameters, return_type, language, validation_status,
       LEAST(GREATEST(1.0 - (embedding <=> $1::vector), 0), 1) AS score
FROM code_examples
WHERE %s
ORDER BY score DESC, id ASC
LIMIT %d;`, where, topK)

	allArgs := append([]any{pgv.NewVector(vector)}, args...)
	rows, err := s.pool.Query(ctx, q, allArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "vector search", err)
	}
	defer rows.Close()

	var out []ScoredPoint
	for rows.Next() {
		var sp ScoredPoint
		var params []byte
		if err := rows.Scan(
			&sp.ID, &sp.Payload.RepositoryName, &sp.Payload.FilePath, &sp.Payload.ModuleName,
			&sp.Payload.Kind, &sp.Payload.Name, &sp.Payload.FullName, &sp.Payload.ClassName,
			&params, &sp.Payload.ReturnType, &sp.Payload.Language, &sp.Payload.ValidationStatus,
			&sp.Score,
		); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan search row", err)
		}
		_ = json.Unmarshal(params, &sp.Payload.Parameters)
		out = append(out, sp)
	}
	return out, rows.Err()
}

type pgScrollCursor struct {
	rows pgx.Rows
}

func (c *pgScrollCursor) Next(_ context.Context) (Point, bool, error) {
	if !c.rows.Next() {
		return Point{}, false, c.rows.Err()
	}
	var p Point
	var params []byte
	if err := c.rows.Scan(
		&p.ID, &p.Payload.RepositoryName, &p.Payload.FilePath, &p.Payload.ModuleName,
		&p.Payload.Kind, &p.Payload.Name, &p.Payload.FullName, &p.Payload.ClassName,
		&params, &p.Payload.ReturnType, &p.Payload.Language, &p.Payload.ValidationStatus,
	); err != nil {
		return Point{}, false, apperr.Wrap(apperr.Internal, "scan scroll row", err)
	}
	_ = json.Unmarshal(params, &p.Payload.Parameters)
	return p, true, nil
}

func (c *pgScrollCursor) Close() error {
	c.rows.Close()
	return nil
}

func (s *PgvectorStore) Scroll(ctx context.Context, filter Filter, pageSize int) (ScrollCursor, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return nil, err
	}
	// pageSize is not used by this backend: pgx streams rows lazily, so a
	// single ordered query suffices.
	q := fmt.Sprintf(`
SELECT id, repository_name, file_path, module_name, kind, name, full_name,
       class_name, parameters, return_type, language, validation_status
FROM code_examples
WHERE %s
ORDER BY id ASC;`, where)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "scroll vector store", err)
	}
	_ = pageSize // backend streams row-by-row; pageSize only bounds batching upstream
	return &pgScrollCursor{rows: rows}, nil
}

func (s *PgvectorStore) Delete(ctx context.Context, filter Filter) error {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM code_examples WHERE %s;`, where)
	_, err = s.pool.Exec(ctx, q, args...)
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "delete code examples", err)
	}
	return nil
}

func (s *PgvectorStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`SELECT count(*) FROM code_examples WHERE %s;`, where)
	var n int
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.DependencyUnavailable, "count code examples", err)
	}
	return n, nil
}

func (s *PgvectorStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "vector store unreachable", err)
	}
	return nil
}

var _ Store = (*PgvectorStore)(nil)
