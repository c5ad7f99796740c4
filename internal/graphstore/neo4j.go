package graphstore

import (
	"context"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Neo4jStore is the Neo4j-backed Graph Store.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j builds a driver for uri with basic auth and verifies
// connectivity before returning.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "verify neo4j connectivity", err)
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) query(ctx context.Context, statement string, params map[string]any) (*neo4j.EagerResult, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, statement, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "graph query failed", err)
	}
	return res, nil
}

func (s *Neo4jStore) Exists(ctx context.Context, repositoryName string) (bool, error) {
	res, err := s.query(ctx,
		`MATCH (r:Repository {name: $repository}) RETURN count(r) > 0 AS found`,
		map[string]any{"repository": repositoryName})
	if err != nil {
		return false, err
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	found, _ := res.Records[0].Get("found")
	b, _ := found.(bool)
	return b, nil
}

func (s *Neo4jStore) ClassExists(ctx context.Context, repositoryName, className string) (bool, error) {
	res, err := s.query(ctx, `
MATCH (r:Repository {name: $repository})-[:OWNS]->(:File)-[:DEFINES]->(c:Class {name: $class})
RETURN count(c) > 0 AS found`,
		map[string]any{"repository": repositoryName, "class": className})
	if err != nil {
		return false, err
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	found, _ := res.Records[0].Get("found")
	b, _ := found.(bool)
	return b, nil
}

func parametersFromRecord(raw any) []codegraph.Parameter {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]codegraph.Parameter, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := codegraph.Parameter{}
		if n, ok := m["name"].(string); ok {
			p.Name = n
		}
		if t, ok := m["type"].(string); ok {
			p.Type = t
		}
		out = append(out, p)
	}
	return out
}

func (s *Neo4jStore) MethodExists(ctx context.Context, repositoryName, className, methodName string) (MethodExistence, error) {
	res, err := s.query(ctx, `
MATCH (r:Repository {name: $repository})-[:OWNS]->(:File)-[:DEFINES]->(c:Class {name: $class})-[:HAS_METHOD]->(m:Method {name: $method})
RETURN m.parameters AS parameters, m.return_type AS return_type
LIMIT 1`,
		map[string]any{"repository": repositoryName, "class": className, "method": methodName})
	if err != nil {
		return MethodExistence{}, err
	}
	if len(res.Records) == 0 {
		return MethodExistence{Found: false}, nil
	}
	params, _ := res.Records[0].Get("parameters")
	returnType, _ := res.Records[0].Get("return_type")
	rt, _ := returnType.(string)
	return MethodExistence{
		Found:      true,
		Parameters: parametersFromRecord(params),
		ReturnType: rt,
	}, nil
}

func (s *Neo4jStore) FunctionExists(ctx context.Context, repositoryName, functionName string) (FunctionExistence, error) {
	res, err := s.query(ctx, `
MATCH (r:Repository {name: $repository})-[:OWNS]->(:File)-[:DEFINES]->(f:Function {name: $function})
RETURN f.parameters AS parameters, f.return_type AS return_type
LIMIT 1`,
		map[string]any{"repository": repositoryName, "function": functionName})
	if err != nil {
		return FunctionExistence{}, err
	}
	if len(res.Records) == 0 {
		return FunctionExistence{Found: false}, nil
	}
	params, _ := res.Records[0].Get("parameters")
	returnType, _ := res.Records[0].Get("return_type")
	rt, _ := returnType.(string)
	return FunctionExistence{
		Found:      true,
		Parameters: parametersFromRecord(params),
		ReturnType: rt,
	}, nil
}

type neo4jExtractionCursor struct {
	session neo4j.SessionWithContext
	result  neo4j.ResultWithContext
}

func (c *neo4jExtractionCursor) Next(ctx context.Context) (codegraph.ExtractionRecord, bool, error) {
	if !c.result.Next(ctx) {
		return codegraph.ExtractionRecord{}, false, c.result.Err()
	}
	rec := c.result.Record()
	get := func(k string) string {
		v, _ := rec.Get(k)
		s, _ := v.(string)
		return s
	}
	params, _ := rec.Get("parameters")
	returnType, _ := rec.Get("return_type")
	rt, _ := returnType.(string)

	out := codegraph.ExtractionRecord{
		Kind:       codegraph.Kind(get("kind")),
		Name:       get("name"),
		FullName:   get("full_name"),
		ClassName:  get("class_name"),
		FilePath:   get("file_path"),
		ModuleName: get("module_name"),
		Parameters: parametersFromRecord(params),
		ReturnType: rt,
	}
	return out, true, nil
}

func (c *neo4jExtractionCursor) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

// ListClassesMethodsFunctions streams every Class, Method and Function
// owned (directly or via a Class) by repositoryName's files. The query
// projects nodes, not paths, so cycles among Class relationships never
// affect this sweep.
func (s *Neo4jStore) ListClassesMethodsFunctions(ctx context.Context, repositoryName string) (ExtractionCursor, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	const stmt = `
MATCH (r:Repository {name: $repository})-[:OWNS]->(file:File)-[:DEFINES]->(c:Class)
RETURN 'class' AS kind, c.name AS name, c.full_name AS full_name, '' AS class_name,
       file.path AS file_path, file.module_name AS module_name,
       [] AS parameters, '' AS return_type
UNION ALL
MATCH (r:Repository {name: $repository})-[:OWNS]->(file:File)-[:DEFINES]->(c:Class)-[:HAS_METHOD]->(m:Method)
RETURN 'method' AS kind, m.name AS name, (c.name + '.' + m.name) AS full_name, c.name AS class_name,
       file.path AS file_path, file.module_name AS module_name,
       m.parameters AS parameters, m.return_type AS return_type
UNION ALL
MATCH (r:Repository {name: $repository})-[:OWNS]->(file:File)-[:DEFINES]->(f:Function)
RETURN 'function' AS kind, f.name AS name, f.name AS full_name, '' AS class_name,
       file.path AS file_path, file.module_name AS module_name,
       f.parameters AS parameters, f.return_type AS return_type`

	result, err := session.Run(ctx, stmt, map[string]any{"repository": repositoryName})
	if err != nil {
		_ = session.Close(ctx)
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "extraction sweep failed", err)
	}
	return &neo4jExtractionCursor{session: session, result: result}, nil
}

// NearestNames fetches the candidate pool (method names of a class, or
// function names in the repository) and ranks them by edit distance to
// target in Go, since Cypher has no native edit-distance function.
func (s *Neo4jStore) NearestNames(ctx context.Context, repositoryName, scope, target string, limit int) ([]string, error) {
	var stmt string
	params := map[string]any{"repository": repositoryName, "scope": scope}
	if scope == "" {
		stmt = `
MATCH (r:Repository {name: $repository})-[:OWNS]->(:File)-[:DEFINES]->(f:Function)
RETURN f.name AS name`
	} else {
		stmt = `
MATCH (r:Repository {name: $repository})-[:OWNS]->(:File)-[:DEFINES]->(c:Class {name: $scope})-[:HAS_METHOD]->(m:Method)
RETURN m.name AS name`
	}

	res, err := s.query(ctx, stmt, params)
	if err != nil {
		return nil, err
	}

	type cand struct {
		name string
		dist int
	}
	cands := make([]cand, 0, len(res.Records))
	for _, rec := range res.Records {
		v, _ := rec.Get("name")
		name, _ := v.(string)
		if name == "" {
			continue
		}
		cands = append(cands, cand{name: name, dist: levenshtein.ComputeDistance(target, name)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})
	if limit > len(cands) {
		limit = len(cands)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = cands[i].name
	}
	return out, nil
}

func (s *Neo4jStore) Health(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "graph store unreachable", err)
	}
	return nil
}

var _ Store = (*Neo4jStore)(nil)
