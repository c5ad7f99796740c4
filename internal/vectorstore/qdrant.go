package vectorstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/seanblong/codeknow/internal/apperr"
	"github.com/seanblong/codeknow/pkg/codegraph"
)

// QdrantStore is the Qdrant backend: the second concrete Store
// implementation. Callers only ever depend on the Store capability set
// regardless of which database backs it.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrant dials host:port and ensures the collection exists with the
// given dimension and cosine distance.
func NewQdrant(ctx context.Context, host string, port int, collection string, dim int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "connect qdrant", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "check qdrant collection", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.DependencyUnavailable, "create qdrant collection", err)
		}
	}

	return &QdrantStore{client: client, collection: collection, dim: dim}, nil
}

// Qdrant point ids must be UUIDs or integers; CodeExample ids are 32-char
// hex strings, so the adapter inserts the UUID hyphens on write
// and strips them back out on read to keep ids identical across backends.
func idToUUID(id string) string {
	if len(id) != 32 {
		return id
	}
	return id[0:8] + "-" + id[8:12] + "-" + id[12:16] + "-" + id[16:20] + "-" + id[20:32]
}

func uuidToID(u string) string {
	return strings.ReplaceAll(u, "-", "")
}

func payloadToValueMap(p Point) (map[string]*qdrant.Value, error) {
	params, err := json.Marshal(p.Payload.Parameters)
	if err != nil {
		return nil, err
	}
	m := map[string]any{
		"repository_name":   p.Payload.RepositoryName,
		"file_path":         p.Payload.FilePath,
		"module_name":       p.Payload.ModuleName,
		"kind":              string(p.Payload.Kind),
		"name":              p.Payload.Name,
		"full_name":         p.Payload.FullName,
		"class_name":        p.Payload.ClassName,
		"parameters":        string(params),
		"return_type":       p.Payload.ReturnType,
		"language":          p.Payload.Language,
		"validation_status": p.Payload.ValidationStatus,
	}
	return qdrant.TryValueMap(m)
}

func valueMapToPayload(m map[string]*qdrant.Value) codegraph.CodeExamplePayload {
	get := func(k string) string {
		if v, ok := m[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	var params []codegraph.Parameter
	_ = json.Unmarshal([]byte(get("parameters")), &params)
	return codegraph.CodeExamplePayload{
		RepositoryName:   get("repository_name"),
		FilePath:         get("file_path"),
		ModuleName:       get("module_name"),
		Kind:             codegraph.Kind(get("kind")),
		Name:             get("name"),
		FullName:         get("full_name"),
		ClassName:        get("class_name"),
		Parameters:       params,
		ReturnType:       get("return_type"),
		Language:         get("language"),
		ValidationStatus: get("validation_status"),
	}
}

func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	wait := true
	up := &qdrant.UpsertPoints{CollectionName: s.collection, Wait: &wait}
	for _, p := range points {
		if len(p.Vector) != s.dim {
			return apperr.New(apperr.Corrupt, "vector dimension mismatch")
		}
		payload, err := payloadToValueMap(p)
		if err != nil {
			return apperr.Wrap(apperr.Corrupt, "build qdrant payload", err)
		}
		up.Points = append(up.Points, &qdrant.PointStruct{
			Id:      qdrant.NewID(idToUUID(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	if _, err := s.client.Upsert(ctx, up); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "qdrant upsert", err)
	}
	return nil
}

func qdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	f := &qdrant.Filter{}
	for k, v := range filter {
		f.Must = append(f.Must, qdrant.NewMatch(k, v))
	}
	return f
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error) {
	if topK <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "topK must be positive")
	}
	limit := uint64(topK)
	withPayload := qdrant.NewWithPayload(true)
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    withPayload,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.DependencyUnavailable, "qdrant query", err)
	}

	out := make([]ScoredPoint, 0, len(res))
	for _, p := range res {
		// Cosine scores range over [-1,1]; clamp into [0,1] as the
		// pgvector backend does in SQL.
		score := float64(p.GetScore())
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		sp := ScoredPoint{
			Point: Point{
				ID:      uuidToID(p.GetId().GetUuid()),
				Payload: valueMapToPayload(p.GetPayload()),
			},
			Score: score,
		}
		out = append(out, sp)
	}
	// The pgvector backend orders score-desc/id-asc in SQL; apply the same
	// ordering here so ties resolve identically across backends.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type qdrantScrollCursor struct {
	client     *qdrant.Client
	collection string
	filter     *qdrant.Filter
	pageSize   uint32
	offset     *qdrant.PointId
	buf        []Point
	exhausted  bool
}

func (c *qdrantScrollCursor) fill(ctx context.Context) error {
	limit := c.pageSize
	res, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collection,
		Filter:         c.filter,
		Limit:          &limit,
		Offset:         c.offset,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "qdrant scroll", err)
	}
	if len(res) < int(limit) {
		c.exhausted = true
	}
	for _, p := range res {
		id := p.GetId()
		c.buf = append(c.buf, Point{
			ID:      uuidToID(id.GetUuid()),
			Payload: valueMapToPayload(p.GetPayload()),
		})
		c.offset = id
	}
	return nil
}

func (c *qdrantScrollCursor) Next(ctx context.Context) (Point, bool, error) {
	if len(c.buf) == 0 {
		if c.exhausted {
			return Point{}, false, nil
		}
		if err := c.fill(ctx); err != nil {
			return Point{}, false, err
		}
		if len(c.buf) == 0 {
			return Point{}, false, nil
		}
	}
	p := c.buf[0]
	c.buf = c.buf[1:]
	return p, true, nil
}

func (c *qdrantScrollCursor) Close() error { return nil }

func (s *QdrantStore) Scroll(_ context.Context, filter Filter, pageSize int) (ScrollCursor, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &qdrantScrollCursor{
		client:     s.client,
		collection: s.collection,
		filter:     qdrantFilter(filter),
		pageSize:   uint32(pageSize),
	}, nil
}

func (s *QdrantStore) Delete(ctx context.Context, filter Filter) error {
	f := qdrantFilter(filter)
	if f == nil {
		return apperr.New(apperr.InvalidInput, "delete requires a non-empty filter")
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "qdrant delete", err)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	exact := true
	res, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         qdrantFilter(filter),
		Exact:          &exact,
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.DependencyUnavailable, "qdrant count", err)
	}
	return int(res), nil
}

func (s *QdrantStore) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "qdrant unreachable", err)
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
