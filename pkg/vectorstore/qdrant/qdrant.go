package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/storekit/semindex/pkg/vectorstore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// FallbackPort is tried when the primary gRPC port is unreachable at
	// startup. Some deployments expose only the REST-mapped port.
	FallbackPort = 6333

	defaultRequestTimeout = 30 * time.Second
	healthTimeout         = 5 * time.Second
)

// Config configures the Qdrant store.
type Config struct {
	Host string
	// Port is the Qdrant gRPC port. Default 6334.
	Port int
	// APIKey is the optional bearer credential for authenticated
	// deployments.
	APIKey string
	UseTLS bool
	// Dimension is the vector width of every collection this store
	// manages. Must match the embedder's output width.
	Dimension uint64
	// RequestTimeout bounds individual calls. Default 30s.
	RequestTimeout time.Duration
}

// Store implements vectorstore.Store backed by Qdrant.
type Store struct {
	client    *qdrant.Client
	dimension uint64
	timeout   time.Duration
}

// New creates a Store and verifies connectivity. If the primary port is
// unreachable it retries once on FallbackPort. A failing health check on
// both ports still returns a usable store wrapped with an advisory
// ErrUnavailable so callers can choose to start anyway.
func New(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Dimension == 0 {
		return nil, fmt.Errorf("qdrant: dimension is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	client, err := connect(cfg, cfg.Port)
	if err != nil {
		return nil, err
	}

	store := &Store{client: client, dimension: cfg.Dimension, timeout: cfg.RequestTimeout}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := store.HealthCheck(ctx); err != nil && cfg.Port != FallbackPort {
		slog.Warn("qdrant unreachable on primary port, trying fallback",
			"host", cfg.Host, "port", cfg.Port, "fallback", FallbackPort, "error", err)
		_ = client.Close()

		fallback, ferr := connect(cfg, FallbackPort)
		if ferr != nil {
			return nil, ferr
		}
		store.client = fallback
	}

	return store, nil
}

func connect(cfg Config, port int) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	return client, nil
}

// EnsureCollection creates the collection with cosine distance and the
// configured dimension if absent. A concurrent duplicate create resolves
// to a no-op.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return s.wrap("check collection", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
			return nil
		}
		return s.wrap("create collection", name, err)
	}
	return nil
}

// RecreateCollection drops the collection if present and creates it fresh.
func (s *Store) RecreateCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return s.wrap("delete collection", name, err)
		}
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return s.wrap("create collection", name, err)
	}
	return nil
}

// Upsert writes points keyed by their stable ids.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if uint64(len(p.Vector)) != s.dimension {
			return fmt.Errorf("%w: point %s has %d dims, collection configured for %d",
				vectorstore.ErrDimensionMismatch, p.ID, len(p.Vector), s.dimension)
		}
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           &wait,
	})
	if err != nil {
		return s.wrap("upsert", collection, err)
	}
	return nil
}

// DeleteByIDs removes the points with the given ids.
func (s *Store) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return s.wrap("delete points", collection, err)
	}
	return nil
}

// Scroll returns one page of points after cursor plus the next cursor.
func (s *Store) Scroll(ctx context.Context, collection string, cursor vectorstore.Cursor, limit int, withPayload bool) ([]vectorstore.Point, vectorstore.Cursor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(withPayload),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if cursor != "" {
		req.Offset = qdrant.NewIDUUID(string(cursor))
	}

	retrieved, nextOffset, err := s.client.ScrollAndOffset(ctx, req)
	if err != nil {
		return nil, "", s.wrap("scroll", collection, err)
	}

	points := make([]vectorstore.Point, len(retrieved))
	for i, p := range retrieved {
		points[i] = vectorstore.Point{
			ID:      pointIDString(p.Id),
			Payload: fromQdrantPayload(p.Payload),
		}
	}

	var next vectorstore.Cursor
	if nextOffset != nil {
		next = vectorstore.Cursor(pointIDString(nextOffset))
	}
	return points, next, nil
}

// Search returns up to limit points ordered by cosine similarity.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, filter *vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dims, collection configured for %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, s.wrap("search", collection, err)
	}

	results := make([]vectorstore.ScoredPoint, len(hits))
	for i, hit := range hits {
		results[i] = vectorstore.ScoredPoint{
			Point: vectorstore.Point{
				ID:      pointIDString(hit.Id),
				Payload: fromQdrantPayload(hit.Payload),
			},
			Score: hit.Score,
		}
	}
	return results, nil
}

// HealthCheck lists collections as a lightweight reachability probe.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if _, err := s.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) wrap(op, collection string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("qdrant: %s %s: %w: %v", op, collection, vectorstore.ErrUnavailable, err)
		case codes.NotFound:
			return fmt.Errorf("qdrant: %s %s: %w", op, collection, vectorstore.ErrCollectionNotFound)
		}
	}
	return fmt.Errorf("qdrant: %s %s: %w", op, collection, err)
}

func toQdrantPayload(p vectorstore.Payload) map[string]*qdrant.Value {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		switch v.Kind() {
		case vectorstore.KindString, vectorstore.KindJSON:
			out[k] = qdrant.NewValueString(v.StringValue())
		case vectorstore.KindInt:
			out[k] = qdrant.NewValueInt(v.IntValue())
		case vectorstore.KindFloat:
			out[k] = qdrant.NewValueDouble(v.FloatValue())
		case vectorstore.KindBool:
			out[k] = qdrant.NewValueBool(v.BoolValue())
		}
	}
	return out
}

func fromQdrantPayload(p map[string]*qdrant.Value) vectorstore.Payload {
	if len(p) == 0 {
		return nil
	}
	out := make(vectorstore.Payload, len(p))
	for k, v := range p {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[k] = vectorstore.String(val.StringValue)
		case *qdrant.Value_IntegerValue:
			out[k] = vectorstore.Int(val.IntegerValue)
		case *qdrant.Value_DoubleValue:
			out[k] = vectorstore.Float(val.DoubleValue)
		case *qdrant.Value_BoolValue:
			out[k] = vectorstore.Bool(val.BoolValue)
		}
	}
	return out
}

func toQdrantFilter(f *vectorstore.Filter) *qdrant.Filter {
	if f == nil || len(f.Must) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, len(f.Must))
	for i, c := range f.Must {
		must[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: c.Keyword},
					},
				},
			},
		}
	}
	return &qdrant.Filter{Must: must}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

var _ vectorstore.Store = (*Store)(nil)
