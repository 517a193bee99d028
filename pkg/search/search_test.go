package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/storekit/semindex/pkg/vectorstore"
)

// letterEmbedder maps text to a letter-frequency vector so identical
// texts embed identically and cosine similarity behaves like the real
// thing.
type letterEmbedder struct{}

func (letterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range text {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e letterEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, _ := e.Embed(ctx, []string{text})
	return vectors[0], nil
}

func (letterEmbedder) Dimension() uint64 { return 26 }

// cosineStore ranks stored points by real cosine similarity.
type cosineStore struct {
	collections map[string]map[string]vectorstore.Point
}

func newCosineStore() *cosineStore {
	return &cosineStore{collections: make(map[string]map[string]vectorstore.Point)}
}

func (s *cosineStore) EnsureCollection(ctx context.Context, name string) error {
	if s.collections[name] == nil {
		s.collections[name] = make(map[string]vectorstore.Point)
	}
	return nil
}

func (s *cosineStore) RecreateCollection(ctx context.Context, name string) error {
	s.collections[name] = make(map[string]vectorstore.Point)
	return nil
}

func (s *cosineStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]vectorstore.Point)
	}
	for _, p := range points {
		s.collections[collection][p.ID] = p
	}
	return nil
}

func (s *cosineStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	for _, id := range ids {
		delete(s.collections[collection], id)
	}
	return nil
}

func (s *cosineStore) Scroll(ctx context.Context, collection string, cursor vectorstore.Cursor, limit int, withPayload bool) ([]vectorstore.Point, vectorstore.Cursor, error) {
	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var page []vectorstore.Point
	for _, id := range ids {
		if cursor != "" && id <= string(cursor) {
			continue
		}
		page = append(page, vectorstore.Point{ID: id})
		if len(page) == limit {
			break
		}
	}
	var next vectorstore.Cursor
	if len(page) == limit {
		next = vectorstore.Cursor(page[len(page)-1].ID)
	}
	return page, next, nil
}

func (s *cosineStore) Search(ctx context.Context, collection string, vector []float32, filter *vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	var hits []vectorstore.ScoredPoint
	for _, p := range s.collections[collection] {
		if !matches(p, filter) {
			continue
		}
		hits = append(hits, vectorstore.ScoredPoint{Point: p, Score: cosine(vector, p.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *cosineStore) HealthCheck(ctx context.Context) error { return nil }
func (s *cosineStore) Close() error                          { return nil }

func matches(p vectorstore.Point, filter *vectorstore.Filter) bool {
	if filter == nil {
		return true
	}
	for _, c := range filter.Must {
		v, ok := p.Payload[c.Field]
		if !ok || v.StringValue() != c.Keyword {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func storeProduct(t *testing.T, store *cosineStore, tenantID, productID, text string) {
	t.Helper()
	vec, _ := letterEmbedder{}.EmbedOne(context.Background(), text)
	collection := vectorstore.ProductCollection(tenantID)
	_ = store.EnsureCollection(context.Background(), collection)
	err := store.Upsert(context.Background(), collection, []vectorstore.Point{{
		ID:     productID,
		Vector: vec,
		Payload: vectorstore.PayloadFromMap(map[string]any{
			"product_id": productID,
			"tenant_id":  tenantID,
			"text":       text,
		}),
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSearch_RoundTrip(t *testing.T) {
	store := newCosineStore()
	storeProduct(t, store, "t1", "p1", "ceramic espresso cups set of six")
	storeProduct(t, store, "t1", "p2", "stainless steel water bottle")

	searcher := New(letterEmbedder{}, store)
	matches, err := searcher.Search(context.Background(), "t1", "ceramic espresso cups set of six", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].ProductID != "p1" {
		t.Errorf("top match = %s, want p1", matches[0].ProductID)
	}
	if matches[0].Score <= 0.5 {
		t.Errorf("score = %f, want > 0.5 for near-identical text", matches[0].Score)
	}
	if matches[0].Text != "ceramic espresso cups set of six" {
		t.Errorf("text = %q", matches[0].Text)
	}
}

func TestSearch_TenantIsolation(t *testing.T) {
	store := newCosineStore()
	storeProduct(t, store, "tenant-a", "p1", "ceramic espresso cups")

	searcher := New(letterEmbedder{}, store)
	matches, err := searcher.Search(context.Background(), "tenant-b", "ceramic espresso cups", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("tenant B saw %d of tenant A's products", len(matches))
	}
}

func TestSearch_TenantFilterDefenseInDepth(t *testing.T) {
	store := newCosineStore()
	// A foreign point that somehow landed in the tenant's collection must
	// still be filtered out by the payload condition.
	collection := vectorstore.ProductCollection("t1")
	vec, _ := letterEmbedder{}.EmbedOne(context.Background(), "ceramic espresso cups")
	_ = store.Upsert(context.Background(), collection, []vectorstore.Point{{
		ID:     "intruder",
		Vector: vec,
		Payload: vectorstore.PayloadFromMap(map[string]any{
			"product_id": "intruder",
			"tenant_id":  "t2",
		}),
	}})

	searcher := New(letterEmbedder{}, store)
	matches, err := searcher.Search(context.Background(), "t1", "ceramic espresso cups", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("payload filter let %d foreign points through", len(matches))
	}
}

func TestSearch_DeletedNeverReturned(t *testing.T) {
	store := newCosineStore()
	storeProduct(t, store, "t1", "p1", "ceramic espresso cups")

	if err := store.DeleteByIDs(context.Background(), vectorstore.ProductCollection("t1"), []string{"p1"}); err != nil {
		t.Fatal(err)
	}

	searcher := New(letterEmbedder{}, store)
	matches, err := searcher.Search(context.Background(), "t1", "ceramic espresso cups", 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.ProductID == "p1" {
			t.Error("deleted product returned by search")
		}
	}
}

func TestSearch_EmptyResultIsNotError(t *testing.T) {
	store := newCosineStore()
	searcher := New(letterEmbedder{}, store)

	matches, err := searcher.Search(context.Background(), "t1", "anything", 5)
	if err != nil {
		t.Fatalf("empty result should not error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %d", len(matches))
	}
}

func TestAllVectorIDs(t *testing.T) {
	store := newCosineStore()
	for i := 0; i < 25; i++ {
		storeProduct(t, store, "t1", fmt.Sprintf("p%02d", i), fmt.Sprintf("product %d", i))
	}

	searcher := New(letterEmbedder{}, store)
	ids, err := searcher.AllVectorIDs(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 25 {
		t.Errorf("ids = %d, want 25", len(ids))
	}

	count, err := searcher.VectorCount(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 25 {
		t.Errorf("count = %d, want 25", count)
	}
}
