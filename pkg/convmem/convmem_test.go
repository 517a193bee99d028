package convmem

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/storekit/semindex/pkg/vectorstore"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e constEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, _ := e.Embed(ctx, []string{text})
	return vectors[0], nil
}

func (constEmbedder) Dimension() uint64 { return 3 }

// fakeStore returns points in insertion order on Search and records the
// requested limit so over-fetch behavior can be asserted.
type fakeStore struct {
	collections map[string][]vectorstore.Point
	lastLimit   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string][]vectorstore.Point)}
}

func (s *fakeStore) EnsureCollection(ctx context.Context, name string) error {
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = nil
	}
	return nil
}

func (s *fakeStore) RecreateCollection(ctx context.Context, name string) error {
	s.collections[name] = nil
	return nil
}

func (s *fakeStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	for _, p := range points {
		replaced := false
		for i, existing := range s.collections[collection] {
			if existing.ID == p.ID {
				s.collections[collection][i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			s.collections[collection] = append(s.collections[collection], p)
		}
	}
	return nil
}

func (s *fakeStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []vectorstore.Point
	for _, p := range s.collections[collection] {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	s.collections[collection] = kept
	return nil
}

func (s *fakeStore) Scroll(ctx context.Context, collection string, cursor vectorstore.Cursor, limit int, withPayload bool) ([]vectorstore.Point, vectorstore.Cursor, error) {
	points := append([]vectorstore.Point(nil), s.collections[collection]...)
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	var page []vectorstore.Point
	for _, p := range points {
		if cursor != "" && p.ID <= string(cursor) {
			continue
		}
		page = append(page, p)
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

func (s *fakeStore) Search(ctx context.Context, collection string, vector []float32, filter *vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	s.lastLimit = limit
	var hits []vectorstore.ScoredPoint
	score := float32(1.0)
	for _, p := range s.collections[collection] {
		hits = append(hits, vectorstore.ScoredPoint{Point: p, Score: score})
		score -= 0.01
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (s *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                          { return nil }

func entryAged(id string, age time.Duration) Entry {
	return Entry{
		ID:         id,
		TenantID:   "t1",
		CustomerID: "c1",
		Message:    "where is my order",
		Response:   "it ships tomorrow",
		Timestamp:  time.Now().Add(-age).Format(time.RFC3339),
	}
}

func mustStore(t *testing.T, m *Manager, entries ...Entry) {
	t.Helper()
	for _, e := range entries {
		if err := m.Store(context.Background(), e); err != nil {
			t.Fatalf("Store %s failed: %v", e.ID, err)
		}
	}
}

func TestStore_AssignsIDAndTimestamp(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)

	err := m.Store(context.Background(), Entry{
		TenantID: "t1", CustomerID: "c1",
		Message: "hi", Response: "hello",
	})
	if err != nil {
		t.Fatal(err)
	}

	collection := vectorstore.ConversationCollection("t1", "c1")
	points := store.collections[collection]
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if points[0].ID == "" {
		t.Error("entry id not assigned")
	}
	ts := points[0].Payload["timestamp"].StringValue()
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", ts, err)
	}
}

func TestSearch_ExtractsFields(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)
	mustStore(t, m, entryAged("e1", time.Hour))

	matches, err := m.Search(context.Background(), "t1", "c1", "order", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d", len(matches))
	}
	if matches[0].Message != "where is my order" || matches[0].Response != "it ships tomorrow" {
		t.Errorf("fields not extracted: %+v", matches[0])
	}
}

func TestSearchWithMaxAge_FiltersByAge(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)
	mustStore(t, m,
		entryAged("e-1h", time.Hour),
		entryAged("e-10h", 10*time.Hour),
		entryAged("e-48h", 48*time.Hour),
	)

	matches, err := m.SearchWithMaxAge(context.Background(), "t1", "c1", "order", 10, 24)
	if err != nil {
		t.Fatal(err)
	}

	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2 (1h and 10h)", len(matches))
	}
	for _, match := range matches {
		if match.ID == "e-48h" {
			t.Error("48h-old entry returned with maxAgeHours=24")
		}
	}
}

func TestSearchWithMaxAge_OverFetchesDouble(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)
	mustStore(t, m, entryAged("e1", time.Hour))

	if _, err := m.SearchWithMaxAge(context.Background(), "t1", "c1", "order", 7, 24); err != nil {
		t.Fatal(err)
	}
	if store.lastLimit != 14 {
		t.Errorf("search limit = %d, want 2x requested", store.lastLimit)
	}
}

func TestSearchWithMaxAge_ExcludesUnparseableTimestamps(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)

	bad := entryAged("e-bad", time.Hour)
	bad.Timestamp = "yesterday-ish"
	missing := entryAged("e-missing", time.Hour)
	missing.Timestamp = " " // non-empty so Store keeps it as-is
	mustStore(t, m, bad, missing, entryAged("e-ok", time.Hour))

	matches, err := m.SearchWithMaxAge(context.Background(), "t1", "c1", "order", 10, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "e-ok" {
		t.Errorf("matches = %+v, want only e-ok", matches)
	}
}

func TestCleanup_RemovesOnlyStale(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)
	mustStore(t, m,
		entryAged("e-1h", time.Hour),
		entryAged("e-10h", 10*time.Hour),
		entryAged("e-48h", 48*time.Hour),
	)

	removed, err := m.Cleanup(context.Background(), "t1", "c1", 24)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	collection := vectorstore.ConversationCollection("t1", "c1")
	for _, p := range store.collections[collection] {
		if p.ID == "e-48h" {
			t.Error("stale entry survived cleanup")
		}
	}
	if len(store.collections[collection]) != 2 {
		t.Errorf("remaining = %d, want 2", len(store.collections[collection]))
	}
}

func TestCleanup_NothingStale(t *testing.T) {
	store := newFakeStore()
	m := New(constEmbedder{}, store)
	mustStore(t, m, entryAged("e-1h", time.Hour))

	removed, err := m.Cleanup(context.Background(), "t1", "c1", 24)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
