package convmem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storekit/semindex/pkg/embedding"
	"github.com/storekit/semindex/pkg/vectorstore"
)

// Entry is one customer exchange to remember.
type Entry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	CustomerID string         `json:"customer_id"`
	Message    string         `json:"message"`
	Response   string         `json:"response"`
	Timestamp  string         `json:"timestamp"` // RFC 3339
	Metadata   map[string]any `json:"metadata"`
}

// Match is one ranked conversation hit.
type Match struct {
	ID        string         `json:"id"`
	Score     float32        `json:"score"`
	Message   string         `json:"message"`
	Response  string         `json:"response"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Manager stores, retrieves and prunes per-customer conversation vectors.
// Collections are scoped to (tenant, customer) pairs.
type Manager struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

// New creates a Manager.
func New(embedder embedding.Embedder, store vectorstore.Store) *Manager {
	return &Manager{embedder: embedder, store: store}
}

// Store embeds the exchange and upserts it into the pair's collection,
// lazily creating the collection. A missing id gets a fresh UUID; a
// missing timestamp defaults to now.
func (m *Manager) Store(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().Format(time.RFC3339)
	}

	collection := vectorstore.ConversationCollection(entry.TenantID, entry.CustomerID)
	if err := m.store.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("ensure conversation collection: %w", err)
	}

	text := fmt.Sprintf("Message: %s\nResponse: %s", entry.Message, entry.Response)
	vector, err := m.embedder.EmbedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("embed conversation: %w", err)
	}

	meta := map[string]any{
		"tenant_id":   entry.TenantID,
		"customer_id": entry.CustomerID,
		"message":     entry.Message,
		"response":    entry.Response,
		"timestamp":   entry.Timestamp,
		"created_at":  time.Now().Unix(),
	}
	for k, v := range entry.Metadata {
		meta[k] = v
	}

	point := vectorstore.Point{
		ID:      entry.ID,
		Vector:  vector,
		Payload: vectorstore.PayloadFromMap(meta),
	}
	if err := m.store.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	return nil
}

// Search returns up to limit exchanges similar to query for the pair.
func (m *Manager) Search(ctx context.Context, tenantID, customerID, query string, limit int) ([]Match, error) {
	vector, err := m.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := &vectorstore.Filter{Must: []vectorstore.Condition{
		{Field: "tenant_id", Keyword: tenantID},
		{Field: "customer_id", Keyword: customerID},
	}}

	hits, err := m.store.Search(ctx,
		vectorstore.ConversationCollection(tenantID, customerID),
		vector, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		match := Match{ID: hit.ID, Score: hit.Score, Metadata: make(map[string]any)}
		for key, value := range hit.Payload {
			switch key {
			case "message":
				match.Message = value.StringValue()
			case "response":
				match.Response = value.StringValue()
			case "timestamp":
				match.Timestamp = value.StringValue()
			default:
				match.Metadata[key] = value.Interface()
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// SearchWithMaxAge searches and then discards exchanges older than
// maxAgeHours. It over-fetches twice the limit before filtering; when
// fewer than limit survive the cut it does not re-query with a larger
// fetch. Entries with missing or unparseable timestamps are excluded
// rather than assumed fresh.
func (m *Manager) SearchWithMaxAge(ctx context.Context, tenantID, customerID, query string, limit, maxAgeHours int) ([]Match, error) {
	all, err := m.Search(ctx, tenantID, customerID, query, limit*2)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)

	var fresh []Match
	for _, match := range all {
		if match.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, match.Timestamp)
		if err != nil {
			slog.Warn("skipping conversation with unparseable timestamp",
				"id", match.ID, "timestamp", match.Timestamp, "error", err)
			continue
		}
		if ts.After(cutoff) {
			fresh = append(fresh, match)
		}
		if len(fresh) >= limit {
			break
		}
	}
	return fresh, nil
}

// Cleanup deletes every exchange in the pair's collection older than
// maxAgeHours and returns the count removed. This is a periodic sweep,
// not continuous eviction.
func (m *Manager) Cleanup(ctx context.Context, tenantID, customerID string, maxAgeHours int) (int, error) {
	collection := vectorstore.ConversationCollection(tenantID, customerID)
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)

	var stale []string
	var cursor vectorstore.Cursor
	for {
		points, next, err := m.store.Scroll(ctx, collection, cursor, vectorstore.DefaultScrollPageSize, true)
		if err != nil {
			return 0, fmt.Errorf("scan conversations for cleanup: %w", err)
		}

		for _, p := range points {
			tsValue, ok := p.Payload["timestamp"]
			if !ok || tsValue.StringValue() == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, tsValue.StringValue())
			if err != nil {
				slog.Warn("skipping conversation with unparseable timestamp during cleanup",
					"id", p.ID, "timestamp", tsValue.StringValue(), "error", err)
				continue
			}
			if ts.Before(cutoff) {
				stale = append(stale, p.ID)
			}
		}

		if len(points) < vectorstore.DefaultScrollPageSize || next == "" {
			break
		}
		cursor = next
	}

	if len(stale) == 0 {
		return 0, nil
	}

	if err := m.store.DeleteByIDs(ctx, collection, stale); err != nil {
		return 0, fmt.Errorf("delete stale conversations: %w", err)
	}

	slog.Info("conversation cleanup completed",
		"tenant_id", tenantID, "customer_id", customerID,
		"removed", len(stale), "cutoff", cutoff.Format(time.RFC3339))
	return len(stale), nil
}
