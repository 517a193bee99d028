package search

import (
	"context"
	"fmt"

	"github.com/storekit/semindex/pkg/embedding"
	"github.com/storekit/semindex/pkg/vectorstore"
)

// ProductMatch is one ranked similarity hit.
type ProductMatch struct {
	ProductID string         `json:"product_id"`
	Score     float32        `json:"score"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
}

// ProductSearcher runs similarity queries over tenant catalog collections.
type ProductSearcher struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

// New creates a ProductSearcher.
func New(embedder embedding.Embedder, store vectorstore.Store) *ProductSearcher {
	return &ProductSearcher{embedder: embedder, store: store}
}

// Search embeds the query and returns up to limit products ranked by
// similarity. An empty result set is a valid outcome, not an error. The
// collection is already tenant-scoped; the tenant_id filter is kept as
// defense in depth.
func (s *ProductSearcher) Search(ctx context.Context, tenantID, query string, limit int) ([]ProductMatch, error) {
	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx,
		vectorstore.ProductCollection(tenantID),
		vector,
		vectorstore.MatchKeyword("tenant_id", tenantID),
		limit)
	if err != nil {
		return nil, fmt.Errorf("search products for tenant %s: %w", tenantID, err)
	}

	matches := make([]ProductMatch, 0, len(hits))
	for _, hit := range hits {
		match := ProductMatch{
			ProductID: hit.ID,
			Score:     hit.Score,
			Metadata:  hit.Payload.ToMap(),
		}
		if v, ok := hit.Payload["product_id"]; ok && v.StringValue() != "" {
			match.ProductID = v.StringValue()
		}
		if v, ok := hit.Payload["text"]; ok {
			match.Text = v.StringValue()
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// VectorCount reports how many catalog vectors a tenant has stored.
func (s *ProductSearcher) VectorCount(ctx context.Context, tenantID string) (int, error) {
	ids, err := s.AllVectorIDs(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// AllVectorIDs enumerates every vector id in a tenant's catalog
// collection.
func (s *ProductSearcher) AllVectorIDs(ctx context.Context, tenantID string) ([]string, error) {
	scroller := vectorstore.NewIDScroller(s.store, vectorstore.ProductCollection(tenantID), "")
	ids, err := scroller.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate vectors for tenant %s: %w", tenantID, err)
	}
	return ids, nil
}
