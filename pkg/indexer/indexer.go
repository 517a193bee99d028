package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storekit/semindex/pkg/embedding"
	"github.com/storekit/semindex/pkg/hashcache"
	"github.com/storekit/semindex/pkg/vectorstore"
)

const (
	// DefaultChunkSize is the number of records embedded and upserted per
	// provider round trip.
	DefaultChunkSize = 500

	// DefaultChunkPause is the pacing delay between chunks, keeping bulk
	// resyncs under the embedding provider's rate limits.
	DefaultChunkPause = 100 * time.Millisecond
)

// Record is one catalog entity to index.
type Record struct {
	ID       string
	TenantID string

	Name        string
	Description string
	Brand       string
	Tags        string

	// Text overrides the canonical text built from the fields above.
	// Import jobs that already assembled the text set this directly.
	Text string

	Metadata map[string]any

	// Hash is the digest persisted on the catalog row, when the loader
	// fetched it with the record. Left empty, the indexer consults the
	// hash store instead.
	Hash string
}

// CanonicalText returns the stable concatenation the embedding is built
// from. Identical field values always produce identical text.
func (r Record) CanonicalText() string {
	if r.Text != "" {
		return r.Text
	}

	var parts []string
	if r.Name != "" {
		parts = append(parts, "Name: "+r.Name)
	}
	if r.Description != "" {
		parts = append(parts, "Description: "+r.Description)
	}
	if r.Brand != "" {
		parts = append(parts, "Brand: "+r.Brand)
	}
	if r.Tags != "" {
		parts = append(parts, "Tags: "+r.Tags)
	}
	return strings.Join(parts, ". ")
}

// ChunkError records the failure of one chunk during a sync run. Chunk
// failures are isolated: they are tallied, not propagated.
type ChunkError struct {
	TenantID string
	Start    int
	End      int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d-%d (tenant %s): %v", e.Start, e.End, e.TenantID, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Result is the tally of one sync run.
type Result struct {
	Processed    int
	Skipped      int
	Failed       int
	FailedChunks int
	Errors       []*ChunkError
}

func (r *Result) merge(other Result) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.FailedChunks += other.FailedChunks
	r.Errors = append(r.Errors, other.Errors...)
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithChunkSize sets the batch chunk size.
func WithChunkSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.chunkSize = n
		}
	}
}

// WithChunkPause sets the pacing delay between chunks.
func WithChunkPause(d time.Duration) Option {
	return func(ix *Indexer) {
		ix.chunkPause = d
	}
}

// WithWorkers sizes the pool serving IndexOneAsync.
func WithWorkers(workers, queueSize int) Option {
	return func(ix *Indexer) {
		ix.workers = workers
		ix.queueSize = queueSize
	}
}

// Indexer keeps tenant catalog collections synchronized with the
// relational source of truth.
type Indexer struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	hashes   hashcache.Store

	chunkSize  int
	chunkPause time.Duration
	workers    int
	queueSize  int

	pool *Pool
}

// New creates an Indexer over the given embedder, vector store and hash
// store.
func New(embedder embedding.Embedder, store vectorstore.Store, hashes hashcache.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		embedder:   embedder,
		store:      store,
		hashes:     hashes,
		chunkSize:  DefaultChunkSize,
		chunkPause: DefaultChunkPause,
		workers:    2,
		queueSize:  64,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.pool = NewPool(ix.workers, ix.queueSize)
	return ix
}

// SyncCatalog re-indexes the given records across all tenants. Records
// whose persisted digest matches their current canonical text are skipped
// without any provider call or vector write. Chunk failures are logged and
// tallied without aborting the remaining chunks or tenants. The returned
// error is non-nil only when ctx is canceled; the run stops cleanly
// between chunks and already-committed chunks stay intact.
func (ix *Indexer) SyncCatalog(ctx context.Context, records []Record) (Result, error) {
	byTenant := make(map[string][]Record)
	var tenants []string
	var result Result

	for _, r := range records {
		changed, err := ix.needsProcessing(ctx, r)
		if err != nil {
			// Unreadable digest: process rather than risk a stale vector.
			slog.Warn("digest lookup failed, re-embedding", "entity_id", r.ID, "error", err)
			changed = true
		}
		if !changed {
			result.Skipped++
			continue
		}
		if _, seen := byTenant[r.TenantID]; !seen {
			tenants = append(tenants, r.TenantID)
		}
		byTenant[r.TenantID] = append(byTenant[r.TenantID], r)
	}

	slog.Info("catalog sync analyzed",
		"total", len(records), "pending", len(records)-result.Skipped, "skipped", result.Skipped)

	for _, tenantID := range tenants {
		tenantResult, err := ix.syncTenantChunks(ctx, tenantID, byTenant[tenantID], false)
		result.merge(tenantResult)
		if err != nil {
			return result, err
		}
	}

	slog.Info("catalog sync completed",
		"processed", result.Processed, "skipped", result.Skipped,
		"failed", result.Failed, "failed_chunks", result.FailedChunks)
	return result, nil
}

// SyncTenant re-indexes one tenant's records, applying the same
// change-detection rule as SyncCatalog. Import jobs call this after bulk
// loading completes.
func (ix *Indexer) SyncTenant(ctx context.Context, tenantID string, records []Record) (Result, error) {
	var result Result
	var pending []Record

	for _, r := range records {
		if r.TenantID != tenantID {
			continue
		}
		changed, err := ix.needsProcessing(ctx, r)
		if err != nil {
			slog.Warn("digest lookup failed, re-embedding", "entity_id", r.ID, "error", err)
			changed = true
		}
		if !changed {
			result.Skipped++
			continue
		}
		pending = append(pending, r)
	}

	tenantResult, err := ix.syncTenantChunks(ctx, tenantID, pending, false)
	result.merge(tenantResult)
	return result, err
}

// ResyncTenantDestructive drops and recreates the tenant's collection,
// then indexes every record regardless of persisted digests. For
// administrative re-indexing only; incremental sync never recreates.
func (ix *Indexer) ResyncTenantDestructive(ctx context.Context, tenantID string, records []Record) (Result, error) {
	collection := vectorstore.ProductCollection(tenantID)
	if err := ix.store.RecreateCollection(ctx, collection); err != nil {
		return Result{}, fmt.Errorf("recreate collection %s: %w", collection, err)
	}

	var pending []Record
	for _, r := range records {
		if r.TenantID == tenantID {
			pending = append(pending, r)
		}
	}
	return ix.syncTenantChunks(ctx, tenantID, pending, true)
}

// syncTenantChunks processes one tenant's pending records in submission
// order, one chunk at a time. ensured is true when the collection was just
// recreated.
func (ix *Indexer) syncTenantChunks(ctx context.Context, tenantID string, pending []Record, ensured bool) (Result, error) {
	var result Result
	if len(pending) == 0 {
		return result, nil
	}

	collection := vectorstore.ProductCollection(tenantID)
	if !ensured {
		if err := ix.store.EnsureCollection(ctx, collection); err != nil {
			// Without a collection no chunk can land; count them all failed.
			slog.Error("ensure collection failed", "collection", collection, "error", err)
			result.Failed = len(pending)
			result.FailedChunks = (len(pending) + ix.chunkSize - 1) / ix.chunkSize
			result.Errors = append(result.Errors, &ChunkError{
				TenantID: tenantID, Start: 0, End: len(pending), Err: err,
			})
			return result, nil
		}
	}

	for start := 0; start < len(pending); start += ix.chunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + ix.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		if err := ix.processChunk(ctx, collection, chunk); err != nil {
			slog.Error("chunk failed", "tenant_id", tenantID, "start", start, "end", end, "error", err)
			result.Failed += len(chunk)
			result.FailedChunks++
			result.Errors = append(result.Errors, &ChunkError{
				TenantID: tenantID, Start: start, End: end, Err: err,
			})
		} else {
			result.Processed += len(chunk)
		}

		if end < len(pending) && ix.chunkPause > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(ix.chunkPause):
			}
		}
	}

	return result, nil
}

// processChunk embeds one chunk, upserts its points, and persists the new
// digests only after the upsert is confirmed.
func (ix *Indexer) processChunk(ctx context.Context, collection string, chunk []Record) error {
	texts := make([]string, len(chunk))
	for i, r := range chunk {
		texts[i] = r.CanonicalText()
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	points := make([]vectorstore.Point, len(chunk))
	for i, r := range chunk {
		points[i] = vectorstore.Point{
			ID:      r.ID,
			Vector:  vectors[i],
			Payload: buildPayload(r, texts[i]),
		}
	}

	if err := ix.store.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	// Digests are committed per chunk, and only now that the vector write
	// is confirmed. A failed Put leaves the entity re-embeddable.
	for i, r := range chunk {
		if err := ix.hashes.Put(ctx, r.ID, hashcache.Digest(texts[i])); err != nil {
			slog.Warn("failed to persist digest", "entity_id", r.ID, "error", err)
		}
	}
	return nil
}

// IndexOne indexes a single entity, honoring the change-detection rule.
func (ix *Indexer) IndexOne(ctx context.Context, r Record) error {
	changed, err := ix.needsProcessing(ctx, r)
	if err != nil {
		changed = true
	}
	if !changed {
		return nil
	}

	collection := vectorstore.ProductCollection(r.TenantID)
	if err := ix.store.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}

	text := r.CanonicalText()
	vector, err := ix.embedder.EmbedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("generate embedding for %s: %w", r.ID, err)
	}

	point := vectorstore.Point{ID: r.ID, Vector: vector, Payload: buildPayload(r, text)}
	if err := ix.store.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("upsert %s: %w", r.ID, err)
	}

	if err := ix.hashes.Put(ctx, r.ID, hashcache.Digest(text)); err != nil {
		slog.Warn("failed to persist digest", "entity_id", r.ID, "error", err)
	}
	return nil
}

// IndexOneAsync hands a single-entity upsert to the worker pool so the
// triggering write path never waits on embedding latency. Errors are
// logged and dropped: the triggering transaction has already committed.
func (ix *Indexer) IndexOneAsync(r Record) {
	ok := ix.pool.Submit(func(ctx context.Context) {
		if err := ix.IndexOne(ctx, r); err != nil {
			slog.Error("async index failed", "entity_id", r.ID, "tenant_id", r.TenantID, "error", err)
		}
	})
	if !ok {
		slog.Warn("index queue saturated, dropping task", "entity_id", r.ID, "tenant_id", r.TenantID)
	}
}

// DeleteOne removes an entity's vector after the catalog row is deleted.
func (ix *Indexer) DeleteOne(ctx context.Context, tenantID, entityID string) error {
	collection := vectorstore.ProductCollection(tenantID)
	if err := ix.store.DeleteByIDs(ctx, collection, []string{entityID}); err != nil {
		return fmt.Errorf("delete %s: %w", entityID, err)
	}
	return nil
}

// Close drains the async worker pool.
func (ix *Indexer) Close() {
	ix.pool.Close()
}

// needsProcessing applies the change-detection rule: skip when a persisted
// digest exists and equals the digest of the current canonical text.
func (ix *Indexer) needsProcessing(ctx context.Context, r Record) (bool, error) {
	persisted := r.Hash
	if persisted == "" {
		var err error
		persisted, err = ix.hashes.Get(ctx, r.ID)
		if err != nil {
			return true, err
		}
	}
	if persisted == "" {
		return true, nil
	}
	return persisted != hashcache.Digest(r.CanonicalText()), nil
}

func buildPayload(r Record, text string) vectorstore.Payload {
	meta := make(map[string]any, len(r.Metadata)+4)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta["product_id"] = r.ID
	meta["tenant_id"] = r.TenantID
	meta["text"] = text
	meta["created_at"] = time.Now().Unix()
	return vectorstore.PayloadFromMap(meta)
}
