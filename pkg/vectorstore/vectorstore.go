package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the vector backend could not be reached.
	// Retryable; at startup its surfacing is advisory only.
	ErrUnavailable = errors.New("vectorstore: backend unavailable")

	// ErrDimensionMismatch indicates a vector whose width does not match
	// the dimension configured on the store's collections. This is a fatal
	// configuration error, not a per-call condition.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

	// ErrCollectionNotFound indicates an operation against a collection
	// that does not exist. EnsureCollection consumes this internally;
	// callers normally never see it.
	ErrCollectionNotFound = errors.New("vectorstore: collection not found")
)

// Point is a stored vector with its payload. ID is the source entity's
// primary key, so re-storing the same entity overwrites rather than
// duplicates.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	Point
	Score float32
}

// Condition matches a payload field against a keyword value.
type Condition struct {
	Field   string
	Keyword string
}

// Filter restricts search results by payload fields. All Must conditions
// have to hold.
type Filter struct {
	Must []Condition
}

// MatchKeyword builds a single-condition must filter.
func MatchKeyword(field, keyword string) *Filter {
	return &Filter{Must: []Condition{{Field: field, Keyword: keyword}}}
}

// Cursor is an opaque scroll position. The zero value starts from the
// beginning of a collection.
type Cursor string

// Store manages tenant-scoped collections in a vector database.
type Store interface {
	// EnsureCollection creates the collection if it does not exist and
	// no-ops otherwise. Safe under concurrent callers: duplicate-create
	// races resolve to a no-op.
	EnsureCollection(ctx context.Context, name string) error

	// RecreateCollection deletes the collection if present, tolerating
	// absence, then creates it fresh. Used only for destructive resync.
	RecreateCollection(ctx context.Context, name string) error

	// Upsert writes points keyed by their stable ids, overwriting points
	// that already exist with the same id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// DeleteByIDs removes the points with the given ids.
	DeleteByIDs(ctx context.Context, collection string, ids []string) error

	// Scroll returns one page of points starting after cursor, plus the
	// cursor for the next page. A page shorter than limit means the
	// collection is exhausted. Payloads are fetched only when withPayload
	// is set; vectors are never fetched.
	Scroll(ctx context.Context, collection string, cursor Cursor, limit int, withPayload bool) ([]Point, Cursor, error)

	// Search returns up to limit points ordered by similarity score
	// descending, each with its stored payload.
	Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error)

	// HealthCheck performs a lightweight reachability probe with a short
	// timeout.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// ProductCollection returns the catalog collection name for a tenant.
func ProductCollection(tenantID string) string {
	return fmt.Sprintf("products_tenant_%s", tenantID)
}

// ConversationCollection returns the conversation collection name for a
// tenant and customer pair.
func ConversationCollection(tenantID, customerID string) string {
	return fmt.Sprintf("conversations_tenant_%s_customer_%s", tenantID, customerID)
}
