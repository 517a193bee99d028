package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/storekit/semindex/pkg/vectorstore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const healthTimeout = 5 * time.Second

// Store implements vectorstore.Store on Postgres with the pgvector
// extension. Each collection is its own table with an id primary key, a
// jsonb payload and a vector column, so upserts stay idempotent and
// tenant namespaces stay physically separated.
type Store struct {
	db        *gorm.DB
	dimension uint64
}

// New connects to Postgres and enables the pgvector extension.
func New(dsn string, dimension uint64) (*Store, error) {
	if dimension == 0 {
		return nil, fmt.Errorf("pgvector: dimension is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("pgvector: enable extension: %w", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

// EnsureCollection creates the collection table if absent. CREATE TABLE IF
// NOT EXISTS makes concurrent duplicate creates a no-op.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, payload jsonb, embedding vector(%d))",
		tableName(name), s.dimension)
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("pgvector: create collection %s: %w", name, err)
	}
	return nil
}

// RecreateCollection drops the collection table and creates it fresh.
func (s *Store) RecreateCollection(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + tableName(name)).Error; err != nil {
		return fmt.Errorf("pgvector: drop collection %s: %w", name, err)
	}
	return s.EnsureCollection(ctx, name)
}

// Upsert writes points keyed by id, overwriting existing rows.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, payload, embedding) VALUES (?, ?, ?) "+
			"ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding",
		tableName(collection))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range points {
			if uint64(len(p.Vector)) != s.dimension {
				return fmt.Errorf("%w: point %s has %d dims, collection configured for %d",
					vectorstore.ErrDimensionMismatch, p.ID, len(p.Vector), s.dimension)
			}

			payloadJSON, err := json.Marshal(p.Payload.ToMap())
			if err != nil {
				return fmt.Errorf("pgvector: marshal payload for %s: %w", p.ID, err)
			}

			if err := tx.Exec(stmt, p.ID, payloadJSON, pgvector.NewVector(p.Vector)).Error; err != nil {
				return fmt.Errorf("pgvector: upsert %s into %s: %w", p.ID, collection, err)
			}
		}
		return nil
	})
}

// DeleteByIDs removes the rows with the given ids.
func (s *Store) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id IN ?", tableName(collection))
	if err := s.db.WithContext(ctx).Exec(stmt, ids).Error; err != nil {
		return fmt.Errorf("pgvector: delete from %s: %w", collection, err)
	}
	return nil
}

// Scroll pages through the collection in id order using keyset pagination.
func (s *Store) Scroll(ctx context.Context, collection string, cursor vectorstore.Cursor, limit int, withPayload bool) ([]vectorstore.Point, vectorstore.Cursor, error) {
	cols := "id"
	if withPayload {
		cols = "id, payload"
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id > ? ORDER BY id LIMIT ?", cols, tableName(collection))
	rows, err := s.db.WithContext(ctx).Raw(query, string(cursor), limit).Rows()
	if err != nil {
		return nil, "", fmt.Errorf("pgvector: scroll %s: %w", collection, err)
	}
	defer rows.Close()

	var points []vectorstore.Point
	for rows.Next() {
		var p vectorstore.Point
		if withPayload {
			var payloadJSON []byte
			if err := rows.Scan(&p.ID, &payloadJSON); err != nil {
				return nil, "", fmt.Errorf("pgvector: scan scroll row: %w", err)
			}
			p.Payload = unmarshalPayload(payloadJSON)
		} else if err := rows.Scan(&p.ID); err != nil {
			return nil, "", fmt.Errorf("pgvector: scan scroll row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("pgvector: scroll %s: %w", collection, err)
	}

	var next vectorstore.Cursor
	if len(points) == limit {
		next = vectorstore.Cursor(points[len(points)-1].ID)
	}
	return points, next, nil
}

// Search orders by cosine distance ascending and reports the score as
// cosine similarity (1 - distance).
func (s *Store) Search(ctx context.Context, collection string, vector []float32, filter *vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dims, collection configured for %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}

	where := ""
	args := []any{pgvector.NewVector(vector)}
	if filter != nil && len(filter.Must) > 0 {
		var clauses []string
		for _, c := range filter.Must {
			clauses = append(clauses, "payload->>? = ?")
			args = append(args, c.Field, c.Keyword)
		}
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		"SELECT id, payload, 1 - (embedding <=> ?) AS score FROM %s%s ORDER BY score DESC LIMIT ?",
		tableName(collection), where)

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", collection, err)
	}
	defer rows.Close()

	var results []vectorstore.ScoredPoint
	for rows.Next() {
		var (
			sp          vectorstore.ScoredPoint
			payloadJSON []byte
		)
		if err := rows.Scan(&sp.ID, &payloadJSON, &sp.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan search row: %w", err)
		}
		sp.Payload = unmarshalPayload(payloadJSON)
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", collection, err)
	}
	return results, nil
}

// HealthCheck pings the database with a short timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tableName maps a collection name onto a safe SQL identifier. Collection
// names embed tenant ids, which may carry bytes Postgres identifiers do
// not allow.
func tableName(collection string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(collection) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func unmarshalPayload(data []byte) vectorstore.Payload {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return vectorstore.PayloadFromMap(m)
}

var _ vectorstore.Store = (*Store)(nil)
