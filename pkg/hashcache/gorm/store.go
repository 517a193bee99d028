package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/storekit/semindex/pkg/hashcache/consts"
	"gorm.io/gorm"
)

// Store implements hashcache.Store against the digest column on the
// catalog table. The catalog storage layer owns the schema; this store
// only reads and updates the column, it never migrates.
type Store struct {
	db     *gorm.DB
	table  string
	column string
}

// New creates a Store over the default catalog table and column.
func New(db *gorm.DB) *Store {
	return NewWithTable(db, consts.TableNameProducts, consts.ColEmbeddingHash)
}

// NewWithTable creates a Store over a specific table and digest column.
func NewWithTable(db *gorm.DB, table, column string) *Store {
	return &Store{db: db, table: table, column: column}
}

// Get returns the persisted digest for an entity, or "" when the row does
// not exist or carries no digest.
func (s *Store) Get(ctx context.Context, entityID string) (string, error) {
	var digest *string
	err := s.db.WithContext(ctx).
		Table(s.table).
		Select(s.column).
		Where(consts.ColID+" = ?", entityID).
		Scan(&digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read digest for %s: %w", entityID, err)
	}
	if digest == nil {
		return "", nil
	}
	return *digest, nil
}

// Put updates the digest column for an entity.
func (s *Store) Put(ctx context.Context, entityID, digest string) error {
	err := s.db.WithContext(ctx).
		Table(s.table).
		Where(consts.ColID+" = ?", entityID).
		Update(s.column, digest).Error
	if err != nil {
		return fmt.Errorf("failed to update digest for %s: %w", entityID, err)
	}
	return nil
}
