package postgres

import (
	"fmt"

	gormhash "github.com/storekit/semindex/pkg/hashcache/gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// New creates a Postgres-backed hash store.
func New(dsn string) (*gormhash.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return gormhash.New(db), nil
}
