package sqlite

import (
	"fmt"

	gormhash "github.com/storekit/semindex/pkg/hashcache/gorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New creates a SQLite-backed hash store.
func New(dsn string) (*gormhash.Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return gormhash.New(db), nil
}
