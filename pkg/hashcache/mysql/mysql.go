package mysql

import (
	"fmt"

	gormhash "github.com/storekit/semindex/pkg/hashcache/gorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// New creates a MySQL-backed hash store.
func New(dsn string) (*gormhash.Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	return gormhash.New(db), nil
}
