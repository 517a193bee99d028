package mssql

import (
	"fmt"

	gormhash "github.com/storekit/semindex/pkg/hashcache/gorm"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

// New creates a SQL Server-backed hash store.
func New(dsn string) (*gormhash.Store, error) {
	db, err := gorm.Open(sqlserver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlserver: %w", err)
	}
	return gormhash.New(db), nil
}
