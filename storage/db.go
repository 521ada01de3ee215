// Package storage opens the local SQLite database backing package store.
// It mirrors the otc-gateway's gorm.Open/AutoMigrate startup sequence, with
// glebarez/sqlite (a pure-Go driver) in place of the server-oriented
// postgres driver: this engine runs embedded in a single-user wallet
// client, not behind a shared database server.
package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if necessary) the SQLite database at path and
// returns the *gorm.DB callers run AutoMigrate and queries against. An
// empty path opens a private in-memory database, used by tests.
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("storage: underlying sql.DB: %w", err)
	}
	// SQLite serializes writers; a single open connection avoids
	// "database is locked" errors under concurrent reducer/engine access.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
