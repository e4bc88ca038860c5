// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/inventory-ledger/internal/config"
	"github.com/inventory-ledger/internal/database"
	"gorm.io/gorm"
)

// New returns a migrated database stored in the test's temp directory.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := config.Default().Database
	cfg.Driver = config.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.MaxRetries = 1

	db, err := database.Open(cfg, "test", nil)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
