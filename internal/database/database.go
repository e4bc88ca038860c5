// Package database opens the gorm connection for the configured driver and
// migrates the schema.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/inventory-ledger/internal/config"
	"github.com/inventory-ledger/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database described by cfg, retrying while the server
// is not reachable yet, and runs the schema migration.
func Open(cfg config.DatabaseConfig, mode string, log *logrus.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if mode == "release" || mode == "test" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var db *gorm.DB
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true})
		if err == nil {
			break
		}
		if attempt == attempts {
			return nil, fmt.Errorf("open database after %d attempts: %w", attempts, err)
		}
		if log != nil {
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     attempts,
			}).WithError(err).Warn("database connection failed")
		}
		time.Sleep(cfg.RetryDelay())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == config.DriverSQLite {
		// SQLite allows a single writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		applySQLitePragmas(db, log)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func applySQLitePragmas(db *gorm.DB, log *logrus.Logger) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil && log != nil {
			log.WithField("pragma", p).WithError(err).Warn("sqlite pragma failed")
		}
	}
}

// AutoMigrate creates or updates the tables for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Token{},
		&models.InventoryItem{},
	)
}
