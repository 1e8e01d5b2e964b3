package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/store"
)

// OpenLedger establishes the client-side ledger database and performs schema
// migrations. The ledger is a single-writer file; one connection is enough
// and avoids SQLITE_BUSY under concurrent reads during a sync pass.
func OpenLedger(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ledger.TouchEvent{}, &ledger.Possession{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, ledgerMigrations, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("ledger database initialized", zap.String("path", path))
	}

	return db, nil
}

// OpenStore establishes the server-side store database and performs schema
// migrations.
func OpenStore(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&store.TouchEvent{}, &store.Possession{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, storeMigrations, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("store database initialized", zap.String("path", path))
	}

	return db, nil
}

func open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
