package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/courtsidelabs/painttrack/internal/ledger"
)

const migrationBackfillRecordedAt = "2026-08-10_backfill_event_recorded_at"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var ledgerMigrations = []migrationDefinition{
	{name: migrationBackfillRecordedAt, apply: backfillRecordedAt},
}

var storeMigrations []migrationDefinition

func applyMigrations(db *gorm.DB, migrations []migrationDefinition, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before recorded_at_s existed carry a zero there; the touch
// timestamp is the closest available stand-in.
func backfillRecordedAt(db *gorm.DB) error {
	return db.Model(&ledger.TouchEvent{}).
		Where("recorded_at_s = 0").
		Update("recorded_at_s", gorm.Expr("timestamp_s")).Error
}
