package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationMarkerNameSearchIndex = "2024-06-01_marker_name_search_index"
	migrationReviewPhotoOrderIndex = "2024-09-12_review_photo_order_index"
	migrationMarkerUpdatedIndex    = "2025-02-03_marker_last_updated_index"
	migrationReviewUpdatedIndex    = "2025-02-03_review_last_updated_index"
)

// schemaMigrations run in order on every writable open. Each one is applied
// together with its ledger row so a crash never records a half-applied step.
var schemaMigrations = []struct {
	name      string
	statement string
}{
	{migrationMarkerNameSearchIndex, "CREATE INDEX IF NOT EXISTS idx_markers_name_nocase ON markers(name COLLATE NOCASE)"},
	{migrationReviewPhotoOrderIndex, "CREATE INDEX IF NOT EXISTS idx_review_photos_order ON review_photos(review_id, ordinal)"},
	{migrationMarkerUpdatedIndex, "CREATE INDEX IF NOT EXISTS idx_markers_last_updated ON markers(last_updated)"},
	{migrationReviewUpdatedIndex, "CREATE INDEX IF NOT EXISTS idx_reviews_last_updated ON reviews(last_updated)"},
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range schemaMigrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(migration.statement).Error; err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Debug("schema migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}
