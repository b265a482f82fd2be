package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"go.uber.org/zap"
)

func TestEnsureSchemaRecordsMigrationsOnce(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")
	if err := Create(databasePath, version.MustParse("2.0.0.0"), zap.NewNop()); err != nil {
		testContext.Fatalf("failed to create database: %v", err)
	}

	db, err := OpenSQLite(databasePath, OpenOptions{JournalPolicy: JournalPolicySharedDelete})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	defer Close(db) //nolint:errcheck

	if err := EnsureSchema(db, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply schema: %v", err)
	}

	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != int64(len(schemaMigrations)) {
		testContext.Fatalf("expected %d migration records, got %d", len(schemaMigrations), count)
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationMarkerUpdatedIndex).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	for _, indexName := range []string{"idx_markers_name_nocase", "idx_review_photos_order", "idx_markers_last_updated", "idx_reviews_last_updated"} {
		var found string
		if err := db.Raw("SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", indexName).Scan(&found).Error; err != nil {
			testContext.Fatalf("failed to query index %s: %v", indexName, err)
		}
		if found != indexName {
			testContext.Fatalf("expected index %s to exist", indexName)
		}
	}
}
