package database

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// JournalPolicy selects how the primary database file is locked and journaled.
type JournalPolicy string

const (
	// JournalPolicyExclusiveWAL keeps the file locked by this process and journals through a write-ahead log.
	JournalPolicyExclusiveWAL JournalPolicy = "exclusive_wal"
	// JournalPolicySharedDelete uses normal locking and a rollback journal so an external reader can open the file.
	JournalPolicySharedDelete JournalPolicy = "shared_delete"
	// JournalPolicyNone leaves the connection defaults untouched. Used for read-only sources.
	JournalPolicyNone JournalPolicy = ""
)

var (
	// ErrUnknownJournalPolicy indicates a policy name that is not recognised.
	ErrUnknownJournalPolicy = errors.New("database: unknown journal policy")
	// ErrJournalMode indicates that SQLite refused the requested journal mode.
	ErrJournalMode = errors.New("database: journal mode not applied")
)

// ParseJournalPolicy validates a configured policy name.
func ParseJournalPolicy(rawInput string) (JournalPolicy, error) {
	switch JournalPolicy(strings.ToLower(strings.TrimSpace(rawInput))) {
	case JournalPolicyExclusiveWAL:
		return JournalPolicyExclusiveWAL, nil
	case JournalPolicySharedDelete:
		return JournalPolicySharedDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownJournalPolicy, rawInput)
	}
}

// OpenOptions controls how a database file is opened.
type OpenOptions struct {
	ReadOnly      bool
	JournalPolicy JournalPolicy
}

// OpenSQLite opens an existing SQLite file and applies the journal policy.
// The connection pool is pinned to a single connection.
func OpenSQLite(path string, options OpenOptions) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn, err := fileDSN(path, options.ReadOnly)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := applyJournalPolicy(db, options.JournalPolicy); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// fileDSN builds a file: URI for path. Reserved characters in the path are
// escaped so they are not read as the URI query or fragment.
func fileDSN(path string, readOnly bool) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	uri := url.URL{Scheme: "file", Path: filepath.ToSlash(absolute)}
	if readOnly {
		uri.RawQuery = "mode=ro"
	}
	return uri.String(), nil
}

// FoldWAL checkpoints a write-ahead log left next to a closed database file
// back into the file and removes the sidecars, so the file can be read
// read-only or moved on its own. It reports whether a log was folded.
// Files without the SQLite header are left alone.
func FoldWAL(path string) (bool, error) {
	walPresent, err := fileExists(path + "-wal")
	if err != nil || !walPresent {
		return false, err
	}
	signed, err := HasSQLiteSignature(path)
	if err != nil || !signed {
		return false, err
	}

	db, err := OpenSQLite(path, OpenOptions{JournalPolicy: JournalPolicySharedDelete})
	if err != nil {
		return false, fmt.Errorf("fold write-ahead log of %s: %w", path, err)
	}
	if err := Close(db); err != nil {
		return false, err
	}
	if err := os.Remove(path + "-shm"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, err
	}
	return true, nil
}

// Close releases the connection behind a gorm handle.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyJournalPolicy(db *gorm.DB, policy JournalPolicy) error {
	var lockingMode, journalMode string
	switch policy {
	case JournalPolicyNone:
		return nil
	case JournalPolicyExclusiveWAL:
		lockingMode, journalMode = "EXCLUSIVE", "wal"
	case JournalPolicySharedDelete:
		lockingMode, journalMode = "NORMAL", "delete"
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJournalPolicy, policy)
	}

	// locking_mode must precede journal_mode so an exclusive WAL needs no shared-memory file.
	var appliedLocking string
	if err := db.Raw("PRAGMA locking_mode = " + lockingMode).Scan(&appliedLocking).Error; err != nil {
		return fmt.Errorf("%w: locking_mode: %v", ErrJournalMode, err)
	}
	var appliedJournal string
	if err := db.Raw("PRAGMA journal_mode = " + journalMode).Scan(&appliedJournal).Error; err != nil {
		return fmt.Errorf("%w: journal_mode: %v", ErrJournalMode, err)
	}
	if !strings.EqualFold(appliedJournal, journalMode) {
		return fmt.Errorf("%w: requested %s, got %q", ErrJournalMode, journalMode, appliedJournal)
	}
	return nil
}

// EnsureSchema creates missing tables and applies pending migrations.
func EnsureSchema(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(model.SchemaModels()...); err != nil {
		return err
	}
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

// Create builds a new, empty library database file stamped with the given version.
// It fails when the file already exists.
func Create(path string, databaseVersion version.DatabaseVersion, logger *zap.Logger) error {
	if !databaseVersion.IsValid() {
		return fmt.Errorf("%w: %s", version.ErrInvalidVersion, databaseVersion)
	}
	if exists, err := fileExists(path); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("database file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	db, err := OpenSQLite(path, OpenOptions{JournalPolicy: JournalPolicySharedDelete})
	if err != nil {
		return err
	}
	defer Close(db) //nolint:errcheck

	if err := EnsureSchema(db, logger); err != nil {
		return err
	}
	if err := WriteVersion(db, databaseVersion); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("database created", zap.String("path", path), zap.String("version", databaseVersion.String()))
	}
	return nil
}

// ReadVersion loads the version row of an open database.
func ReadVersion(db *gorm.DB) (version.DatabaseVersion, error) {
	var row model.VersionRow
	if err := db.Order("id ASC").Take(&row).Error; err != nil {
		return version.DatabaseVersion{}, err
	}
	return version.Parse(row.Version)
}

// WriteVersion replaces the version row.
func WriteVersion(db *gorm.DB, databaseVersion version.DatabaseVersion) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.VersionRow{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.VersionRow{ID: 1, Version: databaseVersion.String()}).Error
	})
}
