// Package store owns the single library database connection and the
// reader/writer gate every access to it goes through.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingPath indicates a store configured without a database path.
	ErrMissingPath = errors.New("store: database path is required")
	// ErrDatabaseMissing indicates that no file exists at the configured path.
	ErrDatabaseMissing = errors.New("store: database file does not exist")
	// ErrRejectedDatabase marks a file that must be deleted and downloaded again.
	ErrRejectedDatabase = errors.New("store: database rejected")
	// ErrInvalidSignature indicates a file that is not an SQLite 3 database.
	ErrInvalidSignature = errors.New("store: invalid database signature")
	// ErrIncompatibleSchema indicates a database whose version is unreadable or of another schema.
	ErrIncompatibleSchema = errors.New("store: incompatible schema")
	// ErrJournalConfig indicates that the journal policy could not be applied.
	ErrJournalConfig = errors.New("store: journal configuration failed")
	// ErrNotOpen indicates an access to a closed store.
	ErrNotOpen = errors.New("store: database not open")
	// ErrReadOnly indicates a write attempted through a read-only store.
	ErrReadOnly = errors.New("store: database opened read-only")
	// ErrAlreadyExists indicates an adopt onto an existing database file.
	ErrAlreadyExists = errors.New("store: database file already exists")
)

// Config describes one database file and how it is opened.
type Config struct {
	Path          string
	JournalPolicy database.JournalPolicy
	// ReadOnly opens the file with mode=ro and skips journal configuration and schema upkeep.
	ReadOnly  bool
	Publisher notify.Publisher
	// Plugins are registered on every connection the store opens.
	Plugins []gorm.Plugin
	Logger  *zap.Logger
}

// Store is the persistent store handle. The gate is held shared for reads
// and exclusive for writes and lifecycle changes.
type Store struct {
	gate *gate

	path      string
	policy    database.JournalPolicy
	readOnly  bool
	publisher notify.Publisher
	plugins   []gorm.Plugin
	logger    *zap.Logger

	db      *gorm.DB
	version version.DatabaseVersion
}

func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, ErrMissingPath
	}
	policy := cfg.JournalPolicy
	if cfg.ReadOnly {
		policy = database.JournalPolicyNone
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		gate:      newGate(),
		path:      cfg.Path,
		policy:    policy,
		readOnly:  cfg.ReadOnly,
		publisher: publisher,
		plugins:   cfg.Plugins,
		logger:    logger.With(zap.String("database", cfg.Path)),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// IsOpen reports whether a connection is held.
func (s *Store) IsOpen() bool {
	s.gate.rLock()
	defer s.gate.rUnlock()
	return s.db != nil
}

// Version returns the version read when the store was opened, or the invalid version when closed.
func (s *Store) Version() version.DatabaseVersion {
	s.gate.rLock()
	defer s.gate.rUnlock()
	return s.version
}

// Exists reports whether the database file is present on disk.
func (s *Store) Exists() (bool, error) {
	s.gate.rLock()
	defer s.gate.rUnlock()
	return database.FileExists(s.path)
}

// Open validates and opens the database file. Opening an open store is a no-op.
func (s *Store) Open(ctx context.Context) error {
	s.gate.lock()
	defer s.gate.unlock()
	if s.db != nil {
		return nil
	}
	return s.openLocked(ctx)
}

// Close releases the connection. Closing a closed store only logs.
func (s *Store) Close() error {
	s.gate.lock()
	defer s.gate.unlock()
	return s.closeLocked()
}

// Delete closes the store and removes the database file with its sidecars.
func (s *Store) Delete() error {
	s.gate.lock()
	defer s.gate.unlock()

	if err := s.closeLocked(); err != nil {
		s.logger.Warn("close before delete failed", zap.Error(err))
	}
	if err := database.RemoveWithSidecars(s.path); err != nil {
		s.logger.Error("database delete failed", zap.Error(err))
		return fmt.Errorf("delete %s: %w", s.path, err)
	}
	s.logger.Info("database deleted")
	s.publisher.Publish(notify.NotInstalled())
	return nil
}

// Adopt moves sourcePath and its journal sidecars into place as the database
// file and opens it. It fails with ErrAlreadyExists when a database file is
// already present.
func (s *Store) Adopt(ctx context.Context, sourcePath string) error {
	s.gate.lock()
	defer s.gate.unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	exists, err := database.FileExists(s.path)
	if err != nil {
		return err
	}
	if exists || s.db != nil {
		return ErrAlreadyExists
	}
	if err := database.MoveWithSidecars(sourcePath, s.path); err != nil {
		return fmt.Errorf("move %s into place: %w", sourcePath, err)
	}
	return s.openLocked(ctx)
}

// Read runs fn with the gate held shared.
func (s *Store) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	s.gate.rLock()
	defer s.gate.rUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	return fn(s.db.WithContext(ctx))
}

// Write runs fn inside one transaction with the gate held exclusive.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.gate.lock()
	defer s.gate.unlock()
	if s.db == nil {
		s.logger.DPanic("write attempted on closed database")
		return ErrNotOpen
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) openLocked(ctx context.Context) error {
	exists, err := database.FileExists(s.path)
	if err != nil {
		return err
	}
	if !exists {
		return ErrDatabaseMissing
	}

	signed, err := database.HasSQLiteSignature(s.path)
	if err != nil {
		return err
	}
	if !signed {
		return s.reject(fmt.Errorf("%w: %w", ErrRejectedDatabase, ErrInvalidSignature))
	}

	db, err := database.OpenSQLite(s.path, database.OpenOptions{ReadOnly: s.readOnly, JournalPolicy: s.policy})
	if err != nil {
		if errors.Is(err, database.ErrJournalMode) {
			s.logger.Error("journal policy not applied", zap.String("policy", string(s.policy)), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrJournalConfig, err)
		}
		return err
	}

	for _, plugin := range s.plugins {
		if err := db.Use(plugin); err != nil {
			_ = database.Close(db)
			return err
		}
	}

	stored, err := database.ReadVersion(db.WithContext(ctx))
	if err != nil {
		_ = database.Close(db)
		return s.reject(fmt.Errorf("%w: %w: %v", ErrRejectedDatabase, ErrIncompatibleSchema, err))
	}
	if !stored.SchemaCompatible() {
		_ = database.Close(db)
		return s.reject(fmt.Errorf("%w: %w: version %s, supported schema %d",
			ErrRejectedDatabase, ErrIncompatibleSchema, stored, version.Supported.Schema))
	}

	if !s.readOnly {
		if err := database.EnsureSchema(db.WithContext(ctx), s.logger); err != nil {
			_ = database.Close(db)
			return err
		}
	}

	s.db = db
	s.version = stored
	s.logger.Info("database opened",
		zap.String("version", stored.String()),
		zap.Bool("read_only", s.readOnly),
		zap.String("journal_policy", string(s.policy)))
	s.publisher.Publish(notify.Installed())
	return nil
}

func (s *Store) closeLocked() error {
	if s.db == nil {
		s.logger.Debug("close on closed database")
		return nil
	}
	err := database.Close(s.db)
	s.db = nil
	s.version = version.DatabaseVersion{}
	if err != nil {
		return err
	}
	s.logger.Debug("database closed")
	return nil
}

func (s *Store) reject(err error) error {
	s.logger.Warn("database rejected", zap.Error(err))
	s.publisher.Publish(notify.NotInstalled())
	return err
}
