package library

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/metrics"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Install paths recorded in metrics.
const (
	installPathAdopt    = "adopt"
	installPathMerge    = "merge"
	installPathReset    = "reset"
	installPathRejected = "rejected"
)

// OpenDatabase opens the library database. A rejected file is deleted so the
// caller can download a fresh one; a missing file is reported as
// store.ErrDatabaseMissing.
func (s *Service) OpenDatabase(ctx context.Context) error {
	err := s.store.Open(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrDatabaseMissing) {
		s.logger.Info("no library database installed", zap.String("path", s.store.Path()))
		return newServiceError(opOpenDatabase, "missing", err)
	}
	if errors.Is(err, store.ErrRejectedDatabase) {
		if deleteErr := s.store.Delete(); deleteErr != nil {
			return s.fail(opOpenDatabase, "rejected_delete_failed", errors.Join(err, deleteErr))
		}
		s.summaries.Purge()
		return s.fail(opOpenDatabase, "rejected", err)
	}
	return s.fail(opOpenDatabase, "open_failed", err)
}

// DeleteDatabase closes and removes the library database.
func (s *Service) DeleteDatabase(ctx context.Context) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()
	if err := s.store.Delete(); err != nil {
		return s.fail(opDeleteDatabase, "delete_failed", err)
	}
	s.summaries.Purge()
	return nil
}

// Sideload holds the library file consistent for an external copy.
type Sideload struct {
	guard   *store.SideloadGuard
	path    string
	metrics *metrics.Recorder
	once    sync.Once
}

// Path is the file to copy while the sideload is held.
func (s *Sideload) Path() string {
	return s.path
}

// End releases the sideload. Further calls do nothing.
func (s *Sideload) End() {
	s.once.Do(func() {
		s.guard.End()
		s.metrics.SideloadEnded()
	})
}

// BeginSideload checkpoints the library and blocks writers until End.
func (s *Service) BeginSideload(ctx context.Context) (*Sideload, error) {
	guard, err := s.store.BeginSideload(ctx)
	if err != nil {
		return nil, s.fail(opBeginSideload, "checkpoint_failed", err)
	}
	s.metrics.SideloadStarted()
	return &Sideload{guard: guard, path: s.store.Path(), metrics: s.metrics}, nil
}

// InstallSingleTileDatabase incorporates one downloaded tile database.
//
// The file is validated first and deleted when rejected. A file whose version
// is newer than the installed one resets the library. With no library
// installed the file is moved into place; otherwise it is merged and then
// removed whatever the merge outcome. Installs run one at a time.
func (s *Service) InstallSingleTileDatabase(ctx context.Context, tileFilePath string, tile geo.Tile) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	fields := []zap.Field{zap.String("file", tileFilePath), zap.Stringer("tile", tile)}
	if info, err := os.Stat(tileFilePath); err == nil {
		fields = append(fields, zap.String("size", humanize.Bytes(uint64(info.Size()))))
	}

	incoming, err := s.inspectTileDatabase(ctx, tileFilePath)
	if err != nil {
		if errors.Is(err, store.ErrRejectedDatabase) {
			s.metrics.Install(installPathRejected)
			if removeErr := database.RemoveWithSidecars(tileFilePath); removeErr != nil {
				s.logger.Warn("rejected tile file not removed", append(fields, zap.Error(removeErr))...)
			}
			return s.fail(opInstallSingleTileDatabase, "rejected", err, fields...)
		}
		return s.fail(opInstallSingleTileDatabase, "inspect_failed", err, fields...)
	}
	fields = append(fields, zap.String("incoming_version", incoming.String()))

	if !s.store.IsOpen() {
		if err := s.OpenDatabase(ctx); err != nil &&
			!errors.Is(err, store.ErrDatabaseMissing) && !errors.Is(err, store.ErrRejectedDatabase) {
			return s.fail(opInstallSingleTileDatabase, "open_failed", err, fields...)
		}
	}

	if s.store.IsOpen() {
		installed := s.store.Version()
		if incoming.IsNewerThan(installed) {
			s.logger.Info("newer full download, resetting library",
				append(fields, zap.String("installed_version", installed.String()))...)
			if err := s.store.Delete(); err != nil {
				return s.fail(opInstallSingleTileDatabase, "reset_failed", err, fields...)
			}
			s.summaries.Purge()
			s.metrics.Install(installPathReset)
		}
	}

	if !s.store.IsOpen() {
		if err := s.adoptTileDatabase(ctx, tileFilePath, tile); err != nil {
			return s.fail(opInstallSingleTileDatabase, "adopt_failed", err, fields...)
		}
		s.metrics.Install(installPathAdopt)
		s.logger.Info("tile database installed", fields...)
		return nil
	}

	defer func() {
		if removeErr := database.RemoveWithSidecars(tileFilePath); removeErr != nil {
			s.logger.Warn("tile file not removed after merge", append(fields, zap.Error(removeErr))...)
		}
	}()
	if err := s.mergeSingleTileDatabase(ctx, tileFilePath, tile); err != nil {
		return s.fail(opInstallSingleTileDatabase, "merge_failed", err, fields...)
	}
	s.metrics.Install(installPathMerge)
	s.logger.Info("tile database merged", fields...)
	return nil
}

func (s *Service) inspectTileDatabase(ctx context.Context, path string) (version.DatabaseVersion, error) {
	folded, err := database.FoldWAL(path)
	if err != nil {
		return version.DatabaseVersion{}, err
	}
	if folded {
		s.logger.Debug("write-ahead log folded into tile file", zap.String("file", path))
	}
	source, err := s.openSource(ctx, path)
	if err != nil {
		return version.DatabaseVersion{}, err
	}
	defer source.Close() //nolint:errcheck
	return source.Version(), nil
}

func (s *Service) adoptTileDatabase(ctx context.Context, path string, tile geo.Tile) error {
	if err := s.store.Adopt(ctx, path); err != nil {
		if removeErr := database.RemoveWithSidecars(path); removeErr != nil {
			s.logger.Warn("tile file not removed after failed adopt", zap.String("file", path), zap.Error(removeErr))
		}
		return err
	}

	seeded := false
	err := s.store.Write(ctx, func(tx *gorm.DB) error {
		tiles := repository.TileLastUpdates(tx)
		_, found, err := tiles.Get(tile)
		if err != nil || found {
			return err
		}
		markerLastUpdate, err := repository.Markers(tx).MaxLastUpdated()
		if err != nil {
			return err
		}
		reviewLastUpdate, err := repository.Reviews(tx).MaxLastUpdated()
		if err != nil {
			return err
		}
		seeded = true
		return tiles.Write(model.TileLastUpdate{
			TileX:                tile.X,
			TileY:                tile.Y,
			MarkerLastUpdate:     markerLastUpdate,
			UserReviewLastUpdate: reviewLastUpdate,
		})
	})
	if err != nil {
		return err
	}
	if seeded {
		s.logger.Debug("tile watermark seeded from adopted file", zap.Stringer("tile", tile))
	}
	s.summaries.Purge()
	s.publisher.Publish(notify.TileUpdated(tile))
	return nil
}

// MergeSingleTileDatabase merges a tile database into the library one page
// of markers at a time. Each page commits on its own: a failure stops the
// merge and leaves earlier pages in place, and running the merge again is
// the recovery.
func (s *Service) MergeSingleTileDatabase(ctx context.Context, sourceFile string, tile geo.Tile) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()
	return s.mergeSingleTileDatabase(ctx, sourceFile, tile)
}

func (s *Service) mergeSingleTileDatabase(ctx context.Context, sourceFile string, tile geo.Tile) (err error) {
	defer func() {
		s.metrics.ObserveMerge(err)
	}()
	fields := []zap.Field{zap.String("file", sourceFile), zap.Stringer("tile", tile)}

	if !s.store.IsOpen() {
		return s.fail(opMergeSingleTileDatabase, "not_open", store.ErrNotOpen, fields...)
	}

	source, err := s.openSource(ctx, sourceFile)
	if err != nil {
		return s.fail(opMergeSingleTileDatabase, "source_open_failed", err, fields...)
	}
	defer source.Close() //nolint:errcheck

	var support repository.SupportTables
	if err := source.Read(ctx, func(db *gorm.DB) error {
		var loadErr error
		support, loadErr = repository.Support(db).Load()
		return loadErr
	}); err != nil {
		return s.fail(opMergeSingleTileDatabase, "source_read_failed", err, fields...)
	}
	if !support.IsEmpty() {
		if err := s.ApplySupportTableUpdate(ctx, support.Languages, support.Templates, support.Translations); err != nil {
			return s.fail(opMergeSingleTileDatabase, "support_apply_failed", err, fields...)
		}
	}

	if err := s.markTileKnown(ctx, tile); err != nil {
		return s.fail(opMergeSingleTileDatabase, "watermark_write_failed", err, fields...)
	}

	var afterID int64
	pages, markerCount, reviewCount := 0, 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return s.fail(opMergeSingleTileDatabase, "cancelled", err, append(fields, zap.Int("pages", pages))...)
		}

		var markers []model.MarkerRecord
		var reviews []model.ReviewRecord
		if err := source.Read(ctx, func(db *gorm.DB) error {
			var loadErr error
			markers, loadErr = repository.Markers(db).Page(afterID, s.mergePageSize)
			if loadErr != nil || len(markers) == 0 {
				return loadErr
			}
			ids := make([]int64, 0, len(markers))
			for _, marker := range markers {
				ids = append(ids, marker.ID)
			}
			reviews, loadErr = repository.Reviews(db).GetForMarkers(ids)
			return loadErr
		}); err != nil {
			return s.fail(opMergeSingleTileDatabase, "source_read_failed", err, append(fields, zap.Int("pages", pages))...)
		}
		if len(markers) == 0 {
			break
		}

		if err := s.ApplyMarkerUpdate(ctx, markers, &tile); err != nil {
			return s.fail(opMergeSingleTileDatabase, "page_failed", err, append(fields, zap.Int("pages", pages))...)
		}
		if len(reviews) > 0 {
			if err := s.ApplyReviewUpdate(ctx, reviews, &tile); err != nil {
				return s.fail(opMergeSingleTileDatabase, "page_failed", err, append(fields, zap.Int("pages", pages))...)
			}
		}
		s.metrics.MergePageCommitted()

		pages++
		markerCount += len(markers)
		reviewCount += len(reviews)
		afterID = markers[len(markers)-1].ID
		if len(markers) < s.mergePageSize {
			break
		}
	}

	s.logger.Info("tile database merge complete",
		append(fields,
			zap.Int("pages", pages),
			zap.Int("markers", markerCount),
			zap.Int("reviews", reviewCount))...)
	return nil
}

// markTileKnown resets the tile's watermarks to zero before a merge. The
// merged pages raise them again to the newest timestamps they carry, and an
// empty source still leaves the tile marked as synced.
func (s *Service) markTileKnown(ctx context.Context, tile geo.Tile) error {
	return s.store.Write(ctx, func(tx *gorm.DB) error {
		return repository.TileLastUpdates(tx).Write(model.TileLastUpdate{TileX: tile.X, TileY: tile.Y})
	})
}

func (s *Service) openSource(ctx context.Context, path string) (*store.Store, error) {
	source, err := store.New(store.Config{
		Path:     path,
		ReadOnly: true,
		Logger:   s.logger.Named("source"),
	})
	if err != nil {
		return nil, err
	}
	if err := source.Open(ctx); err != nil {
		return nil, err
	}
	return source, nil
}
