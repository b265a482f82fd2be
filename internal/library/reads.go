package library

import (
	"context"
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Status describes the installed library.
type Status struct {
	Installed     bool
	Path          string
	Version       version.DatabaseVersion
	FileSizeBytes int64
	MarkerCount   int64
	TileCount     int
}

// InstalledVersion returns the version of the open library.
func (s *Service) InstalledVersion() (version.DatabaseVersion, bool) {
	current := s.store.Version()
	return current, current.IsValid()
}

// Status reports whether a library is installed and summarises its content.
func (s *Service) Status(ctx context.Context) (Status, error) {
	status := Status{Path: s.store.Path()}
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		count, err := repository.Markers(db).Count()
		if err != nil {
			return err
		}
		tiles, err := repository.TileLastUpdates(db).All()
		if err != nil {
			return err
		}
		status.MarkerCount = count
		status.TileCount = len(tiles)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotOpen) {
			return status, nil
		}
		return Status{}, s.fail(opRead, "status_failed", err)
	}
	status.Installed = true
	status.Version = s.store.Version()
	if info, statErr := os.Stat(status.Path); statErr == nil {
		status.FileSizeBytes = info.Size()
	}
	return status, nil
}

// GetMarker loads one marker with all its sections.
func (s *Service) GetMarker(ctx context.Context, id int64) (model.MarkerRecord, bool, error) {
	var (
		record model.MarkerRecord
		found  bool
	)
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		record, found, err = repository.Markers(db).Get(id)
		return err
	})
	if err != nil {
		return model.MarkerRecord{}, false, s.fail(opRead, "marker_query_failed", err, zap.Int64("marker_id", id))
	}
	return record, found, nil
}

// SearchMarkers returns marker rows matching the filter.
func (s *Service) SearchMarkers(ctx context.Context, filter repository.MarkerFilter) ([]model.Marker, error) {
	var markers []model.Marker
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		markers, err = repository.Markers(db).GetFiltered(filter)
		return err
	})
	if err != nil {
		return nil, s.fail(opRead, "marker_search_failed", err)
	}
	return markers, nil
}

// GetReviews returns the reviews of a marker.
func (s *Service) GetReviews(ctx context.Context, markerID int64) ([]model.ReviewRecord, error) {
	var reviews []model.ReviewRecord
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		reviews, err = repository.Reviews(db).GetForMarker(markerID)
		return err
	})
	if err != nil {
		return nil, s.fail(opRead, "review_query_failed", err, zap.Int64("marker_id", markerID))
	}
	return reviews, nil
}

// GetReviewSummary returns the review count and average rating of a marker.
// Summaries are cached until the next committed write.
func (s *Service) GetReviewSummary(ctx context.Context, markerID int64) (model.ReviewSummary, error) {
	var summary model.ReviewSummary
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		if cached, ok := s.summaries.Get(markerID); ok {
			summary = cached
			return nil
		}
		var err error
		summary, err = repository.Reviews(db).Summary(markerID)
		if err != nil {
			return err
		}
		s.summaries.Add(markerID, summary)
		return nil
	})
	if err != nil {
		return model.ReviewSummary{}, s.fail(opRead, "summary_query_failed", err, zap.Int64("marker_id", markerID))
	}
	return summary, nil
}

// GetTileLastUpdate returns the watermarks of a tile.
func (s *Service) GetTileLastUpdate(ctx context.Context, tile geo.Tile) (model.TileLastUpdate, bool, error) {
	var (
		row   model.TileLastUpdate
		found bool
	)
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		row, found, err = repository.TileLastUpdates(db).Get(tile)
		return err
	})
	if err != nil {
		return model.TileLastUpdate{}, false, s.fail(opRead, "tile_query_failed", err, zap.Stringer("tile", tile))
	}
	return row, found, nil
}

// GetTileLastUpdatesInBbox returns the stored watermarks of tiles overlapping the box.
func (s *Service) GetTileLastUpdatesInBbox(ctx context.Context, box geo.BoundingBox) (map[geo.Tile]model.TileLastUpdate, error) {
	var rows map[geo.Tile]model.TileLastUpdate
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		rows, err = repository.TileLastUpdates(db).GetBbox(box)
		return err
	})
	if err != nil {
		return nil, s.fail(opRead, "tile_query_failed", err)
	}
	return rows, nil
}

// GetLanguages returns every language.
func (s *Service) GetLanguages(ctx context.Context) ([]model.Language, error) {
	var languages []model.Language
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		languages, err = repository.Support(db).Languages()
		return err
	})
	if err != nil {
		return nil, s.fail(opRead, "support_query_failed", err)
	}
	return languages, nil
}

// GetTemplate returns a template by name.
func (s *Service) GetTemplate(ctx context.Context, name string) (model.MustacheTemplate, bool, error) {
	var (
		template model.MustacheTemplate
		found    bool
	)
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		template, found, err = repository.Support(db).Template(name)
		return err
	})
	if err != nil {
		return model.MustacheTemplate{}, false, s.fail(opRead, "support_query_failed", err)
	}
	return template, found, nil
}

// GetTranslations returns the strings of a language, or all strings when languageID is 0.
func (s *Service) GetTranslations(ctx context.Context, languageID int) ([]model.Translation, error) {
	var translations []model.Translation
	err := s.store.Read(ctx, func(db *gorm.DB) error {
		var err error
		translations, err = repository.Support(db).Translations(languageID)
		return err
	})
	if err != nil {
		return nil, s.fail(opRead, "support_query_failed", err)
	}
	return translations, nil
}
