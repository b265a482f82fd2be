package library

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// watermarkField selects one of the two watermarks of a tile row.
type watermarkField func(row *model.TileLastUpdate) *int64

func markerWatermark(row *model.TileLastUpdate) *int64 {
	return &row.MarkerLastUpdate
}

func reviewWatermark(row *model.TileLastUpdate) *int64 {
	return &row.UserReviewLastUpdate
}

// ApplyMarkerUpdate upserts or deletes every marker of the batch in one
// transaction. With a tile, the tile's marker watermark advances to the batch
// maximum when that is strictly newer than the stored value.
func (s *Service) ApplyMarkerUpdate(ctx context.Context, batch []model.MarkerRecord, tile *geo.Tile) error {
	started := time.Now()
	err := s.applyBatch(ctx, opApplyMarkerUpdate, kindMarker, len(batch), tile, markerWatermark, func(tx *gorm.DB) (int64, error) {
		return repository.Markers(tx).Update(batch)
	})
	s.metrics.ObserveApply(kindMarker, len(batch), started, err)
	return err
}

// ApplyReviewUpdate is ApplyMarkerUpdate for reviews and the review watermark.
func (s *Service) ApplyReviewUpdate(ctx context.Context, batch []model.ReviewRecord, tile *geo.Tile) error {
	started := time.Now()
	err := s.applyBatch(ctx, opApplyReviewUpdate, kindReview, len(batch), tile, reviewWatermark, func(tx *gorm.DB) (int64, error) {
		return repository.Reviews(tx).Update(batch)
	})
	s.metrics.ObserveApply(kindReview, len(batch), started, err)
	return err
}

func (s *Service) applyBatch(
	ctx context.Context,
	operation, kind string,
	size int,
	tile *geo.Tile,
	field watermarkField,
	update func(tx *gorm.DB) (int64, error),
) error {
	if size == 0 {
		return s.fail(operation, "empty_batch", ErrEmptyBatch)
	}

	advanced := false
	err := s.store.Write(ctx, func(tx *gorm.DB) error {
		maxLastUpdated, err := update(tx)
		if err != nil {
			return newServiceError(operation, "record_update_failed", err)
		}
		if tile != nil {
			advanced, err = s.advanceWatermark(tx, *tile, maxLastUpdated, kind, field)
			if err != nil {
				return newServiceError(operation, "watermark_write_failed", err)
			}
		}
		s.summaries.Purge()
		return nil
	})
	if err != nil {
		fields := []zap.Field{zap.Int("records", size)}
		if tile != nil {
			fields = append(fields, zap.Stringer("tile", *tile))
		}
		return s.fail(operation, "transaction_failed", err, fields...)
	}

	if advanced {
		s.publisher.Publish(notify.TileUpdated(*tile))
	}
	return nil
}

// advanceWatermark writes candidate into the selected watermark only when it
// is strictly greater than the stored value. The other watermark is kept.
func (s *Service) advanceWatermark(tx *gorm.DB, tile geo.Tile, candidate int64, kind string, field watermarkField) (bool, error) {
	tiles := repository.TileLastUpdates(tx)
	row, _, err := tiles.Get(tile)
	if err != nil {
		return false, err
	}
	current := field(&row)
	if candidate <= *current {
		s.metrics.WatermarkSkipped(kind)
		s.logger.Debug("tile watermark not advanced",
			zap.String("kind", kind),
			zap.Stringer("tile", tile),
			zap.Int64("stored", *current),
			zap.Int64("candidate", candidate))
		return false, nil
	}
	*current = candidate
	if err := tiles.Write(row); err != nil {
		return false, err
	}
	return true, nil
}

// ApplySupportTableUpdate replaces each non-empty support set wholesale in
// one transaction. Empty sets leave the stored rows untouched.
func (s *Service) ApplySupportTableUpdate(ctx context.Context, languages []model.Language, templates []model.MustacheTemplate, translations []model.Translation) error {
	started := time.Now()
	tables := repository.SupportTables{Languages: languages, Templates: templates, Translations: translations}
	records := len(languages) + len(templates) + len(translations)

	err := s.store.Write(ctx, func(tx *gorm.DB) error {
		if err := repository.Support(tx).Replace(tables); err != nil {
			return newServiceError(opApplySupportTableUpdate, "replace_failed", err)
		}
		return nil
	})
	if err != nil {
		err = s.fail(opApplySupportTableUpdate, "transaction_failed", err, zap.Int("records", records))
	}
	s.metrics.ObserveApply(kindSupport, records, started, err)
	return err
}

// DeleteTile removes every marker inside the tile with its sections and
// reviews, and forgets the tile watermarks, in one transaction.
func (s *Service) DeleteTile(ctx context.Context, tile geo.Tile) error {
	var markerCount, reviewCount int64
	err := s.store.Write(ctx, func(tx *gorm.DB) error {
		ids, err := repository.Markers(tx).IDsInTile(tile)
		if err != nil {
			return newServiceError(opDeleteTile, "marker_select_failed", err)
		}
		reviewCount, err = repository.Reviews(tx).DeleteForMarkers(ids)
		if err != nil {
			return newServiceError(opDeleteTile, "review_delete_failed", err)
		}
		if err := repository.Markers(tx).Delete(ids); err != nil {
			return newServiceError(opDeleteTile, "marker_delete_failed", err)
		}
		if err := repository.TileLastUpdates(tx).Delete(tile); err != nil {
			return newServiceError(opDeleteTile, "watermark_delete_failed", err)
		}
		markerCount = int64(len(ids))
		s.summaries.Purge()
		return nil
	})
	if err != nil {
		return s.fail(opDeleteTile, "transaction_failed", err, zap.Stringer("tile", tile))
	}

	s.logger.Info("tile deleted",
		zap.Stringer("tile", tile),
		zap.Int64("markers", markerCount),
		zap.Int64("reviews", reviewCount))
	s.publisher.Publish(notify.TileUpdated(tile))
	return nil
}
