package repository

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewAdapter reads and writes reviews with their photos.
type ReviewAdapter struct {
	db *gorm.DB
}

// Reviews returns the review adapter over db.
func Reviews(db *gorm.DB) ReviewAdapter {
	return ReviewAdapter{db: db}
}

// Get loads one review with its photos.
func (a ReviewAdapter) Get(id int64) (model.ReviewRecord, bool, error) {
	var review model.Review
	err := a.db.Where("id = ?", id).Take(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ReviewRecord{}, false, nil
	}
	if err != nil {
		return model.ReviewRecord{}, false, err
	}
	records, err := a.withPhotos([]model.Review{review})
	if err != nil {
		return model.ReviewRecord{}, false, err
	}
	return records[0], true, nil
}

// GetForMarker returns the reviews of one marker, most recently updated first.
func (a ReviewAdapter) GetForMarker(markerID int64) ([]model.ReviewRecord, error) {
	var reviews []model.Review
	err := a.db.Where("marker_id = ?", markerID).
		Order("last_updated DESC").
		Order("id ASC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return a.withPhotos(reviews)
}

// GetForMarkers returns the reviews of every listed marker ordered by id.
func (a ReviewAdapter) GetForMarkers(markerIDs []int64) ([]model.ReviewRecord, error) {
	var reviews []model.Review
	for start := 0; start < len(markerIDs); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(markerIDs))
		var chunk []model.Review
		if err := a.db.Where("marker_id IN ?", markerIDs[start:end]).Order("id ASC").Find(&chunk).Error; err != nil {
			return nil, err
		}
		reviews = append(reviews, chunk...)
	}
	return a.withPhotos(reviews)
}

// Update upserts or deletes every review and returns the greatest LastUpdated
// seen across the batch, tombstones included.
func (a ReviewAdapter) Update(records []model.ReviewRecord) (int64, error) {
	var maxLastUpdated int64
	for i := range records {
		record := records[i]
		if err := record.Validate(); err != nil {
			return 0, err
		}
		if record.LastUpdated > maxLastUpdated {
			maxLastUpdated = record.LastUpdated
		}
		if record.Deleted {
			if err := a.deleteReviews([]int64{record.ID}); err != nil {
				return 0, fmt.Errorf("delete review %d: %w", record.ID, err)
			}
			continue
		}
		if err := a.upsert(record); err != nil {
			return 0, fmt.Errorf("upsert review %d: %w", record.ID, err)
		}
	}
	return maxLastUpdated, nil
}

func (a ReviewAdapter) upsert(record model.ReviewRecord) error {
	row := record.Review
	if err := a.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return err
	}
	if err := a.db.Where("review_id = ?", record.ID).Delete(&model.ReviewPhoto{}).Error; err != nil {
		return err
	}
	if len(record.Photos) == 0 {
		return nil
	}
	photos := make([]model.ReviewPhoto, len(record.Photos))
	copy(photos, record.Photos)
	for i := range photos {
		photos[i].ReviewID = record.ID
	}
	return a.db.Create(&photos).Error
}

// DeleteForMarkers removes every review of the listed markers and returns how many were removed.
func (a ReviewAdapter) DeleteForMarkers(markerIDs []int64) (int64, error) {
	var removed int64
	for start := 0; start < len(markerIDs); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(markerIDs))
		var reviewIDs []int64
		if err := a.db.Model(&model.Review{}).Where("marker_id IN ?", markerIDs[start:end]).Pluck("id", &reviewIDs).Error; err != nil {
			return 0, err
		}
		if err := a.deleteReviews(reviewIDs); err != nil {
			return 0, err
		}
		removed += int64(len(reviewIDs))
	}
	return removed, nil
}

func (a ReviewAdapter) deleteReviews(ids []int64) error {
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		chunk := ids[start:end]
		if err := a.db.Where("review_id IN ?", chunk).Delete(&model.ReviewPhoto{}).Error; err != nil {
			return err
		}
		if err := a.db.Where("id IN ?", chunk).Delete(&model.Review{}).Error; err != nil {
			return err
		}
	}
	return nil
}

type summaryRow struct {
	Count         int64   `gorm:"column:review_count"`
	AverageRating float64 `gorm:"column:average_rating"`
}

// Summary aggregates the stored reviews of a marker.
func (a ReviewAdapter) Summary(markerID int64) (model.ReviewSummary, error) {
	var row summaryRow
	err := a.db.Model(&model.Review{}).
		Select("COUNT(*) AS review_count, COALESCE(AVG(rating), 0) AS average_rating").
		Where("marker_id = ?", markerID).
		Scan(&row).Error
	if err != nil {
		return model.ReviewSummary{}, err
	}
	return model.ReviewSummary{MarkerID: markerID, Count: row.Count, AverageRating: row.AverageRating}, nil
}

// MaxLastUpdated returns the greatest LastUpdated of any stored review.
func (a ReviewAdapter) MaxLastUpdated() (int64, error) {
	var value int64
	err := a.db.Model(&model.Review{}).Select("COALESCE(MAX(last_updated), 0)").Scan(&value).Error
	return value, err
}

func (a ReviewAdapter) withPhotos(reviews []model.Review) ([]model.ReviewRecord, error) {
	records := make([]model.ReviewRecord, 0, len(reviews))
	if len(reviews) == 0 {
		return records, nil
	}
	ids := make([]int64, 0, len(reviews))
	for _, review := range reviews {
		ids = append(ids, review.ID)
	}

	photosByReview := make(map[int64][]model.ReviewPhoto, len(reviews))
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		var photos []model.ReviewPhoto
		err := a.db.Where("review_id IN ?", ids[start:end]).
			Order("review_id ASC").
			Order("ordinal ASC").
			Find(&photos).Error
		if err != nil {
			return nil, err
		}
		for _, photo := range photos {
			photosByReview[photo.ReviewID] = append(photosByReview[photo.ReviewID], photo)
		}
	}

	for _, review := range reviews {
		records = append(records, model.ReviewRecord{Review: review, Photos: photosByReview[review.ID]})
	}
	return records, nil
}
