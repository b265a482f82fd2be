package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReviewID indicates that a review identifier is not positive.
	ErrInvalidReviewID = errors.New("model: invalid review id")
	// ErrInvalidReviewMarker indicates a live review without a marker reference.
	ErrInvalidReviewMarker = errors.New("model: review references invalid marker")
)

// Review is a user review of a marker.
type Review struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	MarkerID    int64  `gorm:"column:marker_id;not null;index:idx_reviews_marker" json:"marker_id"`
	Rating      int    `gorm:"column:rating;not null;default:0" json:"rating"`
	Title       string `gorm:"column:title;not null;default:''" json:"title"`
	DateVisited string `gorm:"column:date_visited;not null;default:''" json:"date_visited"`
	Captain     string `gorm:"column:captain;not null;default:''" json:"captain"`
	Text        string `gorm:"column:review_text;type:text;not null;default:''" json:"review_text"`
	Votes       int    `gorm:"column:votes;not null;default:0" json:"votes"`
	Response    string `gorm:"column:response;type:text;not null;default:''" json:"response"`
	LastUpdated int64  `gorm:"column:last_updated;not null;default:0" json:"last_updated"`
}

// TableName provides the explicit table binding for GORM.
func (Review) TableName() string {
	return "reviews"
}

// ReviewPhoto is one ordered photo attached to a review.
type ReviewPhoto struct {
	ReviewID int64  `gorm:"column:review_id;primaryKey;autoIncrement:false" json:"review_id"`
	Ordinal  int    `gorm:"column:ordinal;primaryKey;autoIncrement:false" json:"ordinal"`
	URL      string `gorm:"column:url;not null" json:"url"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewPhoto) TableName() string {
	return "review_photos"
}

// ReviewRecord is a review row with its photos and tombstone flag.
type ReviewRecord struct {
	Review
	Deleted bool          `json:"deleted,omitempty"`
	Photos  []ReviewPhoto `json:"photos,omitempty"`
}

// Validate checks the record invariants before it is applied.
func (r ReviewRecord) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidReviewID, r.ID)
	}
	if !r.Deleted && r.MarkerID <= 0 {
		return fmt.Errorf("%w: review %d marker %d", ErrInvalidReviewMarker, r.ID, r.MarkerID)
	}
	return nil
}

// ReviewSummary aggregates the reviews of one marker.
type ReviewSummary struct {
	MarkerID      int64   `json:"marker_id"`
	Count         int64   `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}
