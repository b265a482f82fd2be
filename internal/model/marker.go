package model

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
)

var (
	// ErrInvalidMarkerID indicates that a marker identifier is not positive.
	ErrInvalidMarkerID = errors.New("model: invalid marker id")
	// ErrTombstoneWithSections indicates a deleted marker that still carries section data.
	ErrTombstoneWithSections = errors.New("model: deleted marker carries section data")
)

// Marker is the primary marker row.
type Marker struct {
	ID                  int64  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Type                string `gorm:"column:type;size:32;not null;index:idx_markers_type" json:"type"`
	LastUpdated         int64  `gorm:"column:last_updated;not null;default:0" json:"last_updated"`
	Name                string `gorm:"column:name;size:255;not null;default:''" json:"name"`
	Latitude            int64  `gorm:"column:latitude;not null;index:idx_markers_position,priority:1" json:"latitude"`
	Longitude           int64  `gorm:"column:longitude;not null;index:idx_markers_position,priority:2" json:"longitude"`
	Geohash             string `gorm:"column:geohash;size:16;not null;default:'';index:idx_markers_geohash" json:"geohash"`
	SearchFilter        int64  `gorm:"column:search_filter;not null;default:0" json:"search_filter"`
	BusinessProgramTier int    `gorm:"column:business_program_tier;not null;default:0" json:"business_program_tier"`
}

// TableName provides the explicit table binding for GORM.
func (Marker) TableName() string {
	return "markers"
}

// Position returns the marker location in degrees.
func (m Marker) Position() geo.Coordinate {
	return geo.Coordinate{Lat: geo.UnscaleDegrees(m.Latitude), Lon: geo.UnscaleDegrees(m.Longitude)}
}

// MarkerRecord is a marker row together with every section stored for it.
// A nil single section or an empty multi-row section means "not present".
type MarkerRecord struct {
	Marker
	Deleted bool `json:"deleted,omitempty"`

	Address         *Address         `json:"address,omitempty"`
	Amenities       *Amenities       `json:"amenities,omitempty"`
	Business        *Business        `json:"business,omitempty"`
	BusinessPhotos  []BusinessPhoto  `json:"business_photos,omitempty"`
	BusinessProgram *BusinessProgram `json:"business_program,omitempty"`
	Competitors     []Competitor     `json:"competitors,omitempty"`
	Contact         *Contact         `json:"contact,omitempty"`
	Dockage         *Dockage         `json:"dockage,omitempty"`
	Fuel            *Fuel            `json:"fuel,omitempty"`
	Moorings        *Moorings        `json:"moorings,omitempty"`
	Navigation      *Navigation      `json:"navigation,omitempty"`
	Retail          *Retail          `json:"retail,omitempty"`
	Services        *Services        `json:"services,omitempty"`
	Meta            *MarkerMeta      `json:"meta,omitempty"`
}

// HasSections reports whether any section is populated.
func (r MarkerRecord) HasSections() bool {
	return r.Address != nil || r.Amenities != nil || r.Business != nil || len(r.BusinessPhotos) > 0 ||
		r.BusinessProgram != nil || len(r.Competitors) > 0 || r.Contact != nil || r.Dockage != nil ||
		r.Fuel != nil || r.Moorings != nil || r.Navigation != nil || r.Retail != nil ||
		r.Services != nil || r.Meta != nil
}

// Validate checks the record invariants before it is applied.
func (r MarkerRecord) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMarkerID, r.ID)
	}
	if r.Deleted && r.HasSections() {
		return fmt.Errorf("%w: %d", ErrTombstoneWithSections, r.ID)
	}
	return nil
}
