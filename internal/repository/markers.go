// Package repository holds the record adapters the merge engine drives.
// Every adapter wraps a *gorm.DB that is either a transaction or a plain
// handle; callers own the gate and the transaction boundary.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deleteChunkSize bounds the number of ids bound into one IN clause.
const deleteChunkSize = 500

// MarkerFilter selects markers for GetFiltered. Zero fields do not filter.
type MarkerFilter struct {
	BoundingBox *geo.BoundingBox
	// SearchFilter keeps markers whose search_filter shares at least one bit with the mask.
	SearchFilter int64
	Types        []string
	NameContains string
	Limit        int
}

// MarkerAdapter reads and writes complete marker records.
type MarkerAdapter struct {
	db *gorm.DB
}

// Markers returns the marker adapter over db.
func Markers(db *gorm.DB) MarkerAdapter {
	return MarkerAdapter{db: db}
}

// Get loads one marker with every section.
func (a MarkerAdapter) Get(id int64) (model.MarkerRecord, bool, error) {
	var marker model.Marker
	err := a.db.Where("id = ?", id).Take(&marker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.MarkerRecord{}, false, nil
	}
	if err != nil {
		return model.MarkerRecord{}, false, err
	}
	record, err := a.loadSections(marker)
	if err != nil {
		return model.MarkerRecord{}, false, err
	}
	return record, true, nil
}

// GetFiltered returns marker rows matching the filter ordered by id.
// A bounding box crossing the antimeridian is queried as two boxes and the
// results are concatenated.
func (a MarkerAdapter) GetFiltered(filter MarkerFilter) ([]model.Marker, error) {
	if filter.BoundingBox == nil {
		var markers []model.Marker
		if err := a.filtered(filter).Find(&markers).Error; err != nil {
			return nil, err
		}
		return markers, nil
	}
	if err := filter.BoundingBox.Validate(); err != nil {
		return nil, err
	}

	var results []model.Marker
	for _, part := range filter.BoundingBox.Split() {
		south, west, north, east := part.ScaledBounds()
		var markers []model.Marker
		err := a.filtered(filter).
			Where("latitude BETWEEN ? AND ?", south, north).
			Where("longitude BETWEEN ? AND ?", west, east).
			Find(&markers).Error
		if err != nil {
			return nil, err
		}
		results = append(results, markers...)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			return results[:filter.Limit], nil
		}
	}
	return results, nil
}

func (a MarkerAdapter) filtered(filter MarkerFilter) *gorm.DB {
	query := a.db.Model(&model.Marker{}).Order("id ASC")
	if filter.SearchFilter != 0 {
		query = query.Where("(search_filter & ?) != 0", filter.SearchFilter)
	}
	if len(filter.Types) > 0 {
		query = query.Where("type IN ?", filter.Types)
	}
	if name := strings.TrimSpace(filter.NameContains); name != "" {
		query = query.Where("name LIKE ? ESCAPE '\\'", "%"+escapeLike(name)+"%")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}

// Page loads up to limit complete records with ids greater than afterID.
func (a MarkerAdapter) Page(afterID int64, limit int) ([]model.MarkerRecord, error) {
	var markers []model.Marker
	if err := a.db.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&markers).Error; err != nil {
		return nil, err
	}
	records := make([]model.MarkerRecord, 0, len(markers))
	for _, marker := range markers {
		record, err := a.loadSections(marker)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Update upserts or deletes every record and returns the greatest LastUpdated
// seen across the batch, tombstones included.
func (a MarkerAdapter) Update(records []model.MarkerRecord) (int64, error) {
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
			if err := a.Delete([]int64{record.ID}); err != nil {
				return 0, fmt.Errorf("delete marker %d: %w", record.ID, err)
			}
			continue
		}
		if err := a.upsert(&record); err != nil {
			return 0, fmt.Errorf("upsert marker %d: %w", record.ID, err)
		}
	}
	return maxLastUpdated, nil
}

func (a MarkerAdapter) upsert(record *model.MarkerRecord) error {
	row := record.Marker
	if err := a.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return err
	}
	for _, sec := range markerSections {
		if err := sec.store(a.db, record); err != nil {
			return fmt.Errorf("%s: %w", sec.table, err)
		}
	}
	return nil
}

// Delete removes the markers and all their sections. Reviews are kept.
func (a MarkerAdapter) Delete(ids []int64) error {
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		chunk := ids[start:end]
		for _, sec := range markerSections {
			if err := sec.remove(a.db, chunk); err != nil {
				return fmt.Errorf("%s: %w", sec.table, err)
			}
		}
		if err := a.db.Where("id IN ?", chunk).Delete(&model.Marker{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// IDsInTile returns the ids of markers positioned inside the tile.
// Markers on a shared edge belong to the tile TileForCoordinate assigns them.
func (a MarkerAdapter) IDsInTile(tile geo.Tile) ([]int64, error) {
	south, west, north, east := tile.Bounds().ScaledBounds()
	var candidates []model.Marker
	err := a.db.Select("id", "latitude", "longitude").
		Where("latitude BETWEEN ? AND ?", south, north).
		Where("longitude BETWEEN ? AND ?", west, east).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(candidates))
	for _, candidate := range candidates {
		if geo.TileForCoordinate(candidate.Position()) == tile {
			ids = append(ids, candidate.ID)
		}
	}
	return ids, nil
}

// MaxLastUpdated returns the greatest LastUpdated of any stored marker.
func (a MarkerAdapter) MaxLastUpdated() (int64, error) {
	var value int64
	err := a.db.Model(&model.Marker{}).Select("COALESCE(MAX(last_updated), 0)").Scan(&value).Error
	return value, err
}

// Count returns the number of stored markers.
func (a MarkerAdapter) Count() (int64, error) {
	var count int64
	err := a.db.Model(&model.Marker{}).Count(&count).Error
	return count, err
}

func (a MarkerAdapter) loadSections(marker model.Marker) (model.MarkerRecord, error) {
	record := model.MarkerRecord{Marker: marker}
	for _, sec := range markerSections {
		if err := sec.load(a.db, &record); err != nil {
			return model.MarkerRecord{}, fmt.Errorf("%s: %w", sec.table, err)
		}
	}
	return record, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
