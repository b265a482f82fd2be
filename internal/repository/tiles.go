package repository

import (
	"errors"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TileAdapter tracks the freshness watermarks of sync tiles. It stores what
// it is given; the ratchet lives in the merge engine.
type TileAdapter struct {
	db *gorm.DB
}

// TileLastUpdates returns the tile freshness adapter over db.
func TileLastUpdates(db *gorm.DB) TileAdapter {
	return TileAdapter{db: db}
}

// Get returns the watermarks of a tile. An unknown tile reports found=false
// and zero watermarks.
func (a TileAdapter) Get(tile geo.Tile) (model.TileLastUpdate, bool, error) {
	var row model.TileLastUpdate
	err := a.db.Where("tile_x = ? AND tile_y = ?", tile.X, tile.Y).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TileLastUpdate{TileX: tile.X, TileY: tile.Y}, false, nil
	}
	if err != nil {
		return model.TileLastUpdate{}, false, err
	}
	return row, true, nil
}

// GetBbox returns the stored rows of every tile overlapping the box.
// A box crossing the antimeridian is queried as two tile ranges.
func (a TileAdapter) GetBbox(box geo.BoundingBox) (map[geo.Tile]model.TileLastUpdate, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	result := make(map[geo.Tile]model.TileLastUpdate)
	for _, tileRange := range geo.TileRanges(box) {
		var rows []model.TileLastUpdate
		err := a.db.
			Where("tile_x BETWEEN ? AND ?", tileRange.MinX, tileRange.MaxX).
			Where("tile_y BETWEEN ? AND ?", tileRange.MinY, tileRange.MaxY).
			Order("tile_x ASC").
			Order("tile_y ASC").
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[row.Tile()] = row
		}
	}
	return result, nil
}

// Write overwrites both watermarks of the tile, inserting the row when missing.
func (a TileAdapter) Write(row model.TileLastUpdate) error {
	return a.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// Delete removes the tile row.
func (a TileAdapter) Delete(tile geo.Tile) error {
	return a.db.Where("tile_x = ? AND tile_y = ?", tile.X, tile.Y).Delete(&model.TileLastUpdate{}).Error
}

// All returns every stored tile row.
func (a TileAdapter) All() ([]model.TileLastUpdate, error) {
	var rows []model.TileLastUpdate
	err := a.db.Order("tile_x ASC").Order("tile_y ASC").Find(&rows).Error
	return rows, err
}
