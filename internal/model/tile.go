package model

import "github.com/MarcoPoloResearchLab/activecaptain/internal/geo"

// TileLastUpdate stores the freshness watermarks of one sync tile.
// A zero watermark means the tile has never been updated for that data kind.
type TileLastUpdate struct {
	TileX                int   `gorm:"column:tile_x;primaryKey;autoIncrement:false" json:"tile_x"`
	TileY                int   `gorm:"column:tile_y;primaryKey;autoIncrement:false" json:"tile_y"`
	MarkerLastUpdate     int64 `gorm:"column:marker_last_update;not null;default:0" json:"marker_last_update"`
	UserReviewLastUpdate int64 `gorm:"column:user_review_last_update;not null;default:0" json:"user_review_last_update"`
}

// TableName provides the explicit table binding for GORM.
func (TileLastUpdate) TableName() string {
	return "tile_last_update"
}

// Tile returns the grid cell this row describes.
func (t TileLastUpdate) Tile() geo.Tile {
	return geo.Tile{X: t.TileX, Y: t.TileY}
}
