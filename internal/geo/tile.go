package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// TileZoom fixes the sync grid at 2^TileZoom tiles per axis.
	TileZoom = 3
	// TileCount is the number of tiles along each axis.
	TileCount = 1 << TileZoom

	maxMercatorLatitude = 85.0511287798066
)

// ErrInvalidTile indicates a tile outside the sync grid.
var ErrInvalidTile = errors.New("geo: invalid tile")

// Tile is a cell of the Web-Mercator sync grid. It is a freshness-tracking key,
// not a geometry.
type Tile struct {
	X int
	Y int
}

// NewTile validates grid bounds and returns a Tile.
func NewTile(x, y int) (Tile, error) {
	if x < 0 || x >= TileCount || y < 0 || y >= TileCount {
		return Tile{}, fmt.Errorf("%w: (%d,%d)", ErrInvalidTile, x, y)
	}
	return Tile{X: x, Y: y}, nil
}

// String renders the tile as "x,y".
func (t Tile) String() string {
	return fmt.Sprintf("%d,%d", t.X, t.Y)
}

// TileForCoordinate returns the tile containing the coordinate. Latitudes
// beyond the Mercator limit fall into the outermost row.
func TileForCoordinate(point Coordinate) Tile {
	return Tile{X: tileX(point.Lon), Y: tileY(point.Lat)}
}

// Bounds returns the geographic extent of the tile. The outermost rows extend
// to the poles so that every coordinate belongs to exactly one tile.
func (t Tile) Bounds() BoundingBox {
	north := tileLatitude(t.Y)
	south := tileLatitude(t.Y + 1)
	if t.Y == 0 {
		north = MaxLatitude
	}
	if t.Y == TileCount-1 {
		south = MinLatitude
	}
	return BoundingBox{
		SouthWest: Coordinate{Lat: south, Lon: tileLongitude(t.X)},
		NorthEast: Coordinate{Lat: north, Lon: tileLongitude(t.X + 1)},
	}
}

// TileRange is an inclusive rectangle of tile coordinates.
type TileRange struct {
	MinX int
	MaxX int
	MinY int
	MaxY int
}

// Contains reports whether the tile lies inside the range.
func (r TileRange) Contains(tile Tile) bool {
	return tile.X >= r.MinX && tile.X <= r.MaxX && tile.Y >= r.MinY && tile.Y <= r.MaxY
}

// TileRanges returns the tile rectangles overlapping the box, one per
// non-wrapping part.
func TileRanges(box BoundingBox) []TileRange {
	parts := box.Split()
	ranges := make([]TileRange, 0, len(parts))
	for _, part := range parts {
		northWest := TileForCoordinate(Coordinate{Lat: part.NorthEast.Lat, Lon: part.SouthWest.Lon})
		southEast := TileForCoordinate(Coordinate{Lat: part.SouthWest.Lat, Lon: part.NorthEast.Lon})
		ranges = append(ranges, TileRange{
			MinX: northWest.X,
			MaxX: southEast.X,
			MinY: northWest.Y,
			MaxY: southEast.Y,
		})
	}
	return ranges
}

func tileX(lon float64) int {
	x := int(math.Floor((lon - MinLongitude) / 360.0 * TileCount))
	return clampIndex(x)
}

func tileY(lat float64) int {
	clamped := math.Max(-maxMercatorLatitude, math.Min(maxMercatorLatitude, lat))
	radians := clamped * math.Pi / 180.0
	projected := (1.0 - math.Log(math.Tan(radians)+1.0/math.Cos(radians))/math.Pi) / 2.0
	return clampIndex(int(math.Floor(projected * TileCount)))
}

func tileLongitude(x int) float64 {
	return float64(x)/TileCount*360.0 + MinLongitude
}

func tileLatitude(y int) float64 {
	n := math.Pi * (1.0 - 2.0*float64(y)/TileCount)
	return math.Atan(math.Sinh(n)) * 180.0 / math.Pi
}

func clampIndex(value int) int {
	if value < 0 {
		return 0
	}
	if value >= TileCount {
		return TileCount - 1
	}
	return value
}
