package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0

	// CoordinateScale converts degrees into the stored integer representation.
	CoordinateScale = 1e8
)

// ErrInvalidBoundingBox indicates that a bounding box is outside the valid coordinate range.
var ErrInvalidBoundingBox = errors.New("geo: invalid bounding box")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// ScaleDegrees converts degrees into the stored integer form.
func ScaleDegrees(value float64) int64 {
	return int64(math.Round(value * CoordinateScale))
}

// UnscaleDegrees converts the stored integer form back into degrees.
func UnscaleDegrees(value int64) float64 {
	return float64(value) / CoordinateScale
}

// BoundingBox is described by its south-west and north-east corners.
// A box whose south-west longitude is greater than its north-east longitude
// crosses the antimeridian.
type BoundingBox struct {
	SouthWest Coordinate
	NorthEast Coordinate
}

// NewBoundingBox validates the corners and returns a BoundingBox.
func NewBoundingBox(southWest, northEast Coordinate) (BoundingBox, error) {
	box := BoundingBox{SouthWest: southWest, NorthEast: northEast}
	if err := box.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return box, nil
}

// Validate checks coordinate ranges and latitude ordering.
func (b BoundingBox) Validate() error {
	for _, corner := range []Coordinate{b.SouthWest, b.NorthEast} {
		if math.IsNaN(corner.Lat) || corner.Lat < MinLatitude || corner.Lat > MaxLatitude {
			return fmt.Errorf("%w: latitude %v", ErrInvalidBoundingBox, corner.Lat)
		}
		if math.IsNaN(corner.Lon) || corner.Lon < MinLongitude || corner.Lon > MaxLongitude {
			return fmt.Errorf("%w: longitude %v", ErrInvalidBoundingBox, corner.Lon)
		}
	}
	if b.SouthWest.Lat > b.NorthEast.Lat {
		return fmt.Errorf("%w: south %v above north %v", ErrInvalidBoundingBox, b.SouthWest.Lat, b.NorthEast.Lat)
	}
	return nil
}

// CrossesAntimeridian reports whether the box wraps around longitude 180.
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.SouthWest.Lon > b.NorthEast.Lon
}

// Split returns non-wrapping boxes covering b. A wrapping box becomes the part
// west of the antimeridian followed by the part east of it.
func (b BoundingBox) Split() []BoundingBox {
	if !b.CrossesAntimeridian() {
		return []BoundingBox{b}
	}
	return []BoundingBox{
		{
			SouthWest: b.SouthWest,
			NorthEast: Coordinate{Lat: b.NorthEast.Lat, Lon: MaxLongitude},
		},
		{
			SouthWest: Coordinate{Lat: b.SouthWest.Lat, Lon: MinLongitude},
			NorthEast: b.NorthEast,
		},
	}
}

// Contains reports whether the coordinate lies inside the box, edges included.
func (b BoundingBox) Contains(point Coordinate) bool {
	if point.Lat < b.SouthWest.Lat || point.Lat > b.NorthEast.Lat {
		return false
	}
	if b.CrossesAntimeridian() {
		return point.Lon >= b.SouthWest.Lon || point.Lon <= b.NorthEast.Lon
	}
	return point.Lon >= b.SouthWest.Lon && point.Lon <= b.NorthEast.Lon
}

// ScaledBounds returns the box corners in stored integer form: south, west, north, east.
// Only meaningful for non-wrapping boxes.
func (b BoundingBox) ScaledBounds() (int64, int64, int64, int64) {
	return ScaleDegrees(b.SouthWest.Lat), ScaleDegrees(b.SouthWest.Lon),
		ScaleDegrees(b.NorthEast.Lat), ScaleDegrees(b.NorthEast.Lon)
}
