package repository

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")
	if err := database.Create(path, version.MustParse("2.0.0.0"), zap.NewNop()); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	db, err := database.OpenSQLite(path, database.OpenOptions{JournalPolicy: database.JournalPolicyExclusiveWAL})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}

func markerAt(id int64, lat, lon float64, lastUpdated int64) model.MarkerRecord {
	return model.MarkerRecord{
		Marker: model.Marker{
			ID:          id,
			Type:        "Marina",
			LastUpdated: lastUpdated,
			Name:        "Marker",
			Latitude:    geo.ScaleDegrees(lat),
			Longitude:   geo.ScaleDegrees(lon),
		},
	}
}

func mustUpdateMarkers(t *testing.T, db *gorm.DB, records ...model.MarkerRecord) int64 {
	t.Helper()
	maxLastUpdated, err := Markers(db).Update(records)
	if err != nil {
		t.Fatalf("unexpected marker update error: %v", err)
	}
	return maxLastUpdated
}

func mustBox(t *testing.T, swLat, swLon, neLat, neLon float64) geo.BoundingBox {
	t.Helper()
	box, err := geo.NewBoundingBox(geo.Coordinate{Lat: swLat, Lon: swLon}, geo.Coordinate{Lat: neLat, Lon: neLon})
	if err != nil {
		t.Fatalf("unexpected bounding box error: %v", err)
	}
	return box
}

func markerIDs(markers []model.Marker) []int64 {
	ids := make([]int64, 0, len(markers))
	for _, marker := range markers {
		ids = append(ids, marker.ID)
	}
	return ids
}
