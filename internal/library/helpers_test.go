package library

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errInjected = errors.New("injected create failure")

// failingCreates fails inserts into one table once a budget of successful
// inserts is spent.
type failingCreates struct {
	table     string
	armed     atomic.Bool
	remaining atomic.Int64
}

func (p *failingCreates) Name() string {
	return "test:failing_creates"
}

func (p *failingCreates) Initialize(db *gorm.DB) error {
	return db.Callback().Create().Before("gorm:create").Register("test:failing_creates", func(tx *gorm.DB) {
		if !p.armed.Load() || tx.Statement.Table != p.table {
			return
		}
		if p.remaining.Add(-1) < 0 {
			_ = tx.AddError(errInjected)
		}
	})
}

func (p *failingCreates) failAfter(successes int64) {
	p.remaining.Store(successes)
	p.armed.Store(true)
}

func (p *failingCreates) disarm() {
	p.armed.Store(false)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(event notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(kind notify.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, event := range p.events {
		if event.Kind == kind {
			total++
		}
	}
	return total
}

type testLibrary struct {
	service *Service
	store   *store.Store
	path    string
	dir     string
	faults  *failingCreates
	events  *recordingPublisher
}

// newTestLibrary returns a service whose library is not installed yet.
func newTestLibrary(t *testing.T) *testLibrary {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "library", "library.db")
	faults := &failingCreates{table: "markers"}
	events := &recordingPublisher{}

	libraryStore, err := store.New(store.Config{
		Path:          path,
		JournalPolicy: database.JournalPolicyExclusiveWAL,
		Publisher:     events,
		Plugins:       []gorm.Plugin{faults},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	t.Cleanup(func() {
		_ = libraryStore.Close()
	})

	service, err := NewService(Config{Store: libraryStore, Publisher: events, MergePageSize: 2})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return &testLibrary{service: service, store: libraryStore, path: path, dir: dir, faults: faults, events: events}
}

// newInstalledLibrary returns a service over an open, empty library of the given version.
func newInstalledLibrary(t *testing.T, rawVersion string) *testLibrary {
	t.Helper()
	library := newTestLibrary(t)
	if err := database.Create(library.path, version.MustParse(rawVersion), zap.NewNop()); err != nil {
		t.Fatalf("failed to create library: %v", err)
	}
	if err := library.service.OpenDatabase(context.Background()); err != nil {
		t.Fatalf("failed to open library: %v", err)
	}
	return library
}

type tileContent struct {
	version string
	markers []model.MarkerRecord
	reviews []model.ReviewRecord
	support repository.SupportTables
}

func buildTileDatabase(t *testing.T, dir, name string, content tileContent) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := database.Create(path, version.MustParse(content.version), zap.NewNop()); err != nil {
		t.Fatalf("failed to create tile database: %v", err)
	}
	db, err := database.OpenSQLite(path, database.OpenOptions{JournalPolicy: database.JournalPolicySharedDelete})
	if err != nil {
		t.Fatalf("failed to open tile database: %v", err)
	}
	defer database.Close(db) //nolint:errcheck

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := repository.Markers(tx).Update(content.markers); err != nil {
			return err
		}
		if _, err := repository.Reviews(tx).Update(content.reviews); err != nil {
			return err
		}
		return repository.Support(tx).Replace(content.support)
	})
	if err != nil {
		t.Fatalf("failed to fill tile database: %v", err)
	}
	return path
}

// testTile is the tile holding every marker built by markerInTile.
var testTile = geo.TileForCoordinate(geo.Coordinate{Lat: 26.1, Lon: -80.1})

func markerInTile(id, lastUpdated int64) model.MarkerRecord {
	offset := float64(id%50) * 0.01
	return model.MarkerRecord{
		Marker: model.Marker{
			ID:          id,
			Type:        "Marina",
			LastUpdated: lastUpdated,
			Name:        "Marina",
			Latitude:    geo.ScaleDegrees(26.1 + offset),
			Longitude:   geo.ScaleDegrees(-80.1 + offset),
		},
		Address: &model.Address{City: "Fort Lauderdale"},
	}
}

func markerElsewhere(id, lastUpdated int64) model.MarkerRecord {
	return model.MarkerRecord{
		Marker: model.Marker{
			ID:          id,
			Type:        "Anchorage",
			LastUpdated: lastUpdated,
			Name:        "Harbour",
			Latitude:    geo.ScaleDegrees(-33.85),
			Longitude:   geo.ScaleDegrees(151.2),
		},
	}
}

func reviewOf(id, markerID int64, rating int, lastUpdated int64) model.ReviewRecord {
	return model.ReviewRecord{
		Review: model.Review{ID: id, MarkerID: markerID, Rating: rating, Title: "Stay", LastUpdated: lastUpdated},
		Photos: []model.ReviewPhoto{{Ordinal: 0, URL: "https://example.test/photo.jpg"}},
	}
}

var dumpTables = []string{
	"version",
	"markers",
	"marker_address",
	"marker_amenities",
	"marker_business",
	"marker_business_photos",
	"marker_business_program",
	"marker_competitors",
	"marker_contact",
	"marker_dockage",
	"marker_fuel",
	"marker_moorings",
	"marker_navigation",
	"marker_retail",
	"marker_services",
	"marker_meta",
	"reviews",
	"review_photos",
	"tile_last_update",
	"languages",
	"mustache_templates",
	"translations",
}

// dump reads every library table in a stable order.
func dump(t *testing.T, library *testLibrary) map[string][]map[string]any {
	t.Helper()
	result := make(map[string][]map[string]any, len(dumpTables))
	err := library.store.Read(context.Background(), func(db *gorm.DB) error {
		for _, table := range dumpTables {
			var rows []map[string]any
			if err := db.Table(table).Order("1, 2").Find(&rows).Error; err != nil {
				return err
			}
			result[table] = rows
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to dump library: %v", err)
	}
	return result
}

func assertSameDump(t *testing.T, expected, actual map[string][]map[string]any) {
	t.Helper()
	for _, table := range dumpTables {
		if !reflect.DeepEqual(expected[table], actual[table]) {
			t.Fatalf("table %s differs:\nexpected %v\nactual   %v", table, expected[table], actual[table])
		}
	}
}

func mustTileRow(t *testing.T, library *testLibrary, tile geo.Tile) (model.TileLastUpdate, bool) {
	t.Helper()
	row, found, err := library.service.GetTileLastUpdate(context.Background(), tile)
	if err != nil {
		t.Fatalf("unexpected tile read error: %v", err)
	}
	return row, found
}

func mustMarkerCount(t *testing.T, library *testLibrary) int64 {
	t.Helper()
	status, err := library.service.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	return status.MarkerCount
}
