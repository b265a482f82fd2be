package library

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
)

func TestApplyMarkerUpdateRejectsEmptyBatch(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")

	err := library.service.ApplyMarkerUpdate(context.Background(), nil, &testTile)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "library.apply_marker_update.empty_batch" {
		t.Fatalf("unexpected error code: %v", err)
	}
	if _, found := mustTileRow(t, library, testTile); found {
		t.Fatalf("expected no tile row after an empty batch")
	}

	if err := library.service.ApplyReviewUpdate(context.Background(), []model.ReviewRecord{}, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch for reviews, got %v", err)
	}
}

func TestApplyOnClosedStoreReportsNotOpen(t *testing.T) {
	library := newTestLibrary(t)

	err := library.service.ApplyMarkerUpdate(context.Background(), []model.MarkerRecord{markerInTile(1, 10)}, nil)
	if !errors.Is(err, store.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Reason() != "not_open" {
		t.Fatalf("expected not_open reason, got %v", err)
	}
}

func TestApplyMarkerUpdateIsIdempotent(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()
	batch := []model.MarkerRecord{markerInTile(1, 100), markerInTile(2, 120), {Marker: model.Marker{ID: 3}, Deleted: true}}

	if err := library.service.ApplyMarkerUpdate(ctx, batch, &testTile); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	first := dump(t, library)

	if err := library.service.ApplyMarkerUpdate(ctx, batch, &testTile); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	assertSameDump(t, first, dump(t, library))
}

func TestWatermarksOnlyMoveForward(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	if err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{markerInTile(1, 100)}, &testTile); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	row, found := mustTileRow(t, library, testTile)
	if !found || row.MarkerLastUpdate != 100 || row.UserReviewLastUpdate != 0 {
		t.Fatalf("unexpected tile row after first apply: %+v found=%v", row, found)
	}

	older := markerInTile(1, 50)
	older.Name = "Renamed"
	if err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{older}, &testTile); err != nil {
		t.Fatalf("older apply failed: %v", err)
	}
	row, _ = mustTileRow(t, library, testTile)
	if row.MarkerLastUpdate != 100 {
		t.Fatalf("expected marker watermark to stay at 100, got %d", row.MarkerLastUpdate)
	}
	record, _, err := library.service.GetMarker(ctx, 1)
	if err != nil || record.Name != "Renamed" {
		t.Fatalf("expected older record to be applied anyway, got %+v err=%v", record.Marker, err)
	}

	if err := library.service.ApplyReviewUpdate(ctx, []model.ReviewRecord{reviewOf(7, 1, 4, 70)}, &testTile); err != nil {
		t.Fatalf("review apply failed: %v", err)
	}
	row, _ = mustTileRow(t, library, testTile)
	if row.MarkerLastUpdate != 100 || row.UserReviewLastUpdate != 70 {
		t.Fatalf("expected watermarks 100/70, got %+v", row)
	}

	if got := library.events.count(notify.KindTileUpdated); got != 2 {
		t.Fatalf("expected 2 tile updates published, got %d", got)
	}
}

func TestApplyWithoutTileLeavesWatermarksAlone(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")

	if err := library.service.ApplyMarkerUpdate(context.Background(), []model.MarkerRecord{markerInTile(1, 100)}, nil); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, found := mustTileRow(t, library, testTile); found {
		t.Fatalf("expected no tile row without a tile")
	}
	if got := mustMarkerCount(t, library); got != 1 {
		t.Fatalf("expected 1 marker, got %d", got)
	}
}

func TestFailedBatchLeavesNoTrace(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	if err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{markerInTile(1, 100), markerInTile(2, 110)}, &testTile); err != nil {
		t.Fatalf("seed apply failed: %v", err)
	}
	before := dump(t, library)

	changed := markerInTile(1, 200)
	changed.Name = "Changed"
	library.faults.failAfter(1)
	err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{changed, markerInTile(3, 210), markerInTile(4, 220)}, &testTile)
	library.faults.disarm()
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	assertSameDump(t, before, dump(t, library))
	if got := library.events.count(notify.KindTileUpdated); got != 1 {
		t.Fatalf("expected no event for the failed batch, got %d updates", got)
	}
}

func TestApplySupportTableUpdateReplacesNonEmptySets(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	err := library.service.ApplySupportTableUpdate(ctx,
		[]model.Language{{ID: 1, Code: "en", Name: "English"}, {ID: 2, Code: "fr", Name: "French"}},
		[]model.MustacheTemplate{{Name: "marina", Body: "{{name}}"}},
		[]model.Translation{{LanguageID: 1, Key: "fuel", Value: "Fuel"}, {LanguageID: 2, Key: "fuel", Value: "Carburant"}},
	)
	if err != nil {
		t.Fatalf("initial support apply failed: %v", err)
	}

	if err := library.service.ApplySupportTableUpdate(ctx, []model.Language{{ID: 3, Code: "es", Name: "Spanish"}}, nil, nil); err != nil {
		t.Fatalf("second support apply failed: %v", err)
	}

	languages, err := library.service.GetLanguages(ctx)
	if err != nil {
		t.Fatalf("languages read failed: %v", err)
	}
	if len(languages) != 1 || languages[0].Code != "es" {
		t.Fatalf("expected languages to be replaced wholesale, got %+v", languages)
	}
	template, found, err := library.service.GetTemplate(ctx, "marina")
	if err != nil || !found || template.Body != "{{name}}" {
		t.Fatalf("expected template to survive, got %+v found=%v err=%v", template, found, err)
	}
	translations, err := library.service.GetTranslations(ctx, 2)
	if err != nil || len(translations) != 1 || translations[0].Value != "Carburant" {
		t.Fatalf("expected french translation to survive, got %+v err=%v", translations, err)
	}

	if err := library.service.ApplySupportTableUpdate(ctx, nil, nil, nil); err != nil {
		t.Fatalf("empty support apply should succeed, got %v", err)
	}
	if all, _ := library.service.GetTranslations(ctx, 0); len(all) != 2 {
		t.Fatalf("expected empty update to keep translations, got %d", len(all))
	}
}

func TestDeleteTileRemovesItsMarkersAndReviews(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	markers := []model.MarkerRecord{markerInTile(1, 10), markerInTile(2, 20), markerElsewhere(3, 30)}
	if err := library.service.ApplyMarkerUpdate(ctx, markers, &testTile); err != nil {
		t.Fatalf("marker apply failed: %v", err)
	}
	reviews := []model.ReviewRecord{reviewOf(10, 1, 5, 11), reviewOf(11, 3, 2, 31)}
	if err := library.service.ApplyReviewUpdate(ctx, reviews, &testTile); err != nil {
		t.Fatalf("review apply failed: %v", err)
	}

	if err := library.service.DeleteTile(ctx, testTile); err != nil {
		t.Fatalf("delete tile failed: %v", err)
	}

	for _, id := range []int64{1, 2} {
		if _, found, _ := library.service.GetMarker(ctx, id); found {
			t.Fatalf("expected marker %d to be deleted", id)
		}
	}
	if _, found, _ := library.service.GetMarker(ctx, 3); !found {
		t.Fatalf("expected marker outside the tile to remain")
	}
	if remaining, _ := library.service.GetReviews(ctx, 1); len(remaining) != 0 {
		t.Fatalf("expected reviews of deleted markers to be removed, got %d", len(remaining))
	}
	if remaining, _ := library.service.GetReviews(ctx, 3); len(remaining) != 1 {
		t.Fatalf("expected review outside the tile to remain, got %d", len(remaining))
	}
	if _, found := mustTileRow(t, library, testTile); found {
		t.Fatalf("expected tile watermarks to be forgotten")
	}
}

func TestReviewSummaryCacheIsPurgedByWrites(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	if err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{markerInTile(1, 10)}, nil); err != nil {
		t.Fatalf("marker apply failed: %v", err)
	}
	if err := library.service.ApplyReviewUpdate(ctx, []model.ReviewRecord{reviewOf(1, 1, 4, 10)}, nil); err != nil {
		t.Fatalf("review apply failed: %v", err)
	}
	summary, err := library.service.GetReviewSummary(ctx, 1)
	if err != nil || summary.Count != 1 || summary.AverageRating != 4 {
		t.Fatalf("unexpected first summary: %+v err=%v", summary, err)
	}

	if err := library.service.ApplyReviewUpdate(ctx, []model.ReviewRecord{reviewOf(2, 1, 2, 20)}, nil); err != nil {
		t.Fatalf("second review apply failed: %v", err)
	}
	summary, err = library.service.GetReviewSummary(ctx, 1)
	if err != nil || summary.Count != 2 || summary.AverageRating != 3 {
		t.Fatalf("expected refreshed summary, got %+v err=%v", summary, err)
	}
}

func TestSearchMarkersAcrossAntimeridian(t *testing.T) {
	library := newInstalledLibrary(t, "2.0.0.0")
	ctx := context.Background()

	east := model.MarkerRecord{Marker: model.Marker{ID: 1, Type: "Marina", Name: "Taveuni",
		Latitude: geo.ScaleDegrees(-16.8), Longitude: geo.ScaleDegrees(179.9)}}
	west := model.MarkerRecord{Marker: model.Marker{ID: 2, Type: "Anchorage", Name: "Vanua Balavu",
		Latitude: geo.ScaleDegrees(-17.2), Longitude: geo.ScaleDegrees(-179.2)}}
	far := model.MarkerRecord{Marker: model.Marker{ID: 3, Type: "Marina", Name: "Nuku'alofa",
		Latitude: geo.ScaleDegrees(-21.1), Longitude: geo.ScaleDegrees(-175.2)}}
	if err := library.service.ApplyMarkerUpdate(ctx, []model.MarkerRecord{east, west, far}, nil); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	box, err := geo.NewBoundingBox(geo.Coordinate{Lat: -18, Lon: 179}, geo.Coordinate{Lat: -16, Lon: -179})
	if err != nil {
		t.Fatalf("bounding box rejected: %v", err)
	}
	markers, err := library.service.SearchMarkers(ctx, repository.MarkerFilter{BoundingBox: &box})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("expected both sides of the antimeridian, got %+v", markers)
	}
	seen := map[int64]bool{}
	for _, marker := range markers {
		seen[marker.ID] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected markers 1 and 2, got %v", seen)
	}
}
