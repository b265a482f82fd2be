package server

import (
	"testing"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
)

func TestRealtimeEventPayload(t *testing.T) {
	payload := newRealtimeEventPayload(notify.TileUpdated(geo.Tile{X: 4, Y: 1}))
	if payload.Kind != string(notify.KindTileUpdated) || payload.Source != realtimeSourceBackend {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Tile == nil || *payload.Tile != (tilePayload{X: 4, Y: 1}) {
		t.Fatalf("expected tile payload, got %+v", payload.Tile)
	}
	if payload.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be carried")
	}

	installed := newRealtimeEventPayload(notify.Installed())
	if installed.Tile != nil || installed.Kind != string(notify.KindInstalled) {
		t.Fatalf("unexpected installed payload %+v", installed)
	}
}
