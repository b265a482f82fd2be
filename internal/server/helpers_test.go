package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/auth"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/library"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/version"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

type testAPI struct {
	handler    *Handler
	library    *library.Service
	dispatcher *notify.Dispatcher
	token      string
	dir        string
}

func newTestAPI(t *testing.T, installed bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	libraryPath := filepath.Join(dir, "library.db")
	if installed {
		if err := database.Create(libraryPath, version.MustParse("2.0.0.0"), zap.NewNop()); err != nil {
			t.Fatalf("failed to create library: %v", err)
		}
	}

	dispatcher := notify.NewDispatcher()
	libraryStore, err := store.New(store.Config{
		Path:          libraryPath,
		JournalPolicy: database.JournalPolicyExclusiveWAL,
		Publisher:     dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	t.Cleanup(func() {
		_ = libraryStore.Close()
	})
	service, err := library.NewService(library.Config{Store: libraryStore, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct library: %v", err)
	}
	if installed {
		if err := service.OpenDatabase(context.Background()); err != nil {
			t.Fatalf("failed to open library: %v", err)
		}
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	token, _, err := issuer.IssueToken("operator")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Library:           service,
		Tokens:            issuer,
		Events:            dispatcher,
		Gatherer:          prometheus.NewRegistry(),
		StagingDir:        filepath.Join(dir, "staging"),
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	t.Cleanup(handler.Close)

	return &testAPI{handler: handler, library: service, dispatcher: dispatcher, token: token, dir: dir}
}

func (a *testAPI) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, target, body)
	request.Header.Set("Authorization", "Bearer "+a.token)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	a.handler.ServeHTTP(recorder, request)
	return recorder
}

func (a *testAPI) doJSON(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	return a.do(t, method, target, reader, "application/json")
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func marker(id int64, lat, lon float64, lastUpdated int64) model.MarkerRecord {
	return model.MarkerRecord{Marker: model.Marker{
		ID:          id,
		Type:        "Marina",
		Name:        "Marina",
		LastUpdated: lastUpdated,
		Latitude:    geo.ScaleDegrees(lat),
		Longitude:   geo.ScaleDegrees(lon),
	}}
}

func buildTileFile(t *testing.T, dir, rawVersion string, markers []model.MarkerRecord) string {
	t.Helper()
	path := filepath.Join(dir, "upload.db")
	if err := database.Create(path, version.MustParse(rawVersion), zap.NewNop()); err != nil {
		t.Fatalf("failed to create tile database: %v", err)
	}
	db, err := database.OpenSQLite(path, database.OpenOptions{JournalPolicy: database.JournalPolicySharedDelete})
	if err != nil {
		t.Fatalf("failed to open tile database: %v", err)
	}
	defer database.Close(db) //nolint:errcheck
	if err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repository.Markers(tx).Update(markers)
		return err
	}); err != nil {
		t.Fatalf("failed to fill tile database: %v", err)
	}
	return path
}
