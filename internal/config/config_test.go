package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/library"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.JournalPolicy != database.JournalPolicyExclusiveWAL {
		t.Fatalf("unexpected journal policy %q", cfg.JournalPolicy)
	}
	if cfg.MergePageSize != library.DefaultMergePageSize {
		t.Fatalf("unexpected page size %d", cfg.MergePageSize)
	}
	if cfg.UploadMaxBytes != 512<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.UploadMaxBytes)
	}
	if cfg.WriteRateLimit != 0 || cfg.WriteBurst != defaultWriteBurst {
		t.Fatalf("unexpected write limit defaults %v/%d", cfg.WriteRateLimit, cfg.WriteBurst)
	}
	if cfg.InboxDebounce != defaultInboxDebounce {
		t.Fatalf("unexpected debounce %s", cfg.InboxDebounce)
	}
	if err := cfg.RequireAuth(); err == nil {
		t.Fatalf("expected auth settings to be incomplete by default")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ACTIVECAPTAIN_DATABASE_PATH", "/var/lib/activecaptain/library.db")
	t.Setenv("ACTIVECAPTAIN_DATABASE_JOURNAL_POLICY", "shared_delete")
	t.Setenv("ACTIVECAPTAIN_MERGE_PAGE_SIZE", "25")
	t.Setenv("ACTIVECAPTAIN_INBOX_DIR", "/var/spool/activecaptain")
	t.Setenv("ACTIVECAPTAIN_UPLOAD_MAX_BYTES", "64MB")
	t.Setenv("ACTIVECAPTAIN_AUTH_SIGNING_SECRET", "secret")
	t.Setenv("ACTIVECAPTAIN_AUTH_TOKEN_TTL", "90m")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.DatabasePath != "/var/lib/activecaptain/library.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.JournalPolicy != database.JournalPolicySharedDelete {
		t.Fatalf("unexpected journal policy %q", cfg.JournalPolicy)
	}
	if cfg.MergePageSize != 25 || cfg.InboxDir != "/var/spool/activecaptain" {
		t.Fatalf("unexpected merge or inbox settings %+v", cfg)
	}
	if cfg.UploadMaxBytes != 64_000_000 {
		t.Fatalf("unexpected upload limit %d", cfg.UploadMaxBytes)
	}
	if cfg.AuthTokenTTL != 90*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.AuthTokenTTL)
	}
	issuer, err := cfg.TokenIssuer()
	if err != nil || issuer == nil {
		t.Fatalf("expected token issuer, got %v", err)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		value    string
		contains string
	}{
		{name: "journal policy", key: "ACTIVECAPTAIN_DATABASE_JOURNAL_POLICY", value: "truncate", contains: "database.journal_policy"},
		{name: "upload size", key: "ACTIVECAPTAIN_UPLOAD_MAX_BYTES", value: "lots", contains: "upload.max_bytes"},
		{name: "page size", key: "ACTIVECAPTAIN_MERGE_PAGE_SIZE", value: "0", contains: "merge.page_size"},
		{name: "write rate", key: "ACTIVECAPTAIN_HTTP_WRITE_RATE_LIMIT", value: "-1", contains: "http.write_rate_limit"},
		{name: "database path", key: "ACTIVECAPTAIN_DATABASE_PATH", value: " ", contains: "database.path"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv(testCase.key, testCase.value)
			_, err := Load(NewViper())
			if err == nil || !strings.Contains(err.Error(), testCase.contains) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.contains, err)
			}
		})
	}
}
