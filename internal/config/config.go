package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/auth"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/library"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "ACTIVECAPTAIN"
	defaultHTTPAddress    = "127.0.0.1:8080"
	defaultDatabasePath   = "activecaptain.db"
	defaultJournalPolicy  = string(database.JournalPolicyExclusiveWAL)
	defaultStagingDir     = "staging"
	defaultInboxDebounce  = 500 * time.Millisecond
	defaultUploadMaxBytes = "512MiB"
	defaultLogLevel       = "info"
	defaultWriteBurst     = 10
)

// AppConfig captures runtime configuration for the service and the CLI.
type AppConfig struct {
	HTTPAddress        string
	CORSAllowedOrigins []string
	WriteRateLimit     float64
	WriteBurst         int

	DatabasePath  string
	JournalPolicy database.JournalPolicy

	MergePageSize    int
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration

	InboxDir       string
	InboxDebounce  time.Duration
	StagingDir     string
	UploadMaxBytes int64

	AuthSigningSecret string
	AuthIssuer        string
	AuthAudience      string
	AuthTokenTTL      time.Duration

	LogLevel string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_allowed_origins", []string{"*"})
	configViper.SetDefault("http.write_rate_limit", 0.0)
	configViper.SetDefault("http.write_burst", defaultWriteBurst)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.journal_policy", defaultJournalPolicy)
	configViper.SetDefault("merge.page_size", library.DefaultMergePageSize)
	configViper.SetDefault("cache.summary_size", library.DefaultSummaryCacheSize)
	configViper.SetDefault("cache.summary_ttl", library.DefaultSummaryCacheTTL)
	configViper.SetDefault("inbox.dir", "")
	configViper.SetDefault("inbox.debounce", defaultInboxDebounce)
	configViper.SetDefault("staging.dir", defaultStagingDir)
	configViper.SetDefault("upload.max_bytes", defaultUploadMaxBytes)
	configViper.SetDefault("auth.issuer", auth.DefaultIssuer)
	configViper.SetDefault("auth.audience", auth.DefaultAudience)
	configViper.SetDefault("auth.token_ttl", auth.DefaultTokenTTL)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper. Only the settings every
// command needs are validated; RequireAuth checks the rest for serving.
func Load(configViper *viper.Viper) (AppConfig, error) {
	policy, err := database.ParseJournalPolicy(configViper.GetString("database.journal_policy"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("database.journal_policy: %w", err)
	}
	uploadMaxBytes, err := humanize.ParseBytes(configViper.GetString("upload.max_bytes"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("upload.max_bytes: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		CORSAllowedOrigins: configViper.GetStringSlice("http.cors_allowed_origins"),
		WriteRateLimit:     configViper.GetFloat64("http.write_rate_limit"),
		WriteBurst:         configViper.GetInt("http.write_burst"),
		DatabasePath:       configViper.GetString("database.path"),
		JournalPolicy:      policy,
		MergePageSize:      configViper.GetInt("merge.page_size"),
		SummaryCacheSize:   configViper.GetInt("cache.summary_size"),
		SummaryCacheTTL:    configViper.GetDuration("cache.summary_ttl"),
		InboxDir:           configViper.GetString("inbox.dir"),
		InboxDebounce:      configViper.GetDuration("inbox.debounce"),
		StagingDir:         configViper.GetString("staging.dir"),
		UploadMaxBytes:     int64(uploadMaxBytes),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		AuthTokenTTL:       configViper.GetDuration("auth.token_ttl"),
		LogLevel:           configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MergePageSize <= 0 {
		return fmt.Errorf("merge.page_size must be positive, got %d", c.MergePageSize)
	}
	if c.WriteRateLimit < 0 {
		return fmt.Errorf("http.write_rate_limit must not be negative")
	}
	if c.WriteRateLimit > 0 && c.WriteBurst <= 0 {
		return fmt.Errorf("http.write_burst must be positive when http.write_rate_limit is set")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}

// RequireAuth reports whether the token settings are complete.
func (c AppConfig) RequireAuth() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// TokenIssuer builds the token issuer described by the auth settings.
func (c AppConfig) TokenIssuer() (*auth.TokenIssuer, error) {
	if err := c.RequireAuth(); err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(c.AuthSigningSecret),
		Issuer:        c.AuthIssuer,
		Audience:      c.AuthAudience,
		TokenTTL:      c.AuthTokenTTL,
	})
}
