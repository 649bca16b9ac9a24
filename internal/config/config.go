package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Category schemes
const (
	SchemeBinary  = "binary"
	SchemeTernary = "ternary"
)

// Config holds the configuration for the productivity service.
// Environment variables are parsed from the RACOON_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Store selection: memory | sqlite | postgres | spanner
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/racoon.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	SpannerProject  string `envconfig:"SPANNER_PROJECT" default:""`
	SpannerInstance string `envconfig:"SPANNER_INSTANCE" default:""`
	SpannerDatabase string `envconfig:"SPANNER_DATABASE" default:""`

	// Classifier
	OllamaURL         string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	ClassifierModel   string        `envconfig:"CLASSIFIER_MODEL" default:"deepseek-r1:1.5b"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"10s"`
	CategoryScheme    string        `envconfig:"CATEGORY_SCHEME" default:"binary"`
	BucketWidth       time.Duration `envconfig:"BUCKET_WIDTH" default:"1m"`

	// Update protocol and queries
	UpdateMaxAttempts int           `envconfig:"UPDATE_MAX_ATTEMPTS" default:"5"`
	LeaderboardLimit  int           `envconfig:"LEADERBOARD_LIMIT" default:"10"`
	MaxHistoryDays    int           `envconfig:"MAX_HISTORY_DAYS" default:"366"`
	ProfileCacheTTL   time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"5m"`

	// Submission rate limiting, per user
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates the driver and category scheme and clamps numeric knobs.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "memory", "sqlite", "postgres", "spanner":
	case "", "auto":
		c.DBDriver = "sqlite"
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.CategoryScheme {
	case SchemeBinary, SchemeTernary:
	case "":
		c.CategoryScheme = SchemeBinary
	default:
		return fmt.Errorf("unsupported CATEGORY_SCHEME: %s", c.CategoryScheme)
	}

	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("RACOON_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}
	if c.DBDriver == "spanner" && (c.SpannerProject == "" || c.SpannerInstance == "" || c.SpannerDatabase == "") {
		return fmt.Errorf("RACOON_SPANNER_PROJECT, RACOON_SPANNER_INSTANCE and RACOON_SPANNER_DATABASE are required when DB_DRIVER=spanner")
	}

	if c.BucketWidth < time.Minute {
		c.BucketWidth = time.Minute
	}
	if c.UpdateMaxAttempts <= 0 {
		c.UpdateMaxAttempts = 5
	}
	if c.LeaderboardLimit <= 0 {
		c.LeaderboardLimit = 10
	}
	if c.MaxHistoryDays <= 0 {
		c.MaxHistoryDays = 366
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: RACOON_HTTP_PORT, RACOON_DB_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RACOON", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Str("classifier_model", cfg.ClassifierModel).
		Str("category_scheme", cfg.CategoryScheme).
		Dur("bucket_width", cfg.BucketWidth).
		Int("update_max_attempts", cfg.UpdateMaxAttempts).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config backed by the in-memory store.
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		DBDriver:                  "memory",
		OllamaURL:                 "http://localhost:11434",
		ClassifierModel:           "deepseek-r1:1.5b",
		ClassifierTimeout:         2 * time.Second,
		CategoryScheme:            SchemeBinary,
		BucketWidth:               time.Minute,
		UpdateMaxAttempts:         5,
		LeaderboardLimit:          10,
		MaxHistoryDays:            366,
		ProfileCacheTTL:           time.Minute,
		RateLimitRPS:              1000,
		RateLimitBurst:            1000,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		BootstrapTimeoutSeconds:   1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
