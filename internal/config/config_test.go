package config

import (
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.SQLitePath != "data/racoon.db" {
		t.Fatalf("unexpected default store config: %+v", cfg)
	}
	if cfg.CategoryScheme != SchemeBinary || cfg.BucketWidth != time.Minute {
		t.Fatalf("unexpected default classifier config: %+v", cfg)
	}
	if cfg.UpdateMaxAttempts != 5 || cfg.LeaderboardLimit != 10 {
		t.Fatalf("unexpected default protocol config: %+v", cfg)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	t.Setenv("RACOON_DB_DRIVER", "memory")
	t.Setenv("RACOON_CATEGORY_SCHEME", "ternary")
	t.Setenv("RACOON_UPDATE_MAX_ATTEMPTS", "9")
	t.Setenv("RACOON_CLASSIFIER_TIMEOUT", "3s")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DBDriver != "memory" || cfg.CategoryScheme != SchemeTernary {
		t.Fatalf("env override failed: %+v", cfg)
	}
	if cfg.UpdateMaxAttempts != 9 || cfg.ClassifierTimeout != 3*time.Second {
		t.Fatalf("env override failed: %+v", cfg)
	}
}

func TestResolveDefaults(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "auto driver", cfg: Config{DBDriver: "auto"}},
		{name: "unknown driver", cfg: Config{DBDriver: "mysql"}, wantErr: true},
		{name: "unknown scheme", cfg: Config{DBDriver: "memory", CategoryScheme: "5-way"}, wantErr: true},
		{name: "postgres without dsn", cfg: Config{DBDriver: "postgres"}, wantErr: true},
		{name: "spanner partial", cfg: Config{DBDriver: "spanner", SpannerProject: "p"}, wantErr: true},
		{name: "postgres with dsn", cfg: Config{DBDriver: "postgres", PostgresDSN: "postgres://x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ResolveDefaults()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolveDefaults_ClampsKnobs(t *testing.T) {
	cfg := Config{DBDriver: "memory", BucketWidth: time.Second}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.BucketWidth != time.Minute || cfg.UpdateMaxAttempts != 5 || cfg.MaxHistoryDays != 366 {
		t.Fatalf("knobs not clamped: %+v", cfg)
	}
	if cfg.CategoryScheme != SchemeBinary {
		t.Fatalf("expected binary scheme default, got %s", cfg.CategoryScheme)
	}
}
