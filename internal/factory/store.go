package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/config"
	storepkg "github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/memory"
	storepg "github.com/KushagraAgarwal525/racoon/internal/store/postgres"
	storespanner "github.com/KushagraAgarwal525/racoon/internal/store/spanner"
	storesqlite "github.com/KushagraAgarwal525/racoon/internal/store/sqlite"
)

// NewStore returns the store.Store selected by cfg.DBDriver. SQL drivers are migrated and
// Spanner gets any missing tables before returning.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	switch cfg.DBDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; aggregates are lost on restart")
		return memory.New(), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return storesqlite.New(cfg.SQLitePath)

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("RACOON_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		st, err := storepg.New(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		// Async connectivity check; don't block startup
		go func() {
			bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
			bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			defer cancel()

			if err := storepg.Bootstrap(bootstrapCtx, cfg.PostgresDSN); err != nil {
				log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store bootstrap check failed")
			} else {
				log.Debug().Str("driver", cfg.DBDriver).Msg("store bootstrap check completed")
			}
		}()
		return st, nil

	case "spanner":
		scfg := storespanner.Config{
			ProjectID:  cfg.SpannerProject,
			InstanceID: cfg.SpannerInstance,
			DatabaseID: cfg.SpannerDatabase,
		}
		st, err := storespanner.New(ctx, scfg)
		if err != nil {
			return nil, err
		}
		if err := storespanner.EnsureSchema(ctx, scfg); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("spanner schema: %w", err)
		}
		log.Debug().Str("database", scfg.DatabasePath()).Msg("spanner schema ensured")
		return st, nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
}
