package productivityservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/KushagraAgarwal525/racoon/internal/api"
	"github.com/KushagraAgarwal525/racoon/internal/api/ratelimit"
	"github.com/KushagraAgarwal525/racoon/internal/classifier"
	"github.com/KushagraAgarwal525/racoon/internal/classifier/ollama"
	"github.com/KushagraAgarwal525/racoon/internal/config"
	"github.com/KushagraAgarwal525/racoon/internal/factory"
	"github.com/KushagraAgarwal525/racoon/internal/health"
	"github.com/KushagraAgarwal525/racoon/internal/logger"
	"github.com/KushagraAgarwal525/racoon/internal/services"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// Run starts the productivity service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("productivity-service")
	zlog.Logger = log

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("classifier_model", cfg.ClassifierModel).
		Str("category_scheme", cfg.CategoryScheme).
		Msg("Productivity service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// Block startup until required dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, app.Health); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, app.Router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// App is the wired service: router, store and health state.
type App struct {
	Router http.Handler
	Store  store.Store
	Health *health.ServiceHealthChecker
}

// NewApp constructs dependencies, starts health checkers bound to ctx and builds the router.
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	c, model := factory.NewClassifier(ctx, cfg, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, model)
	router := buildRouter(cfg, log, st, c, svcHealth)
	return &App{Router: router, Store: st, Health: svcHealth}, nil
}

// Close releases the store.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		zlog.Warn().Err(err).Msg("store close failed")
	}
}

// buildRouter wires services to HTTP routes.
func buildRouter(cfg *config.Config, log zerolog.Logger, st store.Store, c *classifier.Classifier, svcHealth *health.ServiceHealthChecker) http.Handler {
	updates := services.NewProductivityService(st, log.With().Str("component", "updates").Logger(),
		services.WithMaxAttempts(cfg.UpdateMaxAttempts))
	users := services.NewUserService(st, cfg.ProfileCacheTTL)

	return api.NewRouter(api.Deps{
		Updates:     updates,
		Ingest:      services.NewIngestService(st, updates, c, cfg.BucketWidth, log.With().Str("component", "ingest").Logger()),
		History:     services.NewHistoryService(st, cfg.MaxHistoryDays),
		Leaderboard: services.NewLeaderboardService(st, users, log.With().Str("component", "leaderboard").Logger(), cfg.LeaderboardLimit),
		Users:       users,
		Limiter:     ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Health:      api.NewHealthHandler(svcHealth.IsHealthy, svcHealth.Components),
	})
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, model *ollama.Client) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	modelChecker := classifier.NewModelHealthChecker(model, log, probeTimeout)
	go modelChecker.Start(ctx, interval)
	checkers = append(checkers, modelChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

// newHTTPServer builds the server. Request contexts keep ctx's values but not its cancellation,
// so in-flight updates finish during Shutdown after the signal fires.
func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ClassifierTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
