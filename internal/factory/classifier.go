package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/classifier"
	"github.com/KushagraAgarwal525/racoon/internal/classifier/ollama"
	"github.com/KushagraAgarwal525/racoon/internal/config"
)

// NewClassifier builds the activity classifier over an Ollama model.
// Launches an async warmup ping; returns immediately for fast startup.
func NewClassifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*classifier.Classifier, *ollama.Client) {
	m := ollama.New(cfg.OllamaURL, cfg.ClassifierModel)
	c := classifier.New(m, log.With().Str("component", "classifier").Logger(), classifier.Options{
		Scheme:  classifier.Scheme(cfg.CategoryScheme),
		Timeout: cfg.ClassifierTimeout,
	})

	go func() {
		warmupTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		warmupCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
		defer cancel()

		if err := m.HealthPing(warmupCtx); err != nil {
			log.Warn().Err(err).Str("model", cfg.ClassifierModel).
				Msg("classifier model unreachable; falling back to keyword heuristic until it recovers")
		} else {
			log.Debug().Str("model", cfg.ClassifierModel).Msg("classifier model warmup completed")
		}
	}()

	return c, m
}
