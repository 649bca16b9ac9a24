package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KushagraAgarwal525/racoon/internal/classifier"
	"github.com/KushagraAgarwal525/racoon/internal/classifier/ollama"
	"github.com/KushagraAgarwal525/racoon/internal/logger"
	"github.com/KushagraAgarwal525/racoon/internal/tracker"
)

func init() {
	var (
		user, screenpipeURL, ollamaURL, modelName, scheme string
		interval                                          time.Duration
		noModel                                           bool
	)
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Sample Screenpipe activity, classify it locally and submit updates until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New("racoon-tracker")

			var m classifier.Model
			if !noModel {
				m = ollama.New(ollamaURL, modelName)
			}
			c := classifier.New(m, log, classifier.Options{Scheme: classifier.Scheme(scheme)})

			sigCtx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The loop outlives the signal so the partial window can still be flushed.
			h, err := tracker.Start(cmdContext(cmd), tracker.Config{UserID: user, Interval: interval}, tracker.Deps{
				Source:     tracker.NewScreenpipe(screenpipeURL),
				Classifier: c,
				Submitter:  newClient(),
				Log:        log,
			})
			if err != nil {
				return err
			}
			select {
			case <-sigCtx.Done():
			case <-h.Done():
				return nil
			}

			// Submit the partial window before exiting.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := h.Flush(flushCtx); err != nil && !errors.Is(err, tracker.ErrStopped) {
				log.Warn().Err(err).Msg("final flush failed")
			}
			h.Stop()
			return nil
		},
	}
	trackCmd.Flags().StringVarP(&user, "user", "u", "", "User ID (required)")
	trackCmd.Flags().StringVar(&screenpipeURL, "screenpipe", envOr("SCREENPIPE_URL", "http://localhost:3030"), "Screenpipe base URL")
	trackCmd.Flags().StringVar(&ollamaURL, "ollama", envOr("RACOON_OLLAMA_URL", "http://localhost:11434"), "Ollama base URL")
	trackCmd.Flags().StringVar(&modelName, "model", envOr("RACOON_CLASSIFIER_MODEL", "deepseek-r1:1.5b"), "Classifier model")
	trackCmd.Flags().StringVar(&scheme, "scheme", "binary", "Category scheme: binary or ternary")
	trackCmd.Flags().DurationVar(&interval, "interval", time.Minute, "Processing interval")
	trackCmd.Flags().BoolVar(&noModel, "no-model", false, "Classify with the override table and keywords only")
	_ = trackCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(trackCmd)
}
