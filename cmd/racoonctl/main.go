package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/KushagraAgarwal525/racoon/internal/client"
)

var (
	apiFlag     string
	timeoutFlag time.Duration
	rootCmd     = &cobra.Command{
		Use:   "racoonctl",
		Short: "CLI client for the racoon productivity service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", envOr("RACOON_API", "http://localhost:8080"), "Productivity service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "Per-request timeout")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(apiFlag, client.WithHTTPTimeout(timeoutFlag))
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
