// Package ollama implements classifier.Model against a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls the Ollama generate API with streaming disabled.
type Client struct {
	client *resty.Client
	model  string
}

// New creates a Client for baseURL; an empty baseURL means http://localhost:11434.
func New(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)

	return &Client{client: c, model: model}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's full response text for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&generateRequest{Model: c.model, Prompt: prompt, Stream: false}).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
	}

	var gr generateResponse
	if err := json.Unmarshal(resp.Body(), &gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gr.Response, nil
}

// HealthPing lists local models; the server is healthy when the call succeeds.
func (c *Client) HealthPing(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return fmt.Errorf("ollama tags: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama tags status %d", resp.StatusCode())
	}
	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }
