// Package client is the HTTP client for the productivity service. The CLI and the tracker
// submit and query through it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")
)

// APIError carries a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("racoon api: status %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	rc *resty.Client
}

// Option configures a Client during construction in New.
type Option func(*Client)

// WithHTTPTimeout bounds each request, including retries of that request.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rc.SetTimeout(d)
		}
	}
}

// WithRetries sets how many times transport errors and 5xx responses are retried.
// Submissions are keyed by taskId, so retrying them is safe.
func WithRetries(n int) Option {
	return func(c *Client) { c.rc.SetRetryCount(n) }
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	c := &Client{rc: rc}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpdateResponse is the body of a submission response.
type UpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated bool   `json:"updated"`
}

type updatePayload struct {
	UserID          string         `json:"userId"`
	TaskID          string         `json:"taskId"`
	TotalTime       int            `json:"totalTime"`
	ProductiveTime  int            `json:"productiveTime"`
	Categories      map[string]int `json:"categories,omitempty"`
	ApplicationName string         `json:"applicationName,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

// SubmitUpdate posts one ProductivityUpdate. A duplicate taskId is not an error; it comes
// back with Updated=false.
func (c *Client) SubmitUpdate(ctx context.Context, u model.ProductivityUpdate) (*UpdateResponse, error) {
	var out UpdateResponse
	err := c.do(ctx, http.MethodPost, "/api/productivity/update", &updatePayload{
		UserID:          u.UserID,
		TaskID:          u.TaskID,
		TotalTime:       u.TotalTime,
		ProductiveTime:  u.ProductiveTime,
		Categories:      u.Categories,
		ApplicationName: u.ApplicationName,
		Timestamp:       u.Timestamp,
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SamplesResponse is the body of a raw-sample submission response.
type SamplesResponse struct {
	UpdateResponse
	Buckets        int            `json:"buckets"`
	TotalTime      int            `json:"totalTime"`
	ProductiveTime int            `json:"productiveTime"`
	Categories     map[string]int `json:"categories"`
}

type samplePayload struct {
	AppName         string    `json:"appName"`
	WindowTitle     string    `json:"windowTitle"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// SubmitSamples posts raw samples for server-side aggregation and classification.
func (c *Client) SubmitSamples(ctx context.Context, userID, taskID string, samples []model.ActivitySample) (*SamplesResponse, error) {
	body := struct {
		UserID  string          `json:"userId"`
		TaskID  string          `json:"taskId"`
		Samples []samplePayload `json:"samples"`
	}{UserID: userID, TaskID: taskID, Samples: make([]samplePayload, 0, len(samples))}
	for _, s := range samples {
		body.Samples = append(body.Samples, samplePayload{
			AppName:         s.AppName,
			WindowTitle:     s.WindowTitle,
			Timestamp:       s.Timestamp,
			DurationSeconds: s.Duration.Seconds(),
		})
	}

	var out SamplesResponse
	if err := c.do(ctx, http.MethodPost, "/api/productivity/samples", &body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns days entries ending today, most recent first. days <= 0 uses the server default.
func (c *Client) History(ctx context.Context, userID string, days int) ([]model.HistoryEntry, error) {
	q := map[string]string{"userId": userID}
	if days > 0 {
		q["days"] = strconv.Itoa(days)
	}
	var out struct {
		History []model.HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/productivity/history", nil, q, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Today returns the caller's aggregate for the current UTC day.
func (c *Client) Today(ctx context.Context, userID string) (*model.HistoryEntry, error) {
	var out model.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/api/productivity/today", nil, map[string]string{"userId": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report returns today's score and top apps. top <= 0 uses the server default.
func (c *Client) Report(ctx context.Context, userID string, top int) (*model.DailyReport, error) {
	q := map[string]string{"userId": userID}
	if top > 0 {
		q["top"] = strconv.Itoa(top)
	}
	var out struct {
		Report model.DailyReport `json:"report"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/productivity/report", nil, q, &out); err != nil {
		return nil, err
	}
	return &out.Report, nil
}

// Leaderboard returns today's ranking. limit <= 0 uses the server default; userID may be empty.
func (c *Client) Leaderboard(ctx context.Context, limit int, userID string) (*model.Leaderboard, error) {
	q := map[string]string{}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	if userID != "" {
		q["userId"] = userID
	}
	var out model.Leaderboard
	if err := c.do(ctx, http.MethodGet, "/api/productivity/leaderboard", nil, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser registers a profile.
func (c *Client) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	body := map[string]string{
		"userId":      u.UserID,
		"displayName": u.DisplayName,
		"email":       u.Email,
		"photoURL":    u.PhotoURL,
	}
	var out model.User
	if err := c.do(ctx, http.MethodPost, "/api/users", body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches a profile; a missing user yields ErrNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	path := "/api/users/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserExists reports whether a profile exists.
func (c *Client) UserExists(ctx context.Context, userID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/check", nil, map[string]string{"userId": userID}, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string, out interface{}) error {
	req := c.rc.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	msg := resp.Status()
	if eb, ok := resp.Error().(*errorBody); ok && eb.Message != "" {
		msg = eb.Message
	}
	apiErr := &APIError{Status: resp.StatusCode(), Message: msg}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w (retry after %ss): %v", ErrRateLimited, resp.Header().Get("Retry-After"), apiErr)
	}
	return apiErr
}
