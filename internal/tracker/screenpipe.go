package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

const (
	screenpipePageSize = 100
	screenpipeMaxPages = 50
)

// Screenpipe reads OCR frames from a local Screenpipe server's search API.
type Screenpipe struct {
	client         *resty.Client
	sampleDuration time.Duration
	loc            *time.Location
}

// NewScreenpipe creates a source for baseURL; an empty baseURL means http://localhost:3030.
// Each frame counts as one minute of activity, bucketed on the local clock.
func NewScreenpipe(baseURL string) *Screenpipe {
	if baseURL == "" {
		baseURL = "http://localhost:3030"
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second)
	return &Screenpipe{client: c, sampleDuration: time.Minute, loc: time.Local}
}

type searchResponse struct {
	Data       []searchItem `json:"data"`
	Pagination struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
		Total  int `json:"total"`
	} `json:"pagination"`
}

type searchItem struct {
	Type    string `json:"type"`
	Content struct {
		AppName    string `json:"app_name"`
		WindowName string `json:"window_name"`
		Timestamp  string `json:"timestamp"`
	} `json:"content"`
}

// Samples pages through /search for OCR frames in [start, end).
func (s *Screenpipe) Samples(ctx context.Context, start, end time.Time) ([]model.ActivitySample, error) {
	var out []model.ActivitySample
	for page := 0; page < screenpipeMaxPages; page++ {
		offset := page * screenpipePageSize
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"content_type": "ocr",
				"start_time":   start.UTC().Format(time.RFC3339),
				"end_time":     end.UTC().Format(time.RFC3339),
				"limit":        strconv.Itoa(screenpipePageSize),
				"offset":       strconv.Itoa(offset),
			}).
			Get("/search")
		if err != nil {
			return nil, fmt.Errorf("screenpipe search: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("screenpipe search status %d: %s", resp.StatusCode(), resp.String())
		}

		var sr searchResponse
		if err := json.Unmarshal(resp.Body(), &sr); err != nil {
			return nil, fmt.Errorf("decode screenpipe response: %w", err)
		}
		for _, item := range sr.Data {
			if !strings.EqualFold(item.Type, "ocr") {
				continue
			}
			out = append(out, s.toSample(item, end))
		}

		if len(sr.Data) < screenpipePageSize || (sr.Pagination.Total > 0 && offset+len(sr.Data) >= sr.Pagination.Total) {
			break
		}
	}
	return out, nil
}

func (s *Screenpipe) toSample(item searchItem, fallback time.Time) model.ActivitySample {
	app := item.Content.AppName
	if app == "" {
		app = "unknown"
	}
	ts, err := time.Parse(time.RFC3339Nano, item.Content.Timestamp)
	if err != nil {
		ts = fallback
	}
	return model.ActivitySample{
		AppName:     app,
		WindowTitle: item.Content.WindowName,
		Timestamp:   ts.In(s.loc),
		Duration:    s.sampleDuration,
	}
}
