package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/bucket"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// BucketClassifier classifies aggregated buckets; it never fails.
type BucketClassifier interface {
	ClassifyAll(ctx context.Context, buckets []model.AggregatedBucket) []model.ClassifiedBucket
}

// IngestRequest carries raw samples for one submission window.
type IngestRequest struct {
	UserID  string                 `json:"userId"`
	TaskID  string                 `json:"taskId"`
	Samples []model.ActivitySample `json:"samples"`
}

// IngestResult is the update derived from the samples and how it was applied.
type IngestResult struct {
	Update  model.ProductivityUpdate `json:"update"`
	Buckets int                      `json:"buckets"`
	Result  model.UpdateResult       `json:"result"`
}

// IngestService runs raw samples through bucket aggregation and classification and then
// applies the summary through the ProductivityService.
type IngestService struct {
	store      store.Store
	updates    *ProductivityService
	classifier BucketClassifier
	width      time.Duration
	log        zerolog.Logger
}

func NewIngestService(s store.Store, updates *ProductivityService, c BucketClassifier, width time.Duration, log zerolog.Logger) *IngestService {
	if width <= 0 {
		width = bucket.DefaultWidth
	}
	return &IngestService{store: s, updates: updates, classifier: c, width: width, log: log}
}

func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: taskId is required", model.ErrValidation)
	}
	if len(req.Samples) == 0 {
		return nil, fmt.Errorf("%w: samples are required", model.ErrValidation)
	}

	// Skip classification for a taskId that was already applied.
	if _, err := s.store.Tasks().Get(ctx, req.TaskID); err == nil {
		return &IngestResult{
			Update: model.ProductivityUpdate{UserID: req.UserID, TaskID: req.TaskID},
			Result: model.UpdateResult{Accepted: false, Reason: ReasonAlreadyProcessed},
		}, nil
	} else if !model.IsNotFound(err) {
		return nil, err
	}

	buckets := bucket.Aggregate(req.Samples, s.width)
	classified := s.classifier.ClassifyAll(ctx, buckets)
	sum := bucket.Summarize(classified, s.width)

	start, end := window(req.Samples)
	u := model.ProductivityUpdate{
		UserID:         req.UserID,
		TaskID:         req.TaskID,
		WindowStart:    start,
		WindowEnd:      end,
		TotalTime:      sum.TotalTime,
		ProductiveTime: sum.ProductiveTime,
		Categories:     sum.Categories,
		Timestamp:      end.UTC().Format(time.RFC3339),
	}

	s.log.Debug().Str("user_id", req.UserID).Str("task_id", req.TaskID).
		Int("samples", len(req.Samples)).Int("buckets", len(buckets)).
		Msg("samples aggregated")

	res, err := s.updates.ApplyUpdate(ctx, &u)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Update: u, Buckets: len(buckets), Result: res}, nil
}

func window(samples []model.ActivitySample) (time.Time, time.Time) {
	start, end := samples[0].Timestamp, samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.Before(start) {
			start = s.Timestamp
		}
		if s.Timestamp.After(end) {
			end = s.Timestamp
		}
	}
	return start, end
}
