// Package tracker runs the client-side sampling loop: every interval it pulls activity
// samples for the window since the last cycle, aggregates and classifies them per bucket,
// and submits the summary as one ProductivityUpdate.
//
// The loop is owned by the caller through a Handle; there is no package-level state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/bucket"
	"github.com/KushagraAgarwal525/racoon/internal/client"
	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// ErrStopped is returned by Flush after Stop.
var ErrStopped = errors.New("tracker stopped")

// Source yields the activity samples observed in [start, end).
type Source interface {
	Samples(ctx context.Context, start, end time.Time) ([]model.ActivitySample, error)
}

// Classifier labels aggregated buckets; it never fails.
type Classifier interface {
	ClassifyAll(ctx context.Context, buckets []model.AggregatedBucket) []model.ClassifiedBucket
}

// Submitter delivers an update to the service.
type Submitter interface {
	SubmitUpdate(ctx context.Context, u model.ProductivityUpdate) (*client.UpdateResponse, error)
}

type Config struct {
	UserID       string
	Interval     time.Duration // between cycles, default 1m
	InitialDelay time.Duration // before the first cycle, default 5s
	MinWindow    time.Duration // shorter windows are skipped, default 10s
	BucketWidth  time.Duration // default 1m
}

type Deps struct {
	Source     Source
	Classifier Classifier
	Submitter  Submitter
	Log        zerolog.Logger
	Now        func() time.Time
	NewTaskID  func() string
}

// CycleResult describes one processing cycle.
type CycleResult struct {
	Start     time.Time
	End       time.Time
	Samples   int
	Buckets   int
	Update    *model.ProductivityUpdate
	Submitted bool
	Duplicate bool
	Skipped   string
}

// Handle controls a running tracker.
type Handle struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu            sync.Mutex // serialises cycles
	lastProcessed time.Time
	pending       *model.ProductivityUpdate

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start validates cfg and starts the loop. The loop ends when ctx is cancelled or Stop is called.
func Start(ctx context.Context, cfg Config, deps Deps) (*Handle, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	if deps.Source == nil || deps.Classifier == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("%w: source, classifier and submitter are required", model.ErrValidation)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 5 * time.Second
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = 10 * time.Second
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = bucket.DefaultWidth
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewTaskID == nil {
		deps.NewTaskID = func() string { return uuid.NewString() }
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cfg:           cfg,
		deps:          deps,
		log:           deps.Log.With().Str("component", "tracker").Str("user_id", cfg.UserID).Logger(),
		lastProcessed: deps.Now(),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go h.run(loopCtx)

	h.log.Info().Dur("interval", cfg.Interval).Msg("tracking started")
	return h, nil
}

// Stop ends the loop and waits for an in-flight cycle to finish. Safe to call more than once.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		<-h.done
		h.log.Info().Msg("tracking stopped")
	})
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Flush runs one cycle now, outside the schedule.
func (h *Handle) Flush(ctx context.Context) (*CycleResult, error) {
	select {
	case <-h.done:
		return nil, ErrStopped
	default:
	}
	return h.cycle(ctx)
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)

	timer := time.NewTimer(h.cfg.InitialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	h.tick(ctx)

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Handle) tick(ctx context.Context) {
	res, err := h.cycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.log.Error().Err(err).Msg("tracking cycle failed")
		}
		return
	}
	if res.Skipped != "" {
		h.log.Debug().Str("reason", res.Skipped).Msg("tracking cycle skipped")
	}
}

// cycle processes [lastProcessed, now). A failed submission is kept and resent unchanged,
// under the same taskId, before the next window is processed.
func (h *Handle) cycle(ctx context.Context) (*CycleResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending != nil {
		res, err := h.deps.Submitter.SubmitUpdate(ctx, *h.pending)
		if err != nil {
			return nil, fmt.Errorf("resubmit task %s: %w", h.pending.TaskID, err)
		}
		h.log.Info().Str("task_id", h.pending.TaskID).Bool("updated", res.Updated).Msg("pending update delivered")
		h.pending = nil
	}

	end := h.deps.Now()
	start := h.lastProcessed
	out := &CycleResult{Start: start, End: end}
	if end.Sub(start) < h.cfg.MinWindow {
		out.Skipped = "window too short"
		return out, nil
	}

	samples, err := h.deps.Source.Samples(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	out.Samples = len(samples)
	if len(samples) == 0 {
		h.lastProcessed = end
		out.Skipped = "no activity"
		return out, nil
	}

	buckets := bucket.Aggregate(samples, h.cfg.BucketWidth)
	classified := h.deps.Classifier.ClassifyAll(ctx, buckets)
	sum := bucket.Summarize(classified, h.cfg.BucketWidth)
	out.Buckets = len(buckets)

	u := model.ProductivityUpdate{
		UserID:         h.cfg.UserID,
		TaskID:         h.deps.NewTaskID(),
		WindowStart:    start,
		WindowEnd:      end,
		TotalTime:      sum.TotalTime,
		ProductiveTime: sum.ProductiveTime,
		Categories:     sum.Categories,
		Timestamp:      end.UTC().Format(time.RFC3339),
	}
	out.Update = &u
	h.lastProcessed = end

	res, err := h.deps.Submitter.SubmitUpdate(ctx, u)
	if err != nil {
		h.pending = &u
		return out, fmt.Errorf("submit task %s: %w", u.TaskID, err)
	}
	out.Submitted = true
	out.Duplicate = !res.Updated
	h.log.Info().Str("task_id", u.TaskID).
		Int("productive_time", u.ProductiveTime).Int("total_time", u.TotalTime).
		Int("buckets", len(buckets)).Msg("productivity update sent")
	return out, nil
}
