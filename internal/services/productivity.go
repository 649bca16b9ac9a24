package services

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/daykey"
	"github.com/KushagraAgarwal525/racoon/internal/metrics"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// ReasonAlreadyProcessed is returned with Accepted=false for a duplicate taskId.
const ReasonAlreadyProcessed = "already processed"

// ProductivityService applies ProductivityUpdates exactly once per taskId.
type ProductivityService struct {
	store       store.Store
	log         zerolog.Logger
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// ProductivityOption customises a ProductivityService.
type ProductivityOption func(*ProductivityService)

// WithMaxAttempts bounds the number of transaction attempts per update.
func WithMaxAttempts(n int) ProductivityOption {
	return func(s *ProductivityService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry delay range between conflicting attempts.
func WithBackoff(base, max time.Duration) ProductivityOption {
	return func(s *ProductivityService) {
		s.baseBackoff = base
		s.maxBackoff = max
	}
}

// WithClock overrides the reference instant used for day keys and lastUpdated.
func WithClock(now func() time.Time) ProductivityOption {
	return func(s *ProductivityService) { s.now = now }
}

func NewProductivityService(s store.Store, log zerolog.Logger, opts ...ProductivityOption) *ProductivityService {
	svc := &ProductivityService{
		store:       s,
		log:         log,
		maxAttempts: 5,
		baseBackoff: 10 * time.Millisecond,
		maxBackoff:  200 * time.Millisecond,
		now:         time.Now,
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// ValidateUpdate rejects malformed updates before any store access.
func ValidateUpdate(u *model.ProductivityUpdate) error {
	if u == nil {
		return fmt.Errorf("%w: update is required", model.ErrValidation)
	}
	if u.UserID == "" {
		return fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	if u.TaskID == "" {
		return fmt.Errorf("%w: taskId is required", model.ErrValidation)
	}
	if u.TotalTime < 0 || u.ProductiveTime < 0 {
		return fmt.Errorf("%w: time values must be non-negative", model.ErrValidation)
	}
	if u.ProductiveTime > u.TotalTime {
		return fmt.Errorf("%w: productiveTime (%d) exceeds totalTime (%d)", model.ErrValidation, u.ProductiveTime, u.TotalTime)
	}
	for name, v := range u.Categories {
		if v < 0 {
			return fmt.Errorf("%w: category %q has negative time", model.ErrValidation, name)
		}
	}
	return nil
}

// ApplyUpdate merges u into the caller's daily and history aggregates for the current UTC day
// and records its taskId, all in one transaction. A taskId seen before yields
// Accepted=false with ReasonAlreadyProcessed and no error. Write conflicts are retried a
// bounded number of times from a fresh read; exhaustion returns model.ErrRetriesExhausted.
func (s *ProductivityService) ApplyUpdate(ctx context.Context, u *model.ProductivityUpdate) (model.UpdateResult, error) {
	if err := ValidateUpdate(u); err != nil {
		metrics.UpdatesTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return model.UpdateResult{}, err
	}

	var (
		result   model.UpdateResult
		attempts int
	)
	op := func() error {
		attempts++
		res, err := s.applyOnce(ctx, u)
		if err == nil {
			result = res
			return nil
		}
		if model.IsConflict(err) {
			metrics.TxnConflictsTotal.Inc()
			s.log.Debug().Err(err).Str("task_id", u.TaskID).Int("attempt", attempts).Msg("aggregate transaction conflict; retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.baseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = s.maxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.maxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		metrics.UpdatesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		if model.IsConflict(err) {
			s.log.Error().Err(err).Str("user_id", u.UserID).Str("task_id", u.TaskID).Int("attempts", attempts).Msg("productivity update retries exhausted")
			return model.UpdateResult{}, fmt.Errorf("%w after %d attempts: %v", model.ErrRetriesExhausted, attempts, err)
		}
		s.log.Error().Stack().Err(err).Str("user_id", u.UserID).Str("task_id", u.TaskID).Msg("productivity update failed")
		return model.UpdateResult{}, err
	}

	if result.Accepted {
		metrics.UpdatesTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
		s.log.Info().Str("user_id", u.UserID).Str("task_id", u.TaskID).
			Int("total_time", u.TotalTime).Int("productive_time", u.ProductiveTime).
			Msg("productivity update accepted")
	} else {
		metrics.UpdatesTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		s.log.Info().Str("user_id", u.UserID).Str("task_id", u.TaskID).Msg("duplicate task ignored")
	}
	return result, nil
}

// applyOnce is one read-merge-write attempt.
func (s *ProductivityService) applyOnce(ctx context.Context, u *model.ProductivityUpdate) (model.UpdateResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.UpdateResult{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Task(ctx, u.TaskID); err == nil {
		return model.UpdateResult{Accepted: false, Reason: ReasonAlreadyProcessed}, nil
	} else if !model.IsNotFound(err) {
		return model.UpdateResult{}, err
	}

	now := s.now().UTC()
	day := daykey.For(now)

	for _, kind := range []model.AggregateKind{model.KindDaily, model.KindHistory} {
		cur, err := tx.Aggregate(ctx, kind, u.UserID, day)
		switch {
		case err == nil:
			cur.ProductiveTime += u.ProductiveTime
			cur.TotalTime += u.TotalTime
			cur.Categories = model.MergeCategories(cur.Categories, u.Categories)
			cur.LastUpdated = now
		case model.IsNotFound(err):
			cur = &model.DayAggregate{
				UserID:         u.UserID,
				Date:           day,
				ProductiveTime: u.ProductiveTime,
				TotalTime:      u.TotalTime,
				Categories:     model.CopyCategories(u.Categories),
				LastUpdated:    now,
			}
		default:
			return model.UpdateResult{}, err
		}
		tx.PutAggregate(kind, cur)
	}

	tx.PutTask(&model.ProcessedTask{
		TaskID:          u.TaskID,
		UserID:          u.UserID,
		ProcessedAt:     now,
		TotalTime:       u.TotalTime,
		ProductiveTime:  u.ProductiveTime,
		Categories:      model.CopyCategories(u.Categories),
		ApplicationName: u.ApplicationName,
		Timestamp:       u.Timestamp,
	})

	if err := tx.Commit(ctx); err != nil {
		return model.UpdateResult{}, err
	}
	return model.UpdateResult{Accepted: true}, nil
}
