package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/daykey"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// DefaultHistoryDays is used when callers do not specify a window.
const DefaultHistoryDays = 7

// DefaultTopApps is the report's app list length when callers pass a non-positive n.
const DefaultTopApps = 10

// HistoryService serves per-user day views.
type HistoryService struct {
	store   store.Store
	maxDays int
	now     func() time.Time
}

func NewHistoryService(s store.Store, maxDays int) *HistoryService {
	if maxDays <= 0 {
		maxDays = 366
	}
	return &HistoryService{store: s, maxDays: maxDays, now: time.Now}
}

// GetHistory returns exactly days entries ending today (UTC), most recent first.
// Days without a history record are zero-filled with a nil LastUpdated.
func (s *HistoryService) GetHistory(ctx context.Context, userID string, days int) ([]model.HistoryEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	if days <= 0 || days > s.maxDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", model.ErrValidation, s.maxDays)
	}

	keys := daykey.Last(s.now(), days)
	recs, err := s.store.History().ListForUser(ctx, userID, keys)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]*model.DayAggregate, len(recs))
	for _, r := range recs {
		byDay[r.Date] = r
	}

	out := make([]model.HistoryEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, toEntry(k, byDay[k]))
	}
	return out, nil
}

// Today returns the caller's daily aggregate for the current UTC day, zero-valued when absent.
func (s *HistoryService) Today(ctx context.Context, userID string) (model.HistoryEntry, error) {
	if userID == "" {
		return model.HistoryEntry{}, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	day := daykey.For(s.now())
	rec, err := s.store.Daily().Get(ctx, userID, day)
	if err != nil && !model.IsNotFound(err) {
		return model.HistoryEntry{}, err
	}
	return toEntry(day, rec), nil
}

// Report builds today's display summary from the daily aggregate.
func (s *HistoryService) Report(ctx context.Context, userID string, topN int) (model.DailyReport, error) {
	e, err := s.Today(ctx, userID)
	if err != nil {
		return model.DailyReport{}, err
	}
	return BuildReport(e, topN), nil
}

// BuildReport derives the score as round(productive/total*100), 0 for an empty day, and lists
// the topN apps by minutes with ties broken by name.
func BuildReport(e model.HistoryEntry, topN int) model.DailyReport {
	if topN <= 0 {
		topN = DefaultTopApps
	}
	r := model.DailyReport{
		Date:              e.Date,
		TotalTime:         e.TotalTime,
		ProductiveTime:    e.ProductiveTime,
		NonProductiveTime: e.TotalTime - e.ProductiveTime,
		LastUpdated:       e.LastUpdated,
		TopApps:           make([]model.AppUsage, 0, len(e.Categories)),
	}
	if e.TotalTime > 0 {
		r.ProductivityScore = int(math.Round(float64(e.ProductiveTime) / float64(e.TotalTime) * 100))
	}
	for app, mins := range e.Categories {
		r.TopApps = append(r.TopApps, model.AppUsage{AppName: app, Duration: mins})
	}
	sort.Slice(r.TopApps, func(i, j int) bool {
		if r.TopApps[i].Duration != r.TopApps[j].Duration {
			return r.TopApps[i].Duration > r.TopApps[j].Duration
		}
		return r.TopApps[i].AppName < r.TopApps[j].AppName
	})
	if len(r.TopApps) > topN {
		r.TopApps = r.TopApps[:topN]
	}
	return r
}

func toEntry(day string, rec *model.DayAggregate) model.HistoryEntry {
	if rec == nil {
		return model.HistoryEntry{Date: day, Categories: map[string]int{}}
	}
	last := rec.LastUpdated
	return model.HistoryEntry{
		Date:           day,
		ProductiveTime: rec.ProductiveTime,
		TotalTime:      rec.TotalTime,
		Categories:     model.CopyCategories(rec.Categories),
		LastUpdated:    &last,
	}
}
