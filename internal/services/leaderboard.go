package services

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/daykey"
	"github.com/KushagraAgarwal525/racoon/internal/metrics"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// PlaceholderName is shown for users whose profile cannot be resolved.
const PlaceholderName = "Anonymous"

// MaxLeaderboardLimit caps the number of ranked entries returned.
const MaxLeaderboardLimit = 100

// ProfileLookup resolves display metadata for a user.
type ProfileLookup interface {
	Profile(ctx context.Context, userID string) (model.User, error)
}

// LeaderboardService ranks today's daily aggregates by productive time.
type LeaderboardService struct {
	store        store.Store
	profiles     ProfileLookup
	log          zerolog.Logger
	defaultLimit int
	now          func() time.Time
}

func NewLeaderboardService(s store.Store, profiles ProfileLookup, log zerolog.Logger, defaultLimit int) *LeaderboardService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &LeaderboardService{store: s, profiles: profiles, log: log, defaultLimit: defaultLimit, now: time.Now}
}

// GetLeaderboard returns the top limit users for the current UTC day. Ties keep store order
// (ascending userId). When userID has a record today, UserRank carries its position even if
// it falls outside the top limit.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit int, userID string) (*model.Leaderboard, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	day := daykey.For(s.now())
	recs, err := s.store.Daily().ListByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ProductiveTime > recs[j].ProductiveTime })

	out := &model.Leaderboard{Date: day, Leaderboard: make([]model.LeaderboardEntry, 0, limit)}
	for i, r := range recs {
		if i < limit {
			out.Leaderboard = append(out.Leaderboard, s.entry(ctx, r, i+1))
		}
		if userID != "" && r.UserID == userID {
			if i < limit {
				e := out.Leaderboard[i]
				out.UserRank = &e
			} else {
				e := s.entry(ctx, r, i+1)
				out.UserRank = &e
			}
		}
		if i >= limit && (userID == "" || out.UserRank != nil) {
			break
		}
	}
	return out, nil
}

func (s *LeaderboardService) entry(ctx context.Context, r *model.DayAggregate, rank int) model.LeaderboardEntry {
	e := model.LeaderboardEntry{
		UserID:         r.UserID,
		DisplayName:    PlaceholderName,
		ProductiveTime: r.ProductiveTime,
		TotalTime:      r.TotalTime,
		Rank:           rank,
	}
	if s.profiles == nil {
		return e
	}
	p, err := s.profiles.Profile(ctx, r.UserID)
	if err != nil {
		metrics.ProfileLookupFailuresTotal.Inc()
		s.log.Warn().Err(err).Str("user_id", r.UserID).Msg("profile lookup failed; using placeholder")
		return e
	}
	if p.DisplayName != "" {
		e.DisplayName = p.DisplayName
	}
	e.PhotoURL = p.PhotoURL
	return e
}
