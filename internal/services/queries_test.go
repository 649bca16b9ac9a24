package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KushagraAgarwal525/racoon/internal/daykey"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/memory"
)

func seed(t *testing.T, s store.Store, userID string, at time.Time, productive, total int) {
	t.Helper()
	svc := NewProductivityService(s, zerolog.Nop(), WithClock(func() time.Time { return at }))
	res, err := svc.ApplyUpdate(context.Background(), &model.ProductivityUpdate{
		UserID: userID, TaskID: userID + "-" + at.Format(time.RFC3339Nano),
		TotalTime: total, ProductiveTime: productive, Categories: map[string]int{"code": productive},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)
}

// --- History ---

func TestGetHistory_ZeroFillForNewUser(t *testing.T) {
	h := NewHistoryService(memory.New(), 366)
	h.now = clock

	got, err := h.GetHistory(context.Background(), "nobody", 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, e := range got {
		assert.Equal(t, daykey.For(fixedNow.AddDate(0, 0, -i)), e.Date)
		assert.Zero(t, e.ProductiveTime)
		assert.Zero(t, e.TotalTime)
		assert.Empty(t, e.Categories)
		assert.Nil(t, e.LastUpdated)
	}
}

func TestGetHistory_MostRecentFirstWithGaps(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", fixedNow, 30, 60)
	seed(t, s, "u1", fixedNow.AddDate(0, 0, -2), 10, 20)
	seed(t, s, "u1", fixedNow.AddDate(0, 0, -10), 99, 99) // outside the window

	h := NewHistoryService(s, 366)
	h.now = clock
	got, err := h.GetHistory(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "01-05-2025", got[0].Date)
	assert.Equal(t, 30, got[0].ProductiveTime)
	assert.NotNil(t, got[0].LastUpdated)
	assert.Equal(t, "30-04-2025", got[1].Date)
	assert.Zero(t, got[1].TotalTime)
	assert.Nil(t, got[1].LastUpdated)
	assert.Equal(t, "29-04-2025", got[2].Date)
	assert.Equal(t, 20, got[2].TotalTime)
	assert.Equal(t, map[string]int{"code": 10}, got[2].Categories)
}

func TestGetHistory_Validation(t *testing.T) {
	h := NewHistoryService(memory.New(), 30)
	for _, days := range []int{0, -1, 31} {
		_, err := h.GetHistory(context.Background(), "u1", days)
		assert.True(t, model.IsValidation(err), "days=%d: %v", days, err)
	}
	_, err := h.GetHistory(context.Background(), "", 7)
	assert.True(t, model.IsValidation(err))
}

func TestToday(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", fixedNow, 5, 8)
	h := NewHistoryService(s, 366)
	h.now = clock

	got, err := h.Today(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "01-05-2025", got.Date)
	assert.Equal(t, 8, got.TotalTime)

	empty, err := h.Today(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTime)
	assert.Nil(t, empty.LastUpdated)
}

func TestReport(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", fixedNow, 2, 3)
	h := NewHistoryService(s, 366)
	h.now = clock

	got, err := h.Report(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, "01-05-2025", got.Date)
	assert.Equal(t, 67, got.ProductivityScore)
	assert.Equal(t, 1, got.NonProductiveTime)
	assert.Equal(t, []model.AppUsage{{AppName: "code", Duration: 2}}, got.TopApps)
	assert.NotNil(t, got.LastUpdated)

	empty, err := h.Report(context.Background(), "u2", 0)
	require.NoError(t, err)
	assert.Zero(t, empty.ProductivityScore)
	assert.Zero(t, empty.NonProductiveTime)
	assert.Empty(t, empty.TopApps)
	assert.Nil(t, empty.LastUpdated)

	_, err = h.Report(context.Background(), "", 0)
	assert.True(t, model.IsValidation(err))
}

func TestBuildReport_TopAppsOrderAndLimit(t *testing.T) {
	e := model.HistoryEntry{
		Date: "01-05-2025", TotalTime: 40, ProductiveTime: 10,
		Categories: map[string]int{"slack": 5, "code": 10, "chrome": 10, "zoom": 15},
	}
	got := BuildReport(e, 3)
	assert.Equal(t, 25, got.ProductivityScore)
	assert.Equal(t, 30, got.NonProductiveTime)
	assert.Equal(t, []model.AppUsage{
		{AppName: "zoom", Duration: 15},
		{AppName: "chrome", Duration: 10},
		{AppName: "code", Duration: 10},
	}, got.TopApps)

	all := BuildReport(e, 0)
	assert.Len(t, all.TopApps, 4)
}

func TestBuildReport_ZeroTotal(t *testing.T) {
	got := BuildReport(model.HistoryEntry{Date: "01-05-2025", Categories: map[string]int{}}, 5)
	assert.Zero(t, got.ProductivityScore)
	assert.Zero(t, got.TotalTime)
	assert.NotNil(t, got.TopApps)
	assert.Empty(t, got.TopApps)
}

// --- Leaderboard ---

type fakeProfiles map[string]model.User

func (f fakeProfiles) Profile(_ context.Context, userID string) (model.User, error) {
	if u, ok := f[userID]; ok {
		return u, nil
	}
	return model.User{}, errors.New("profile backend unavailable")
}

func newLeaderboard(s store.Store, p ProfileLookup) *LeaderboardService {
	lb := NewLeaderboardService(s, p, zerolog.Nop(), 10)
	lb.now = clock
	return lb
}

func TestGetLeaderboard_RanksByProductiveTime(t *testing.T) {
	s := memory.New()
	seed(t, s, "alice", fixedNow, 30, 40)
	seed(t, s, "bob", fixedNow, 50, 60)
	seed(t, s, "carol", fixedNow, 10, 70)
	seed(t, s, "dave", fixedNow.AddDate(0, 0, -1), 500, 500) // yesterday

	lb := newLeaderboard(s, fakeProfiles{"alice": {DisplayName: "Alice", PhotoURL: "a.png"}, "bob": {DisplayName: "Bob"}})
	got, err := lb.GetLeaderboard(context.Background(), 10, "")
	require.NoError(t, err)

	assert.Equal(t, "01-05-2025", got.Date)
	require.Len(t, got.Leaderboard, 3)
	var productive []int
	for _, e := range got.Leaderboard {
		productive = append(productive, e.ProductiveTime)
	}
	assert.Equal(t, []int{50, 30, 10}, productive)
	assert.Equal(t, "Bob", got.Leaderboard[0].DisplayName)
	assert.Equal(t, 1, got.Leaderboard[0].Rank)
	assert.Equal(t, "a.png", got.Leaderboard[1].PhotoURL)
	assert.Equal(t, PlaceholderName, got.Leaderboard[2].DisplayName, "failed lookup falls back to placeholder")
	assert.Nil(t, got.UserRank)
}

func TestGetLeaderboard_TiesKeepStoreOrder(t *testing.T) {
	s := memory.New()
	for _, id := range []string{"c", "a", "b"} {
		seed(t, s, id, fixedNow, 20, 20)
	}
	got, err := newLeaderboard(s, nil).GetLeaderboard(context.Background(), 10, "")
	require.NoError(t, err)
	var ids []string
	for _, e := range got.Leaderboard {
		ids = append(ids, e.UserID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestGetLeaderboard_UserRankOutsideTop(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", fixedNow, 50, 50)
	seed(t, s, "u2", fixedNow, 40, 40)
	seed(t, s, "u3", fixedNow, 5, 50)

	lb := newLeaderboard(s, fakeProfiles{"u3": {DisplayName: "Three"}})
	got, err := lb.GetLeaderboard(context.Background(), 2, "u3")
	require.NoError(t, err)
	require.Len(t, got.Leaderboard, 2)
	require.NotNil(t, got.UserRank)
	assert.Equal(t, 3, got.UserRank.Rank)
	assert.Equal(t, "Three", got.UserRank.DisplayName)

	inTop, err := lb.GetLeaderboard(context.Background(), 2, "u2")
	require.NoError(t, err)
	require.NotNil(t, inTop.UserRank)
	assert.Equal(t, 2, inTop.UserRank.Rank)

	absent, err := lb.GetLeaderboard(context.Background(), 2, "ghost")
	require.NoError(t, err)
	assert.Nil(t, absent.UserRank)
}

func TestGetLeaderboard_EmptyDay(t *testing.T) {
	got, err := newLeaderboard(memory.New(), nil).GetLeaderboard(context.Background(), 0, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Leaderboard)
	assert.NotNil(t, got.Leaderboard)
	assert.Nil(t, got.UserRank)
}

// --- Users ---

func TestUserService(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	us := NewUserService(s, time.Minute)

	_, err := us.CreateUser(ctx, &model.User{UserID: "", DisplayName: "x"})
	assert.True(t, model.IsValidation(err))
	_, err = us.CreateUser(ctx, &model.User{UserID: "u1"})
	assert.True(t, model.IsValidation(err))

	created, err := us.CreateUser(ctx, &model.User{UserID: "u1", DisplayName: "Ada", PhotoURL: "ada.png"})
	require.NoError(t, err)
	assert.False(t, created.CreationTime.IsZero())

	_, err = us.CreateUser(ctx, &model.User{UserID: "u1", DisplayName: "Again"})
	assert.True(t, model.IsConflict(err))

	ok, err := us.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = us.Exists(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := us.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)

	_, err = us.Profile(ctx, "u2")
	assert.True(t, model.IsNotFound(err))
}

type countingUsers struct {
	store.Users
	gets int
}

func (c *countingUsers) Get(ctx context.Context, userID string) (*model.User, error) {
	c.gets++
	return c.Users.Get(ctx, userID)
}

type countingStore struct {
	store.Store
	users *countingUsers
}

func (c countingStore) Users() store.Users { return c.users }

func TestUserService_ProfileServedFromCache(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, err := mem.Users().Create(ctx, &model.User{UserID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)

	cs := countingStore{Store: mem, users: &countingUsers{Users: mem.Users()}}
	us := NewUserService(cs, time.Minute)
	for i := 0; i < 3; i++ {
		p, err := us.Profile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", p.DisplayName)
	}
	assert.Equal(t, 1, cs.users.gets)
}
