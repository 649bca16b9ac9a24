// Package storetest is a compliance suite shared by every store driver.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// makeStore must return a store whose schema is in place; it may be shared across subtests
// because every subtest uses fresh identifiers.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)

	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, s) })
	t.Run("DuplicateTaskConflicts", func(t *testing.T) { testDuplicateTask(t, s) })
	t.Run("StaleVersionConflicts", func(t *testing.T) { testStaleVersion(t, s) })
	t.Run("ConcurrentCreateConflicts", func(t *testing.T) { testConcurrentCreate(t, s) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, s) })
	t.Run("Listing", func(t *testing.T) { testListing(t, s) })
}

func uid(prefix string) string { return prefix + "-" + uuid.New().String() }

func agg(userID, day string, productive, total int, cats map[string]int, version int64) *model.DayAggregate {
	return &model.DayAggregate{
		UserID:         userID,
		Date:           day,
		ProductiveTime: productive,
		TotalTime:      total,
		Categories:     cats,
		LastUpdated:    time.Now().UTC().Truncate(time.Microsecond),
		Version:        version,
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uid("u")

	_, err := s.Users().Get(ctx, userID)
	require.True(t, errors.Is(err, model.ErrNotFound), "expected not found, got %v", err)

	created, err := s.Users().Create(ctx, &model.User{UserID: userID, DisplayName: "Ada", Email: userID + "@example.test"})
	require.NoError(t, err)
	assert.False(t, created.CreationTime.IsZero())

	got, err := s.Users().Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, userID+"@example.test", got.Email)

	_, err = s.Users().Create(ctx, &model.User{UserID: userID, DisplayName: "Other"})
	require.True(t, errors.Is(err, model.ErrConflict), "expected conflict on duplicate user, got %v", err)
}

func testCreateAndRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, taskID, day := uid("u"), uid("t"), "01-05-2025"

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Task(ctx, taskID)
	require.True(t, errors.Is(err, model.ErrNotFound), "task lookup: %v", err)
	_, err = tx.Aggregate(ctx, model.KindDaily, userID, day)
	require.True(t, errors.Is(err, model.ErrNotFound), "aggregate lookup: %v", err)

	cats := map[string]int{"vscode": 6, "chrome": 4}
	tx.PutAggregate(model.KindDaily, agg(userID, day, 6, 10, cats, 0))
	tx.PutAggregate(model.KindHistory, agg(userID, day, 6, 10, cats, 0))
	tx.PutTask(&model.ProcessedTask{
		TaskID: taskID, UserID: userID, ProcessedAt: time.Now().UTC(),
		TotalTime: 10, ProductiveTime: 6, Categories: cats, Timestamp: "2025-05-01T09:00:00Z",
	})
	require.NoError(t, tx.Commit(ctx))

	for _, aggs := range []store.Aggregates{s.Daily(), s.History()} {
		got, err := aggs.Get(ctx, userID, day)
		require.NoError(t, err)
		assert.Equal(t, 6, got.ProductiveTime)
		assert.Equal(t, 10, got.TotalTime)
		assert.Equal(t, cats, got.Categories)
		assert.Greater(t, got.Version, int64(0))
		assert.WithinDuration(t, time.Now(), got.LastUpdated, time.Minute)
	}

	task, err := s.Tasks().Get(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, userID, task.UserID)
	assert.Equal(t, 10, task.TotalTime)
	assert.Equal(t, 6, task.ProductiveTime)
	assert.Equal(t, "2025-05-01T09:00:00Z", task.Timestamp)

	// Update in place through a second transaction.
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	cur, err := tx.Aggregate(ctx, model.KindDaily, userID, day)
	require.NoError(t, err)
	cur.TotalTime += 5
	cur.Categories = model.MergeCategories(cur.Categories, map[string]int{"slack": 5})
	tx.PutAggregate(model.KindDaily, cur)
	require.NoError(t, tx.Commit(ctx))

	got, err := s.Daily().Get(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, 15, got.TotalTime)
	assert.Equal(t, map[string]int{"vscode": 6, "chrome": 4, "slack": 5}, got.Categories)
	assert.Greater(t, got.Version, cur.Version)
}

func testDuplicateTask(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, taskID := uid("u"), uid("t")

	for i := 0; i < 2; i++ {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		tx.PutTask(&model.ProcessedTask{TaskID: taskID, UserID: userID, ProcessedAt: time.Now().UTC()})
		err = tx.Commit(ctx)
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrConflict), "expected conflict, got %v", err)
	}
}

func testStaleVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, day := uid("u"), "02-05-2025"

	seed, err := s.Begin(ctx)
	require.NoError(t, err)
	seed.PutAggregate(model.KindDaily, agg(userID, day, 1, 1, nil, 0))
	require.NoError(t, seed.Commit(ctx))

	a, err := s.Begin(ctx)
	require.NoError(t, err)
	aRead, err := a.Aggregate(ctx, model.KindDaily, userID, day)
	require.NoError(t, err)

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	bRead, err := b.Aggregate(ctx, model.KindDaily, userID, day)
	require.NoError(t, err)
	bRead.TotalTime += 2
	b.PutAggregate(model.KindDaily, bRead)
	require.NoError(t, b.Commit(ctx))

	aRead.TotalTime += 3
	a.PutAggregate(model.KindDaily, aRead)
	err = a.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict), "expected conflict, got %v", err)

	got, err := s.Daily().Get(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTime)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, day := uid("u"), "03-05-2025"

	a, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = a.Aggregate(ctx, model.KindHistory, userID, day)
	require.True(t, errors.Is(err, model.ErrNotFound))

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = b.Aggregate(ctx, model.KindHistory, userID, day)
	require.True(t, errors.Is(err, model.ErrNotFound))

	b.PutAggregate(model.KindHistory, agg(userID, day, 2, 2, nil, 0))
	require.NoError(t, b.Commit(ctx))

	a.PutAggregate(model.KindHistory, agg(userID, day, 7, 7, nil, 0))
	err = a.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict), "expected conflict, got %v", err)

	got, err := s.History().Get(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalTime)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, taskID, day := uid("u"), uid("t"), "04-05-2025"

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	tx.PutAggregate(model.KindDaily, agg(userID, day, 1, 1, nil, 0))
	tx.PutTask(&model.ProcessedTask{TaskID: taskID, UserID: userID, ProcessedAt: time.Now().UTC()})
	tx.Rollback()

	_, err = s.Daily().Get(ctx, userID, day)
	assert.True(t, errors.Is(err, model.ErrNotFound), "daily after rollback: %v", err)
	_, err = s.Tasks().Get(ctx, taskID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "task after rollback: %v", err)
}

func testListing(t *testing.T, s store.Store) {
	ctx := context.Background()
	prefix := uid("l")
	day, other := "05-05-2025", "06-05-2025"
	ids := []string{prefix + "-c", prefix + "-a", prefix + "-b"}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i, id := range ids {
		tx.PutAggregate(model.KindDaily, agg(id, day, i, 10, map[string]int{"code": i}, 0))
	}
	tx.PutAggregate(model.KindDaily, agg(ids[1], other, 9, 9, nil, 0))
	require.NoError(t, tx.Commit(ctx))

	all, err := s.Daily().ListByDay(ctx, day)
	require.NoError(t, err)
	var mine []string
	for _, a := range all {
		assert.Equal(t, day, a.Date)
		if strings.HasPrefix(a.UserID, prefix) {
			mine = append(mine, a.UserID)
		}
	}
	assert.Equal(t, []string{prefix + "-a", prefix + "-b", prefix + "-c"}, mine)

	hist, err := s.History().ListByDay(ctx, day)
	require.NoError(t, err)
	for _, a := range hist {
		assert.False(t, strings.HasPrefix(a.UserID, prefix), "daily writes must not leak into history")
	}

	recs, err := s.Daily().ListForUser(ctx, ids[1], []string{day, other, "07-05-2025"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	got := map[string]int{}
	for _, r := range recs {
		got[r.Date] = r.TotalTime
	}
	assert.Equal(t, map[string]int{day: 10, other: 9}, got)

	none, err := s.Daily().ListForUser(ctx, ids[1], nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
