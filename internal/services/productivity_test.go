package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

var fixedNow = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newProductivity(s store.Store, opts ...ProductivityOption) *ProductivityService {
	opts = append([]ProductivityOption{WithClock(clock), WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	return NewProductivityService(s, zerolog.Nop(), opts...)
}

// --- Fakes ---

// conflictStore fails every commit with a conflict and counts the attempts.
type conflictStore struct {
	store.Store
	commits atomic.Int32
	err     error
}

func (c *conflictStore) Begin(ctx context.Context) (store.Txn, error) {
	tx, err := c.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTxn{Txn: tx, parent: c}, nil
}

type failingTxn struct {
	store.Txn
	parent *conflictStore
}

func (f *failingTxn) Commit(context.Context) error {
	f.parent.commits.Add(1)
	return f.parent.err
}

// panicStore fails the test if the protocol touches the store.
type panicStore struct{ store.Store }

func (panicStore) Begin(context.Context) (store.Txn, error) { panic("store must not be touched") }

// --- Tests ---

func TestApplyUpdate_BasicAcceptThenDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newProductivity(s)
	day := daykey.For(fixedNow)

	u := &model.ProductivityUpdate{
		UserID: "u1", TaskID: "t1", TotalTime: 10, ProductiveTime: 6,
		Categories: map[string]int{"vscode": 6, "chrome": 4},
	}
	res, err := svc.ApplyUpdate(ctx, u)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	want := func() {
		for _, aggs := range []store.Aggregates{s.Daily(), s.History()} {
			got, err := aggs.Get(ctx, "u1", day)
			require.NoError(t, err)
			assert.Equal(t, 6, got.ProductiveTime)
			assert.Equal(t, 10, got.TotalTime)
			assert.Equal(t, map[string]int{"vscode": 6, "chrome": 4}, got.Categories)
			assert.Equal(t, fixedNow, got.LastUpdated)
		}
	}
	want()

	task, err := s.Tasks().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, 10, task.TotalTime)

	res, err = svc.ApplyUpdate(ctx, u)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonAlreadyProcessed, res.Reason)
	want()
}

func TestApplyUpdate_ConcurrentMerge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newProductivity(s)

	_, err := svc.ApplyUpdate(ctx, &model.ProductivityUpdate{UserID: "u1", TaskID: "t1", TotalTime: 10, ProductiveTime: 6})
	require.NoError(t, err)

	updates := []*model.ProductivityUpdate{
		{UserID: "u1", TaskID: "t2", TotalTime: 5, ProductiveTime: 5},
		{UserID: "u1", TaskID: "t3", TotalTime: 3, ProductiveTime: 1},
	}
	var wg sync.WaitGroup
	errs := make([]error, len(updates))
	for i, u := range updates {
		wg.Add(1)
		go func(i int, u *model.ProductivityUpdate) {
			defer wg.Done()
			res, err := svc.ApplyUpdate(ctx, u)
			if err == nil && !res.Accepted {
				err = fmt.Errorf("update %s not accepted: %s", u.TaskID, res.Reason)
			}
			errs[i] = err
		}(i, u)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Daily().Get(ctx, "u1", daykey.For(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, 12, got.ProductiveTime)
	assert.Equal(t, 18, got.TotalTime)
	for _, id := range []string{"t2", "t3"} {
		_, err := s.Tasks().Get(ctx, id)
		assert.NoError(t, err, id)
	}
}

func TestApplyUpdate_AdditivityUnderContention(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newProductivity(s, WithMaxAttempts(100), WithBackoff(0, 0))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &model.ProductivityUpdate{
				UserID: "u1", TaskID: fmt.Sprintf("task-%d", i),
				TotalTime: 2, ProductiveTime: 1,
				Categories: map[string]int{"code": 1, fmt.Sprintf("app-%d", i%2): 1},
			}
			_, err := svc.ApplyUpdate(ctx, u)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	day := daykey.For(fixedNow)
	for _, aggs := range []store.Aggregates{s.Daily(), s.History()} {
		got, err := aggs.Get(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 2*n, got.TotalTime)
		assert.Equal(t, n, got.ProductiveTime)
		assert.LessOrEqual(t, got.ProductiveTime, got.TotalTime)
		assert.Equal(t, map[string]int{"code": n, "app-0": n / 2, "app-1": n / 2}, got.Categories)
	}
}

func TestApplyUpdate_ConcurrentDuplicatesAcceptedOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newProductivity(s, WithMaxAttempts(20))

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ApplyUpdate(ctx, &model.ProductivityUpdate{UserID: "u1", TaskID: "same", TotalTime: 4, ProductiveTime: 2})
			if assert.NoError(t, err) && res.Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	got, err := s.Daily().Get(ctx, "u1", daykey.For(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTime)
}

func TestApplyUpdate_RetriesExhausted(t *testing.T) {
	cs := &conflictStore{Store: memory.New(), err: fmt.Errorf("%w: lost race", model.ErrConflict)}
	svc := newProductivity(cs, WithMaxAttempts(3))

	_, err := svc.ApplyUpdate(context.Background(), &model.ProductivityUpdate{UserID: "u1", TaskID: "t1", TotalTime: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRetriesExhausted), "got %v", err)
	assert.Equal(t, int32(3), cs.commits.Load())

	_, err = cs.Daily().Get(context.Background(), "u1", daykey.For(fixedNow))
	assert.True(t, model.IsNotFound(err))
}

func TestApplyUpdate_NonConflictErrorNotRetried(t *testing.T) {
	boom := errors.New("disk on fire")
	cs := &conflictStore{Store: memory.New(), err: boom}
	svc := newProductivity(cs, WithMaxAttempts(5))

	_, err := svc.ApplyUpdate(context.Background(), &model.ProductivityUpdate{UserID: "u1", TaskID: "t1", TotalTime: 1})
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, model.ErrRetriesExhausted))
	assert.Equal(t, int32(1), cs.commits.Load())
}

func TestApplyUpdate_ValidationBeforeStoreAccess(t *testing.T) {
	svc := newProductivity(panicStore{})
	cases := []struct {
		name string
		u    *model.ProductivityUpdate
	}{
		{"nil", nil},
		{"missing user", &model.ProductivityUpdate{TaskID: "t", TotalTime: 1}},
		{"missing task", &model.ProductivityUpdate{UserID: "u", TotalTime: 1}},
		{"negative total", &model.ProductivityUpdate{UserID: "u", TaskID: "t", TotalTime: -1}},
		{"productive exceeds total", &model.ProductivityUpdate{UserID: "u", TaskID: "t", TotalTime: 1, ProductiveTime: 2}},
		{"negative category", &model.ProductivityUpdate{UserID: "u", TaskID: "t", TotalTime: 1, Categories: map[string]int{"x": -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyUpdate(context.Background(), tc.u)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err), "got %v", err)
		})
	}
}

func TestApplyUpdate_DayKeyIsUTC(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	// 01:30 on 2 May in UTC+05:30 is still 1 May in UTC.
	ist := time.FixedZone("IST", 5*60*60+30*60)
	local := time.Date(2025, time.May, 2, 1, 30, 0, 0, ist)
	svc := NewProductivityService(s, zerolog.Nop(), WithClock(func() time.Time { return local }))

	_, err := svc.ApplyUpdate(ctx, &model.ProductivityUpdate{UserID: "u1", TaskID: "t1", TotalTime: 1})
	require.NoError(t, err)
	_, err = s.Daily().Get(ctx, "u1", "01-05-2025")
	assert.NoError(t, err)
}
