package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/storetest"
)

func makeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "racoon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Compliance(t *testing.T) {
	storetest.Run(t, makeStore)
}

func TestSQLiteStore_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "racoon.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	tx.PutAggregate(model.KindDaily, &model.DayAggregate{UserID: "u1", Date: "01-05-2025", TotalTime: 4, LastUpdated: time.Now()})
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Daily().Get(ctx, "u1", "01-05-2025")
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTime)
	assert.Equal(t, map[string]int{}, got.Categories)
}

func TestSQLiteStore_ConcurrentCreateSingleWinner(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				results <- err
				return
			}
			tx.PutAggregate(model.KindDaily, &model.DayAggregate{UserID: "u1", Date: "01-05-2025", TotalTime: 1, LastUpdated: time.Now()})
			results <- tx.Commit(ctx)
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, model.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
}
