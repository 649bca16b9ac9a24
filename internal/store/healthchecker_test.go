package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/store"
	"github.com/KushagraAgarwal525/racoon/internal/store/memory"
)

func TestStoreHealthChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := memory.New()
	hc := store.NewStoreHealthChecker(s, zerolog.Nop(), 50*time.Millisecond)
	go hc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, hc.IsHealthy)

	_ = s.Close()
	waitTrue(t, func() bool { return !hc.IsHealthy() })
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
