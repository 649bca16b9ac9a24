package productivityservice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KushagraAgarwal525/racoon/internal/config"
	"github.com/KushagraAgarwal525/racoon/internal/health"
)

func TestCalculateStartupHealthTimeout(t *testing.T) {
	assert.Equal(t, 60, calculateStartupHealthTimeout(1))
	assert.Equal(t, 60, calculateStartupHealthTimeout(30))
	assert.Equal(t, 90, calculateStartupHealthTimeout(45))
}

func TestNewApp_ServesWithMemoryStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewForTesting()
	cfg.OllamaURL = "http://127.0.0.1:1" // unreachable; classification degrades to keywords
	app, err := NewApp(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, waitUntilHealthy(ctx, cfg, app.Health))

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{"userId": "u1", "taskId": "t1", "totalTime": 10, "productiveTime": 6})
	resp, err := http.Post(srv.URL+"/api/productivity/update", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	hresp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer hresp.Body.Close()
	var h struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "healthy", h.Components["store"])
}

func TestWaitUntilHealthy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// never started, so it stays unhealthy
	svcHealth := health.NewServiceHealthChecker(zerolog.Nop())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	err := waitUntilHealthy(ctx, config.NewForTesting(), svcHealth)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPServer_RequestsOutliveShutdownSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := newHTTPServer(ctx, config.NewForTesting(), http.NotFoundHandler())

	cancel()
	base := server.BaseContext(nil)
	assert.NoError(t, base.Err())
	select {
	case <-base.Done():
		t.Fatal("request base context cancelled with the signal context")
	default:
	}
}

func TestServer_InFlightRequestDrainsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		if r.Context().Err() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := newHTTPServer(ctx, config.NewForTesting(), handler)
	srv := httptest.NewUnstartedServer(handler)
	srv.Config = server
	srv.Start()
	defer srv.Close()

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get(srv.URL)
		if err != nil {
			respCh <- 0
			return
		}
		_ = resp.Body.Close()
		respCh <- resp.StatusCode
	}()
	<-started

	// signal arrives, then shutdown drains the request
	cancel()
	shutdownErr := make(chan error, 1)
	go func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		shutdownErr <- server.Shutdown(sctx)
	}()
	close(release)

	assert.Equal(t, http.StatusOK, <-respCh)
	assert.NoError(t, <-shutdownErr)
}
