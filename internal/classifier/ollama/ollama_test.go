package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tiny", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "vim")
		_ = json.NewEncoder(w).Encode(generateResponse{Model: "tiny", Response: "productive", Done: true})
	}))
	defer srv.Close()

	out, err := New(srv.URL, "tiny").Generate(context.Background(), "is vim productive?")
	require.NoError(t, err)
	assert.Equal(t, "productive", out)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "missing").Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	_, err := New("http://127.0.0.1:1", "tiny").Generate(context.Background(), "")
	require.Error(t, err)
}

func TestHealthPing(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tiny")
	require.NoError(t, c.HealthPing(context.Background()))
	up.Store(false)
	require.Error(t, c.HealthPing(context.Background()))
}
