package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldland/gpumon/internal/api"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

func TestDaemonClient_GetSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/gpu/snapshot", r.URL.Path)
		json.NewEncoder(w).Encode(activeSnapshot(rtx4090()))
	}))
	defer srv.Close()

	snap, err := NewDaemonClient(srv.URL).GetSnapshot(context.Background())

	require.NoError(t, err)
	require.Len(t, snap.GPUs, 1)
	assert.Equal(t, "RTX 4090", snap.GPUs[0].Name)
}

func TestDaemonClient_RefreshErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "all probes failed", Code: "NO_GPU_DETECTED"})
	}))
	defer srv.Close()

	_, err := NewDaemonClient(srv.URL).Refresh(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrNoGPUDetected)
}

func TestDaemonClient_Toggle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(api.ToggleResponse{Enabled: false})
	}))
	defer srv.Close()

	enabled, err := NewDaemonClient(srv.URL).Toggle(context.Background())

	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestDaemonClient_SetInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		var req api.IntervalRequest
		require.NoError(t, json.Unmarshal(body, &req))
		json.NewEncoder(w).Encode(api.IntervalResponse{RefreshIntervalMS: int64(req.RefreshIntervalMS), Enabled: true})
	}))
	defer srv.Close()

	resp, err := NewDaemonClient(srv.URL).SetInterval(context.Background(), 750)

	require.NoError(t, err)
	assert.Equal(t, int64(750), resp.RefreshIntervalMS)
}

func TestDaemonClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := NewDaemonClient(addr).GetSnapshot(context.Background())

	assert.Equal(t, apperrors.ErrCodeUnavailable, apperrors.CodeOf(err))
}

func TestNewDaemonClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9477", NewDaemonClient("127.0.0.1:9477").baseURL)
	assert.Equal(t, "https://gpu.local", NewDaemonClient("https://gpu.local/").baseURL)
}
