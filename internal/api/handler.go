package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// ToggleResponse is returned by POST /v1/gpu/toggle
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// IntervalRequest is the JSON body for PUT /v1/config/interval
type IntervalRequest struct {
	RefreshIntervalMS int `json:"refresh_interval_ms"`
}

// IntervalResponse reports the interval now in effect
type IntervalResponse struct {
	RefreshIntervalMS int64 `json:"refresh_interval_ms"`
	Enabled           bool  `json:"enabled"`
}

// HealthResponse is returned by /health and /ready
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// ErrorResponse for error cases
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SchedulerInterface defines the scheduler operations the API drives
type SchedulerInterface interface {
	Refresh(ctx context.Context) (domain.Snapshot, error)
	Toggle() bool
	Restart(interval time.Duration)
	Enabled() bool
	Interval() time.Duration
}

// SnapshotSource returns the latest published snapshot
type SnapshotSource interface {
	Current() domain.Snapshot
}

// TelemetryHandler handles HTTP requests for GPU telemetry
type TelemetryHandler struct {
	scheduler SchedulerInterface
	snapshots SnapshotSource
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(scheduler SchedulerInterface, snapshots SnapshotSource) *TelemetryHandler {
	return &TelemetryHandler{
		scheduler: scheduler,
		snapshots: snapshots,
	}
}

// HandleSnapshot handles GET /v1/gpu/snapshot
func (h *TelemetryHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshots.Current())
}

// HandleRefresh handles POST /v1/gpu/refresh
func (h *TelemetryHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaults.RefreshHandlerTimeout)
	defer cancel()

	snap, err := h.scheduler.Refresh(ctx)
	if err != nil {
		code := apperrors.RootCode(err)
		writeError(w, r, HTTPStatus(code), err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleToggle handles POST /v1/gpu/toggle
func (h *TelemetryHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Enabled: h.scheduler.Toggle()})
}

// HandleInterval handles GET and PUT /v1/config/interval. PUT restarts the scheduler.
func (h *TelemetryHandler) HandleInterval(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req IntervalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body", apperrors.ErrCodeInvalidRequest)
			return
		}
		interval := time.Duration(req.RefreshIntervalMS) * time.Millisecond
		if interval < defaults.MinRefreshInterval {
			writeError(w, r, http.StatusBadRequest,
				fmt.Sprintf("refresh_interval_ms must be at least %d", defaults.MinRefreshInterval.Milliseconds()),
				apperrors.ErrCodeInvalidConfig)
			return
		}
		h.scheduler.Restart(interval)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, IntervalResponse{
		RefreshIntervalMS: h.scheduler.Interval().Milliseconds(),
		Enabled:           h.scheduler.Enabled(),
	})
}

// HandleHealth handles GET /health
func (h *TelemetryHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// HandleReady handles GET /ready. It reports not ready until a snapshot has
// been captured, and while the latest acquisition is failing.
func (h *TelemetryHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", apperrors.ErrCodeMethodNotAllowed)
		return
	}

	snap := h.snapshots.Current()
	switch {
	case snap.Failing():
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not_ready", Timestamp: time.Now(), Reason: snap.LastError,
		})
	case snap.CapturedAt.IsZero():
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not_ready", Timestamp: time.Now(), Reason: "no snapshot captured yet",
		})
	default:
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Timestamp: time.Now()})
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, r *http.Request, status int, message string, code apperrors.ErrorCode) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(code), RequestID: RequestID(r.Context())})
}

// statusClientClosedRequest is the non-standard status nginx logs when the
// client goes away before the response.
const statusClientClosedRequest = 499

// HTTPStatus maps an error code to the HTTP status the API answers with.
func HTTPStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case apperrors.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeNoGPUDetected, apperrors.ErrCodeUnavailable, apperrors.ErrCodeToolUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
