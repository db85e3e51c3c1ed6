package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/worldland/gpumon/internal/api"
	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// DaemonClient wraps the local gpumon API used by the CLI commands.
type DaemonClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDaemonClient creates a client for addr, given as host:port or a URL.
func NewDaemonClient(addr string) *DaemonClient {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &DaemonClient{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: defaults.HTTPClientTimeout,
		},
	}
}

// GetSnapshot returns the daemon's current snapshot
func (c *DaemonClient) GetSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.doJSON(ctx, http.MethodGet, "/v1/gpu/snapshot", nil, &snap)
	return snap, err
}

// Refresh asks the daemon for an immediate acquisition
func (c *DaemonClient) Refresh(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.doJSON(ctx, http.MethodPost, "/v1/gpu/refresh", nil, &snap)
	return snap, err
}

// Toggle flips scheduled monitoring and returns the new state
func (c *DaemonClient) Toggle(ctx context.Context) (bool, error) {
	var resp api.ToggleResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/gpu/toggle", nil, &resp)
	return resp.Enabled, err
}

// SetInterval restarts the daemon's scheduler with a new period
func (c *DaemonClient) SetInterval(ctx context.Context, ms int) (api.IntervalResponse, error) {
	var resp api.IntervalResponse
	err := c.doJSON(ctx, http.MethodPut, "/v1/config/interval", api.IntervalRequest{RefreshIntervalMS: ms}, &resp)
	return resp, err
}

func (c *DaemonClient) doJSON(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doRequest(req, result)
}

func (c *DaemonClient) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeUnavailable, "gpumon daemon not reachable at "+c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return apperrors.New(apperrors.ErrorCode(apiErr.Code), apiErr.Error)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
