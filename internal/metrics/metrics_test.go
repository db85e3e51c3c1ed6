package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/worldland/gpumon/internal/domain"
)

func TestObserveSnapshot_SetsAndDropsSeries(t *testing.T) {
	ObserveSnapshot(domain.Snapshot{
		Active:     true,
		Source:     domain.VendorNVIDIA,
		CapturedAt: time.Unix(1700000000, 0),
		GPUs: []domain.GPUInfo{
			{Name: "RTX 4090", Usage: 45, Temperature: 67, MemoryUsed: 8192, MemoryTotal: 24576, PowerUsage: 320.5},
			{Name: "RTX 3090", Usage: 5},
		},
	})

	assert.Equal(t, 45.0, testutil.ToFloat64(gpuUsage.WithLabelValues("0", "RTX 4090", "nvidia")))
	assert.Equal(t, 320.5, testutil.ToFloat64(gpuPower.WithLabelValues("0", "RTX 4090", "nvidia")))
	assert.Equal(t, 1.0, testutil.ToFloat64(monitoringActive))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(lastSuccess))
	assert.Equal(t, 2, testutil.CollectAndCount(gpuUsage))

	ObserveSnapshot(domain.Snapshot{
		Source: domain.VendorSystem,
		GPUs:   []domain.GPUInfo{{Name: "System GPU"}},
	})

	assert.Equal(t, 1, testutil.CollectAndCount(gpuUsage))
	assert.Equal(t, 0.0, testutil.ToFloat64(monitoringActive))
}

func TestObserveProbe_CountsByResult(t *testing.T) {
	before := testutil.ToFloat64(probeAttempts.WithLabelValues("amd", ResultFailure))

	ObserveProbe(domain.VendorAMD, errors.New("missing"), 10*time.Millisecond)
	ObserveProbe(domain.VendorAMD, nil, 10*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(probeAttempts.WithLabelValues("amd", ResultFailure)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(probeAttempts.WithLabelValues("amd", ResultSuccess)), 1.0)
}

func TestObserveHeartbeat(t *testing.T) {
	before := testutil.ToFloat64(hubHeartbeats.WithLabelValues(ResultSuccess))

	ObserveHeartbeat(nil)

	assert.Equal(t, before+1, testutil.ToFloat64(hubHeartbeats.WithLabelValues(ResultSuccess)))
}

func TestFollow_MirrorsUntilClosed(t *testing.T) {
	updates := make(chan domain.Snapshot, 1)
	done := make(chan struct{})
	go func() {
		Follow(context.Background(), updates)
		close(done)
	}()

	updates <- domain.Snapshot{Active: true, Source: domain.VendorAMD, GPUs: []domain.GPUInfo{{Name: "AMD GPU", Usage: 12}}}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(gpuUsage.WithLabelValues("0", "AMD GPU", "amd")) == 12
	}, time.Second, 5*time.Millisecond)

	close(updates)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after close")
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/gpu/snapshot", "200"))

	ObserveHTTPRequest("GET", "/v1/gpu/snapshot", 200, time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/gpu/snapshot", "200")))
}

func TestTrackInFlight(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsInFlight)

	done := TrackInFlight()
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsInFlight))
	done()

	assert.Equal(t, before, testutil.ToFloat64(httpRequestsInFlight))
}
