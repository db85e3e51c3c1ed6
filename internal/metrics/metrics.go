// Package metrics exposes GPU telemetry and acquisition health as Prometheus metrics.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/worldland/gpumon/internal/domain"
)

// Probe and tick results used as label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	gpuLabels = []string{"index", "name", "source"}

	gpuUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpumon_gpu_utilization_percent",
		Help: "GPU utilization from the latest snapshot",
	}, gpuLabels)

	gpuTemperature = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpumon_gpu_temperature_celsius",
		Help: "GPU temperature from the latest snapshot, 0 when not reported",
	}, gpuLabels)

	gpuMemoryUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpumon_gpu_memory_used_megabytes",
		Help: "GPU memory in use from the latest snapshot",
	}, gpuLabels)

	gpuMemoryTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpumon_gpu_memory_total_megabytes",
		Help: "GPU memory capacity from the latest snapshot, 0 when unknown",
	}, gpuLabels)

	gpuPower = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpumon_gpu_power_watts",
		Help: "GPU power draw from the latest snapshot, 0 when not reported",
	}, gpuLabels)

	monitoringActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpumon_monitoring_active",
		Help: "1 when scheduled polling is enabled",
	})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpumon_last_success_timestamp_seconds",
		Help: "Unix time of the last successful acquisition",
	})

	probeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpumon_probe_attempts_total",
		Help: "Probe invocations by vendor and result",
	}, []string{"vendor", "result"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpumon_probe_duration_seconds",
		Help:    "Probe invocation latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"vendor"})

	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpumon_acquisitions_total",
		Help: "Acquisitions by trigger (tick, refresh) and result",
	}, []string{"trigger", "result"})

	hubHeartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpumon_hub_heartbeats_total",
		Help: "Heartbeats sent to the hub by result",
	}, []string{"result"})

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpumon_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpumon_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpumon_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed",
	})

	rateLimitRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpumon_rate_limit_rejects_total",
		Help: "Total number of requests rejected due to rate limiting",
	})

	panicRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpumon_panic_recoveries_total",
		Help: "Total number of panics recovered in HTTP handlers",
	})
)

// ObserveProbe records one probe invocation.
func ObserveProbe(vendor domain.Vendor, err error, elapsed time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	probeAttempts.WithLabelValues(string(vendor), result).Inc()
	probeDuration.WithLabelValues(string(vendor)).Observe(elapsed.Seconds())
}

// ObserveAcquisition records one acquisition attempt by trigger.
func ObserveAcquisition(trigger, result string) {
	acquisitions.WithLabelValues(trigger, result).Inc()
}

// ObserveHeartbeat records one hub heartbeat.
func ObserveHeartbeat(err error) {
	if err != nil {
		hubHeartbeats.WithLabelValues(ResultFailure).Inc()
		return
	}
	hubHeartbeats.WithLabelValues(ResultSuccess).Inc()
}

// ObserveSnapshot mirrors a snapshot into the GPU gauges. Series for GPUs that
// disappeared are dropped.
func ObserveSnapshot(snap domain.Snapshot) {
	if snap.Active {
		monitoringActive.Set(1)
	} else {
		monitoringActive.Set(0)
	}
	if !snap.CapturedAt.IsZero() {
		lastSuccess.Set(float64(snap.CapturedAt.Unix()))
	}

	for _, g := range []*prometheus.GaugeVec{gpuUsage, gpuTemperature, gpuMemoryUsed, gpuMemoryTotal, gpuPower} {
		g.Reset()
	}
	for i, gpu := range snap.GPUs {
		labels := prometheus.Labels{"index": strconv.Itoa(i), "name": gpu.Name, "source": string(snap.Source)}
		gpuUsage.With(labels).Set(gpu.Usage)
		gpuTemperature.With(labels).Set(gpu.Temperature)
		gpuMemoryUsed.With(labels).Set(gpu.MemoryUsed)
		gpuMemoryTotal.With(labels).Set(gpu.MemoryTotal)
		gpuPower.With(labels).Set(gpu.PowerUsage)
	}
}

// Follow mirrors every snapshot received on updates until ctx is done or
// updates is closed.
func Follow(ctx context.Context, updates <-chan domain.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			ObserveSnapshot(snap)
		}
	}
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	httpRequestsInFlight.Inc()
	return httpRequestsInFlight.Dec
}

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveRateLimitReject counts a request refused by the rate limiter.
func ObserveRateLimitReject() { rateLimitRejects.Inc() }

// ObservePanicRecovery counts a panic recovered in an HTTP handler.
func ObservePanicRecovery() { panicRecoveries.Inc() }
