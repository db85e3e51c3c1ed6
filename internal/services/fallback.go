package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
	"github.com/worldland/gpumon/internal/logging"
	"github.com/worldland/gpumon/internal/metrics"
)

// Coordinator tries probes in priority order and returns the first non-empty result.
type Coordinator struct {
	mu     sync.RWMutex
	probes []domain.Probe
	logger *slog.Logger
}

// NewCoordinator creates a coordinator over probes, which must already be in priority order.
func NewCoordinator(probes []domain.Probe, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		probes: append([]domain.Probe(nil), probes...),
		logger: logging.OrDefault(logger),
	}
}

// Probes returns the configured chain.
func (c *Coordinator) Probes() []domain.Probe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Probe(nil), c.probes...)
}

// SetProbes replaces the chain. An acquisition already running finishes on
// the chain it started with.
func (c *Coordinator) SetProbes(probes []domain.Probe) {
	c.mu.Lock()
	c.probes = append([]domain.Probe(nil), probes...)
	c.mu.Unlock()
}

// Acquire runs the chain. Later probes are not attempted once one succeeds.
// Individual probe failures are logged at trace level only; if every probe
// fails the result is a single NO_GPU_DETECTED error joining their causes.
func (c *Coordinator) Acquire(ctx context.Context) (domain.Acquisition, error) {
	probes := c.Probes()
	var failures []error
	details := make(map[string]any, len(probes))

	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return domain.Acquisition{}, apperrors.Wrap(apperrors.ContextCode(err), "acquisition abandoned", err)
		}

		start := time.Now()
		gpus, err := p.Probe(ctx)
		if err == nil && len(gpus) == 0 {
			err = apperrors.New(apperrors.ErrCodeParseFailure, "probe returned no devices")
		}
		elapsed := time.Since(start)
		metrics.ObserveProbe(p.Vendor(), err, elapsed)

		if err != nil {
			c.logger.Log(ctx, logging.LevelTrace, "probe failed",
				"vendor", p.Vendor(),
				"code", apperrors.CodeOf(err),
				"error", err,
				"duration", elapsed.String(),
			)
			failures = append(failures, err)
			details[string(p.Vendor())] = err.Error()
			continue
		}

		c.logger.Debug("probe succeeded", "vendor", p.Vendor(), "gpus", len(gpus), "duration", elapsed.String())
		return domain.Acquisition{GPUs: gpus, Source: p.Vendor()}, nil
	}

	return domain.Acquisition{}, apperrors.WrapWithContext(apperrors.ErrCodeNoGPUDetected,
		"no GPU detected by any probe", errors.Join(failures...), details)
}

var _ domain.Acquirer = (*Coordinator)(nil)
