package probe

import (
	"context"
	"sync/atomic"

	"github.com/worldland/gpumon/internal/domain"
)

// MockProbe serves fixed GPU records. It backs tests and the --mock serve mode.
type MockProbe struct {
	Tag  domain.Vendor
	GPUs []domain.GPUInfo
	Err  error
	// ProbeFn overrides GPUs and Err when set.
	ProbeFn func(ctx context.Context) ([]domain.GPUInfo, error)

	calls atomic.Int64
}

func NewMockProbe(gpus ...domain.GPUInfo) *MockProbe {
	return &MockProbe{Tag: domain.VendorMock, GPUs: gpus}
}

// NewFailingProbe returns a mock that always fails with err.
func NewFailingProbe(vendor domain.Vendor, err error) *MockProbe {
	return &MockProbe{Tag: vendor, Err: err}
}

func (p *MockProbe) Vendor() domain.Vendor {
	return p.Tag
}

func (p *MockProbe) Probe(ctx context.Context) ([]domain.GPUInfo, error) {
	p.calls.Add(1)
	if p.ProbeFn != nil {
		return p.ProbeFn(ctx)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]domain.GPUInfo(nil), p.GPUs...), nil
}

// Calls returns how many times Probe ran.
func (p *MockProbe) Calls() int {
	return int(p.calls.Load())
}

// DemoGPU is the record --mock mode reports.
func DemoGPU() domain.GPUInfo {
	return domain.GPUInfo{
		Name:          "Mock GPU",
		Usage:         50,
		Temperature:   60,
		MemoryUsed:    8000,
		MemoryTotal:   24000,
		PowerUsage:    180,
		DriverVersion: "535.129.03",
	}
}

// Compile-time interface check
var _ domain.Probe = (*MockProbe)(nil)
