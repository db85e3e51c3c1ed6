package probe

import (
	"fmt"

	"github.com/worldland/gpumon/internal/adapters/toolexec"
	"github.com/worldland/gpumon/internal/domain"
)

// DefaultChain returns every built-in probe in priority order: nvidia, amd, system.
func DefaultChain(runner toolexec.Runner) []domain.Probe {
	ds := Descriptors()
	chain := make([]domain.Probe, 0, len(ds))
	for _, d := range ds {
		chain = append(chain, New(d, runner))
	}
	return chain
}

// Chain returns the built-in probes restricted to the named vendors. The
// priority order is kept regardless of the order of names. No names means
// all probes.
func Chain(runner toolexec.Runner, vendors []string) ([]domain.Probe, error) {
	if len(vendors) == 0 {
		return DefaultChain(runner), nil
	}

	want := make(map[domain.Vendor]bool, len(vendors))
	known := make(map[domain.Vendor]bool)
	for _, d := range Descriptors() {
		known[d.Vendor] = true
	}
	for _, v := range vendors {
		vendor := domain.Vendor(v)
		if !known[vendor] {
			return nil, fmt.Errorf("unknown probe %q", v)
		}
		want[vendor] = true
	}

	var chain []domain.Probe
	for _, d := range Descriptors() {
		if want[d.Vendor] {
			chain = append(chain, New(d, runner))
		}
	}
	return chain, nil
}
