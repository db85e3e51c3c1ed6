package domain

import "context"

// Probe queries one external tool and yields normalized records.
type Probe interface {
	// Vendor identifies the backend for logs and metrics.
	Vendor() Vendor
	// Probe runs the tool and parses its output. An empty result is never
	// returned together with a nil error.
	Probe(ctx context.Context) ([]GPUInfo, error)
}

// Acquisition is the result of one successful pass over the probe chain.
type Acquisition struct {
	GPUs   []GPUInfo
	Source Vendor
}

// Acquirer produces GPU records from whatever backends are available.
type Acquirer interface {
	Acquire(ctx context.Context) (Acquisition, error)
}
