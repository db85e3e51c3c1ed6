package domain

import "time"

// Snapshot is the latest published telemetry plus monitoring state.
// Values are replaced whole and never mutated after publication.
type Snapshot struct {
	GPUs       []GPUInfo `json:"gpus" yaml:"gpus"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	Source     Vendor    `json:"source,omitempty" yaml:"source,omitempty"`
	Active     bool      `json:"active" yaml:"active"`

	LastError     string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastErrorCode string    `json:"last_error_code,omitempty" yaml:"last_error_code,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitzero" yaml:"last_error_at,omitempty"`

	// Sequence increases by one on every replace.
	Sequence uint64 `json:"sequence" yaml:"sequence"`
}

// Empty reports whether no telemetry has been captured yet.
func (s Snapshot) Empty() bool { return len(s.GPUs) == 0 }

// Primary returns the first GPU, which status lines summarize.
func (s Snapshot) Primary() (GPUInfo, bool) {
	if len(s.GPUs) == 0 {
		return GPUInfo{}, false
	}
	return s.GPUs[0], true
}

// Failing reports whether the most recent acquisition failed.
func (s Snapshot) Failing() bool { return s.LastError != "" }

// Age returns how long ago the telemetry was captured, or 0 if never.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CapturedAt)
}
