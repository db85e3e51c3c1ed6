// Package probe implements the vendor backends of the acquisition chain.
// Each backend is a static Descriptor run through a shared CommandProbe.
package probe

import (
	"context"
	"runtime"
	"sort"
	"strings"

	"github.com/worldland/gpumon/internal/adapters/toolexec"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
	"github.com/worldland/gpumon/internal/parser"
)

// Descriptor is the static definition of one backend. Lower Priority runs first.
type Descriptor struct {
	Vendor    domain.Vendor
	Priority  int
	Command   string
	Args      []string
	Parse     parser.Func
	Supported bool
}

// CommandLine renders the invocation for logs and the doctor command.
func (d Descriptor) CommandLine() string {
	return strings.TrimSpace(d.Command + " " + strings.Join(d.Args, " "))
}

// NvidiaDescriptor queries nvidia-smi for the fixed field set as header-free, unit-free CSV.
func NvidiaDescriptor() Descriptor {
	return Descriptor{
		Vendor:   domain.VendorNVIDIA,
		Priority: 10,
		Command:  "nvidia-smi",
		Args: []string{
			"--query-gpu=" + strings.Join(parser.NvidiaQueryFields, ","),
			"--format=csv,noheader,nounits",
		},
		Parse:     parser.ParseNvidiaCSV,
		Supported: true,
	}
}

// ROCmDescriptor asks rocm-smi for usage, temperature, VRAM and power.
func ROCmDescriptor() Descriptor {
	return Descriptor{
		Vendor:    domain.VendorAMD,
		Priority:  20,
		Command:   "rocm-smi",
		Args:      []string{"--showuse", "--showtemp", "--showmeminfo", "vram", "--showpower"},
		Parse:     parser.ParseROCm,
		Supported: true,
	}
}

// SystemDescriptor lists display-class hardware with lshw. It only runs on Linux.
func SystemDescriptor() Descriptor {
	return Descriptor{
		Vendor:    domain.VendorSystem,
		Priority:  30,
		Command:   "lshw",
		Args:      []string{"-c", "display"},
		Parse:     parser.ParseLshw,
		Supported: systemProbeSupported,
	}
}

// Descriptors returns the built-in backends in priority order.
func Descriptors() []Descriptor {
	ds := []Descriptor{SystemDescriptor(), ROCmDescriptor(), NvidiaDescriptor()}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Priority < ds[j].Priority })
	return ds
}

// CommandProbe runs a Descriptor's command and parses its output.
type CommandProbe struct {
	desc   Descriptor
	runner toolexec.Runner
}

// New creates a probe for desc that invokes tools through runner.
func New(desc Descriptor, runner toolexec.Runner) *CommandProbe {
	return &CommandProbe{desc: desc, runner: runner}
}

// Descriptor returns the probe's static definition.
func (p *CommandProbe) Descriptor() Descriptor { return p.desc }

func (p *CommandProbe) Vendor() domain.Vendor { return p.desc.Vendor }

// Probe runs the tool and parses its output. An unsupported platform is
// reported as TOOL_UNAVAILABLE; an empty parse result as PARSE_FAILURE.
func (p *CommandProbe) Probe(ctx context.Context) ([]domain.GPUInfo, error) {
	if !p.desc.Supported {
		return nil, apperrors.NewWithContext(apperrors.ErrCodeToolUnavailable,
			p.desc.Command+" is not supported on this platform",
			map[string]any{"goos": runtime.GOOS})
	}

	out, err := p.runner.Run(ctx, p.desc.Command, p.desc.Args...)
	if err != nil {
		return nil, err
	}

	gpus, err := p.desc.Parse(out)
	if err != nil {
		return nil, err
	}
	if len(gpus) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeParseFailure, p.desc.Command+" returned no devices")
	}
	return gpus, nil
}

var _ domain.Probe = (*CommandProbe)(nil)
