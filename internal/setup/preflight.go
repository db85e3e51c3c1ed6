// Package setup checks the host for the tools the probe chain depends on.
package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/worldland/gpumon/internal/adapters/probe"
	"github.com/worldland/gpumon/internal/adapters/toolexec"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// versionArgs are the arguments that print a tool's version.
var versionArgs = map[string][]string{
	"nvidia-smi": {"--query-gpu=driver_version", "--format=csv,noheader"},
	"rocm-smi":   {"--showdriverversion"},
	"lshw":       {"-version"},
}

// ComponentStatus is the state of one backend on this host
type ComponentStatus struct {
	Vendor    domain.Vendor
	Tool      string
	Supported bool
	Installed bool
	Version   string
	GPUs      []domain.GPUInfo
	Err       error
}

// Usable reports whether the backend produced telemetry.
func (c ComponentStatus) Usable() bool {
	return c.Err == nil && len(c.GPUs) > 0
}

// PreflightResult contains the results of the preflight check
type PreflightResult struct {
	Components []ComponentStatus
	OSId       string // "ubuntu", "debian", etc.
	OSVersion  string // "22.04", "12", etc.
}

// Selected returns the backend the fallback chain would use, in priority order.
func (r *PreflightResult) Selected() (ComponentStatus, bool) {
	for _, c := range r.Components {
		if c.Usable() {
			return c, true
		}
	}
	return ComponentStatus{}, false
}

// Preflight runs every probe backend once and records what it found.
type Preflight struct {
	Runner   toolexec.Runner
	LookPath func(file string) (string, error)
	// OSRelease is read for the distribution; /etc/os-release when empty.
	OSRelease string
}

// NewPreflight creates a preflight that runs tools through runner.
func NewPreflight(runner toolexec.Runner) *Preflight {
	return &Preflight{Runner: runner, LookPath: exec.LookPath, OSRelease: "/etc/os-release"}
}

// Run checks every built-in backend in priority order
func (p *Preflight) Run(ctx context.Context) *PreflightResult {
	result := &PreflightResult{}
	result.OSId, result.OSVersion = detectOS(p.OSRelease)

	for _, desc := range probe.Descriptors() {
		result.Components = append(result.Components, p.checkComponent(ctx, desc))
	}
	return result
}

func (p *Preflight) checkComponent(ctx context.Context, desc probe.Descriptor) ComponentStatus {
	cs := ComponentStatus{Vendor: desc.Vendor, Tool: desc.Command, Supported: desc.Supported}
	if !desc.Supported {
		cs.Err = apperrors.New(apperrors.ErrCodeToolUnavailable, "not supported on this platform")
		return cs
	}

	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(desc.Command); err != nil {
		cs.Err = apperrors.Wrap(apperrors.ErrCodeToolUnavailable, desc.Command+" not found", err)
		return cs
	}
	cs.Installed = true

	if args, ok := versionArgs[desc.Command]; ok {
		if out, err := p.Runner.Run(ctx, desc.Command, args...); err == nil {
			cs.Version = firstLine(out, 60)
		}
	}
	if cs.Version == "" {
		// Binary exists but version command failed; still installed
		cs.Version = "(version unknown)"
	}

	cs.GPUs, cs.Err = probe.New(desc, p.Runner).Probe(ctx)
	return cs
}

// PrintStatus prints the preflight check results
func (r *PreflightResult) PrintStatus(w io.Writer) {
	for _, c := range r.Components {
		switch {
		case c.Usable():
			fmt.Fprintf(w, "  ✓ %-8s %s: %s, %d GPU(s), first %q\n", c.Vendor, c.Tool, c.Version, len(c.GPUs), c.GPUs[0].Name)
		case c.Installed:
			fmt.Fprintf(w, "  ! %-8s %s: %s, probe failed: %v\n", c.Vendor, c.Tool, c.Version, c.Err)
		case !c.Supported:
			fmt.Fprintf(w, "  - %-8s %s: not supported on this platform\n", c.Vendor, c.Tool)
		default:
			fmt.Fprintf(w, "  ✗ %-8s %s: NOT INSTALLED\n", c.Vendor, c.Tool)
		}
	}
	if r.OSId != "" {
		fmt.Fprintf(w, "  OS: %s %s\n", r.OSId, r.OSVersion)
	}
	if sel, ok := r.Selected(); ok {
		fmt.Fprintf(w, "  Selected backend: %s\n", sel.Vendor)
	} else {
		fmt.Fprintln(w, "  Selected backend: none (no GPU detected)")
	}
}

func firstLine(out []byte, max int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if len(line) > max {
		line = line[:max]
	}
	return line
}

func detectOS(path string) (id, version string) {
	if path == "" {
		return "", ""
	}
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ID=") {
			id = strings.Trim(strings.TrimPrefix(line, "ID="), "\"")
		}
		if strings.HasPrefix(line, "VERSION_ID=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), "\"")
		}
	}
	return id, version
}
