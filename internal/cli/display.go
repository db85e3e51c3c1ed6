package cli

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/domain"
)

// Status line texts for states without telemetry.
const (
	StatusOff         = "GPU: Off"
	StatusError       = "GPU: Error"
	StatusUnavailable = "GPU: Unavailable"
)

// StatusLine renders the one-line summary of the primary GPU. It returns ""
// when the status bar is hidden.
func StatusLine(snap domain.Snapshot, display config.DisplayConfig) string {
	if !display.ShowStatusBar {
		return ""
	}
	if !snap.Active {
		return StatusOff
	}
	if snap.Failing() {
		return StatusError
	}
	gpu, ok := snap.Primary()
	if !ok {
		return StatusUnavailable
	}

	var parts []string
	if display.ShowPercentage {
		parts = append(parts, fmt.Sprintf("%d%%", round(gpu.Usage)))
	}
	if display.ShowTemperature && gpu.HasTemperature() {
		parts = append(parts, fmt.Sprintf("%d°C", round(gpu.Temperature)))
	}
	if display.ShowMemoryUsage && gpu.HasMemory() {
		parts = append(parts, fmt.Sprintf("%.1f/%.1fGB", gpu.MemoryUsedGB(), gpu.MemoryTotalGB()))
	}
	if len(parts) == 0 {
		return gpu.Name
	}
	return gpu.Name + " " + strings.Join(parts, " | ")
}

func round(v float64) int {
	return int(math.Round(v))
}

// PrintHeader prints a section header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
}

// PrintField prints a labeled field
func PrintField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-14s %s\n", label+":", value)
}

// PrintDetails prints every GPU in the snapshot with memory in GB. Fields a
// backend did not report are omitted.
func PrintDetails(w io.Writer, snap domain.Snapshot) {
	PrintHeader(w, "GPU Details")
	PrintField(w, "Source", sourceLabel(snap.Source))
	PrintField(w, "Monitoring", onOff(snap.Active))
	if !snap.CapturedAt.IsZero() {
		PrintField(w, "Captured", snap.CapturedAt.Local().Format(time.DateTime))
	}
	if snap.Failing() {
		PrintField(w, "Last error", snap.LastError)
	}

	if snap.Empty() {
		fmt.Fprintln(w, "\n  (no GPU information available)")
		return
	}

	for i, gpu := range snap.GPUs {
		fmt.Fprintf(w, "\nGPU %d: %s\n", i+1, gpu.Name)
		PrintField(w, "Usage", fmt.Sprintf("%.1f%%", gpu.Usage))
		if gpu.HasTemperature() {
			PrintField(w, "Temperature", fmt.Sprintf("%.1f°C", gpu.Temperature))
		}
		if gpu.HasMemory() {
			PrintField(w, "Memory", fmt.Sprintf("%.2f/%.2f GB (%.0f%%)",
				gpu.MemoryUsedGB(), gpu.MemoryTotalGB(), gpu.MemoryPercent()))
		}
		if gpu.HasPower() {
			PrintField(w, "Power", fmt.Sprintf("%.1fW", gpu.PowerUsage))
		}
		if gpu.DriverVersion != "" {
			PrintField(w, "Driver", gpu.DriverVersion)
		}
	}
}

// PrintCheck prints one doctor result line
func PrintCheck(w io.Writer, ok bool, name, detail string) {
	mark := "ok"
	if !ok {
		mark = "--"
	}
	fmt.Fprintf(w, "  [%s] %-12s %s\n", mark, name, detail)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s\n", message)
}

func sourceLabel(v domain.Vendor) string {
	if v == "" {
		return "-"
	}
	return string(v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
