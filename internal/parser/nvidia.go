package parser

import (
	"strings"

	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// NvidiaQueryFields is the field list passed to nvidia-smi --query-gpu, in column order.
var NvidiaQueryFields = []string{
	"name",
	"utilization.gpu",
	"temperature.gpu",
	"memory.used",
	"memory.total",
	"power.draw",
	"driver_version",
}

// ParseNvidiaCSV parses header-free, unit-free CSV from nvidia-smi, one row per device.
func ParseNvidiaCSV(out []byte) ([]domain.GPUInfo, error) {
	var gpus []domain.GPUInfo
	for _, line := range splitLines(out) {
		if g, ok := ParseNvidiaLine(line); ok {
			gpus = append(gpus, g)
		}
	}
	if len(gpus) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeParseFailure, "nvidia-smi output contained no device rows")
	}
	return gpus, nil
}

// ParseNvidiaLine parses one CSV row. It returns false for blank rows and rows
// without a device name. Missing trailing columns read as zero or absent.
func ParseNvidiaLine(line string) (domain.GPUInfo, bool) {
	if strings.TrimSpace(line) == "" {
		return domain.GPUInfo{}, false
	}

	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	g := domain.GPUInfo{
		Name:        field(0),
		Usage:       ParseOrZero(field(1)),
		Temperature: ParseOrZero(field(2)),
		MemoryUsed:  ParseOrZero(field(3)),
		MemoryTotal: ParseOrZero(field(4)),
		PowerUsage:  ParseOrZero(field(5)),
	}
	if g.Name == "" {
		return domain.GPUInfo{}, false
	}
	if v := field(6); v != "" && !isPlaceholder(v) {
		g.DriverVersion = v
	}
	return normalize(g), true
}

// isPlaceholder matches the markers nvidia-smi prints for unavailable values.
func isPlaceholder(v string) bool {
	switch strings.ToLower(v) {
	case "n/a", "[n/a]", "[not supported]", "[unknown error]":
		return true
	}
	return false
}
