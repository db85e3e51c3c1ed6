package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/domain"
)

func activeSnapshot(gpus ...domain.GPUInfo) domain.Snapshot {
	return domain.Snapshot{GPUs: gpus, Active: true, Source: domain.VendorNVIDIA}
}

func rtx4090() domain.GPUInfo {
	return domain.GPUInfo{
		Name: "RTX 4090", Usage: 45.4, Temperature: 67.6,
		MemoryUsed: 8192, MemoryTotal: 24576, PowerUsage: 320.5, DriverVersion: "535.104",
	}
}

func TestStatusLine(t *testing.T) {
	all := config.DefaultConfig().Display

	tests := []struct {
		name    string
		snap    domain.Snapshot
		display func(d *config.DisplayConfig)
		want    string
	}{
		{"all fields", activeSnapshot(rtx4090()), nil, "RTX 4090 45% | 68°C | 8.0/24.0GB"},
		{"hidden", activeSnapshot(rtx4090()), func(d *config.DisplayConfig) { d.ShowStatusBar = false }, ""},
		{"disabled", domain.Snapshot{GPUs: []domain.GPUInfo{rtx4090()}}, nil, StatusOff},
		{"error", domain.Snapshot{Active: true, LastError: "[NO_GPU_DETECTED] no GPU detected"}, nil, StatusError},
		{"no data yet", activeSnapshot(), nil, StatusUnavailable},
		{"percentage only", activeSnapshot(rtx4090()), func(d *config.DisplayConfig) {
			d.ShowTemperature = false
			d.ShowMemoryUsage = false
		}, "RTX 4090 45%"},
		{"nothing selected", activeSnapshot(rtx4090()), func(d *config.DisplayConfig) {
			d.ShowPercentage = false
			d.ShowTemperature = false
			d.ShowMemoryUsage = false
		}, "RTX 4090"},
		{"zero temperature and memory omitted", activeSnapshot(domain.GPUInfo{Name: "AMD GPU", Usage: 30}), nil, "AMD GPU 30%"},
		{"primary gpu only", activeSnapshot(rtx4090(), domain.GPUInfo{Name: "RTX 3090", Usage: 99}), nil, "RTX 4090 45% | 68°C | 8.0/24.0GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := all
			if tt.display != nil {
				tt.display(&d)
			}

			assert.Equal(t, tt.want, StatusLine(tt.snap, d))
		})
	}
}

func TestPrintDetails(t *testing.T) {
	var buf bytes.Buffer

	PrintDetails(&buf, activeSnapshot(rtx4090(), domain.GPUInfo{Name: "System GPU"}))

	out := buf.String()
	assert.Contains(t, out, "GPU 1: RTX 4090")
	assert.Contains(t, out, "8.00/24.00 GB (33%)")
	assert.Contains(t, out, "320.5W")
	assert.Contains(t, out, "535.104")
	assert.Contains(t, out, "GPU 2: System GPU")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Temperature:")), "zero readings are omitted")
}

func TestPrintDetails_Empty(t *testing.T) {
	var buf bytes.Buffer

	PrintDetails(&buf, domain.Snapshot{LastError: "[NO_GPU_DETECTED] no GPU detected"})

	assert.Contains(t, buf.String(), "no GPU information available")
	assert.Contains(t, buf.String(), "NO_GPU_DETECTED")
}
