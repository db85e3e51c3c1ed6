package domain

// Vendor tags the backend that produced a set of GPU records.
type Vendor string

const (
	VendorNVIDIA Vendor = "nvidia"
	VendorAMD    Vendor = "amd"
	VendorSystem Vendor = "system"
	VendorMock   Vendor = "mock"
)

// GPUInfo is the normalized telemetry record for one device.
// Zero in a numeric field means the backend could not measure it.
type GPUInfo struct {
	Name          string  `json:"name" yaml:"name"`
	Usage         float64 `json:"usage_percent" yaml:"usage_percent"`
	Temperature   float64 `json:"temperature_c" yaml:"temperature_c"`
	MemoryUsed    float64 `json:"memory_used_mb" yaml:"memory_used_mb"`
	MemoryTotal   float64 `json:"memory_total_mb" yaml:"memory_total_mb"`
	PowerUsage    float64 `json:"power_w" yaml:"power_w"`
	DriverVersion string  `json:"driver_version,omitempty" yaml:"driver_version,omitempty"`
}

// HasTemperature reports whether a temperature reading is present.
func (g GPUInfo) HasTemperature() bool { return g.Temperature > 0 }

// HasMemory reports whether the total memory is known.
func (g GPUInfo) HasMemory() bool { return g.MemoryTotal > 0 }

// HasPower reports whether a power reading is present.
func (g GPUInfo) HasPower() bool { return g.PowerUsage > 0 }

// MemoryUsedGB converts MemoryUsed from MB to GB.
func (g GPUInfo) MemoryUsedGB() float64 { return g.MemoryUsed / 1024 }

// MemoryTotalGB converts MemoryTotal from MB to GB.
func (g GPUInfo) MemoryTotalGB() float64 { return g.MemoryTotal / 1024 }

// MemoryPercent returns used/total as a percentage, or 0 when the total is unknown.
func (g GPUInfo) MemoryPercent() float64 {
	if !g.HasMemory() {
		return 0
	}
	return g.MemoryUsed / g.MemoryTotal * 100
}
