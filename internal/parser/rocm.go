package parser

import (
	"regexp"
	"strings"

	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// ROCmDeviceName is the name given to the aggregate rocm-smi record.
const ROCmDeviceName = "AMD GPU"

// ROCmVRAMScale turns the single VRAM reading rocm-smi reports into
// MemoryTotal. This is an approximation: the reading does not distinguish
// used from total memory, so MemoryTotal is not a measured value.
const ROCmVRAMScale = 1024

var (
	rocmUsageRe = regexp.MustCompile(`GPU\s*\d+:\s*(\d+)%`)
	rocmTempRe  = regexp.MustCompile(`Temperature\(Sensor edge\):\s*([\d.]+)`)
	rocmVRAMRe  = regexp.MustCompile(`VRAM\s*Total\s*Memory.*?(\d+)`)
	rocmPowerRe = regexp.MustCompile(`Average\s*Graphics\s*Power:\s*([\d.]+)`)
)

// ParseROCm scans free-form rocm-smi output and returns exactly one aggregate
// record. Each field is matched on its own; a missing match leaves it at 0.
func ParseROCm(out []byte) ([]domain.GPUInfo, error) {
	text := string(out)
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.New(apperrors.ErrCodeParseFailure, "rocm-smi produced no output")
	}

	vram := extractFloat(rocmVRAMRe, text)
	g := domain.GPUInfo{
		Name:        ROCmDeviceName,
		Usage:       extractFloat(rocmUsageRe, text),
		Temperature: extractFloat(rocmTempRe, text),
		MemoryUsed:  vram,
		MemoryTotal: vram * ROCmVRAMScale,
		PowerUsage:  extractFloat(rocmPowerRe, text),
	}
	return []domain.GPUInfo{normalize(g)}, nil
}
