package parser

import (
	"regexp"
	"strings"

	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// SystemDeviceName is used when lshw lists a display device without a product line.
const SystemDeviceName = "System GPU"

var lshwRelevantRe = regexp.MustCompile(`(product|configuration)`)

// FilterLshw keeps the lines of `lshw -c display` output that mention product or configuration.
func FilterLshw(out []byte) []string {
	var lines []string
	for _, line := range splitLines(out) {
		if lshwRelevantRe.MatchString(line) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}

// ParseLshw returns a single name-only record. lshw cannot measure
// utilization, temperature, memory or power, so those stay at zero.
func ParseLshw(out []byte) ([]domain.GPUInfo, error) {
	lines := FilterLshw(out)
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeParseFailure, "lshw listed no display devices")
	}

	name := SystemDeviceName
	for _, line := range lines {
		if v, ok := strings.CutPrefix(line, "product:"); ok {
			if v = strings.TrimSpace(v); v != "" {
				name = v
			}
			break
		}
	}
	return []domain.GPUInfo{{Name: name}}, nil
}
