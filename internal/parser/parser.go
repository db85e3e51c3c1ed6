// Package parser turns raw vendor tool output into normalized GPU records.
//
// Every numeric field follows parse-or-zero: a value that cannot be read
// becomes 0, the "unknown" sentinel, and never invalidates the record.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/worldland/gpumon/internal/domain"
)

// Func parses one tool's output. Implementations return a ParseFailure
// error instead of an empty slice.
type Func func(out []byte) ([]domain.GPUInfo, error)

// ParseOrZero parses s as a float and returns 0 when it is not a finite number.
// Vendor placeholders such as "N/A" or "[Not Supported]" therefore read as 0.
func ParseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// extractFloat returns the first capture group of re in text, parse-or-zero.
func extractFloat(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	return ParseOrZero(m[1])
}

// normalize clamps fields into their documented ranges.
func normalize(g domain.GPUInfo) domain.GPUInfo {
	g.Usage = clamp(g.Usage, 0, 100)
	g.Temperature = math.Max(g.Temperature, 0)
	g.MemoryUsed = math.Max(g.MemoryUsed, 0)
	g.MemoryTotal = math.Max(g.MemoryTotal, 0)
	g.PowerUsage = math.Max(g.PowerUsage, 0)
	return g
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func splitLines(out []byte) []string {
	return strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n")
}
