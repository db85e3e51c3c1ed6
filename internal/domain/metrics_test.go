package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUInfo_Sentinels(t *testing.T) {
	g := GPUInfo{Name: "System GPU"}

	assert.False(t, g.HasTemperature())
	assert.False(t, g.HasMemory())
	assert.False(t, g.HasPower())
	assert.Zero(t, g.MemoryPercent())
}

func TestGPUInfo_MemoryConversions(t *testing.T) {
	g := GPUInfo{MemoryUsed: 8192, MemoryTotal: 24576}

	assert.InDelta(t, 8.0, g.MemoryUsedGB(), 0.001)
	assert.InDelta(t, 24.0, g.MemoryTotalGB(), 0.001)
	assert.InDelta(t, 33.33, g.MemoryPercent(), 0.01)
}

func TestGPUInfo_JSONOmitsAbsentDriver(t *testing.T) {
	data, err := json.Marshal(GPUInfo{Name: "AMD GPU"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "driver_version")
	assert.Contains(t, string(data), `"memory_total_mb":0`)
}

func TestSnapshot_Primary(t *testing.T) {
	_, ok := Snapshot{}.Primary()
	assert.False(t, ok)

	s := Snapshot{GPUs: []GPUInfo{{Name: "A"}, {Name: "B"}}}
	first, ok := s.Primary()
	require.True(t, ok)
	assert.Equal(t, "A", first.Name)
	assert.False(t, s.Empty())
}

func TestSnapshot_Age(t *testing.T) {
	now := time.Now()

	assert.Zero(t, Snapshot{}.Age(now))
	assert.Equal(t, 3*time.Second, Snapshot{CapturedAt: now.Add(-3 * time.Second)}.Age(now))
}
