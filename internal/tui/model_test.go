package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/domain"
)

// MockController implements Controller with function fields.
type MockController struct {
	RefreshFn func(ctx context.Context) (domain.Snapshot, error)
	ToggleFn  func() bool
}

func (m *MockController) Refresh(ctx context.Context) (domain.Snapshot, error) {
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx)
	}
	return domain.Snapshot{}, nil
}

func (m *MockController) Toggle() bool {
	if m.ToggleFn != nil {
		return m.ToggleFn()
	}
	return true
}

func (m *MockController) Interval() time.Duration { return 2 * time.Second }

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_FollowsSnapshots(t *testing.T) {
	updates := make(chan domain.Snapshot, 1)
	m := NewModel(&MockController{}, domain.Snapshot{Active: true}, updates, config.DefaultConfig().Display)
	assert.Contains(t, m.View(), "No GPU information available")

	updates <- domain.Snapshot{
		Active: true, Source: domain.VendorNVIDIA, CapturedAt: time.Now(),
		GPUs: []domain.GPUInfo{{Name: "RTX 4090", Usage: 45, Temperature: 67, MemoryUsed: 8192, MemoryTotal: 24576, PowerUsage: 320.5}},
	}
	msg := m.Init()()
	m, cmd := update(t, m, msg)

	assert.NotNil(t, cmd, "keeps waiting for the next snapshot")
	view := m.View()
	assert.Contains(t, view, "RTX 4090 45% | 67°C | 8.0/24.0GB")
	assert.Contains(t, view, "GPU 1: RTX 4090")
	assert.Contains(t, view, "8.00/24.00 GB")
	assert.Contains(t, view, "Power 320.5W")
	assert.Contains(t, view, "Source: nvidia")
}

func TestModel_ClosedSubscriptionQuits(t *testing.T) {
	updates := make(chan domain.Snapshot)
	close(updates)
	m := NewModel(&MockController{}, domain.Snapshot{}, updates, config.DefaultConfig().Display)

	msg := m.Init()()

	assert.IsType(t, tea.QuitMsg{}, msg)
}

func TestModel_RefreshKey(t *testing.T) {
	calls := 0
	ctrl := &MockController{RefreshFn: func(ctx context.Context) (domain.Snapshot, error) {
		calls++
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return domain.Snapshot{}, errors.New("[NO_GPU_DETECTED] no GPU detected")
	}}
	m := NewModel(ctrl, domain.Snapshot{Active: true}, nil, config.DefaultConfig().Display)

	m, cmd := update(t, m, keyMsg("r"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Refreshing...")

	_, again := update(t, m, keyMsg("r"))
	assert.Nil(t, again, "no second refresh while one is in flight")

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.View(), "Refresh failed: [NO_GPU_DETECTED]")
}

func TestModel_ToggleKey(t *testing.T) {
	enabled := true
	ctrl := &MockController{ToggleFn: func() bool {
		enabled = !enabled
		return enabled
	}}
	m := NewModel(ctrl, domain.Snapshot{Active: true, GPUs: []domain.GPUInfo{{Name: "AMD GPU"}}}, nil, config.DefaultConfig().Display)

	m, cmd := update(t, m, keyMsg("t"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Contains(t, m.View(), "GPU: Off")
}

func TestModel_QuitKey(t *testing.T) {
	m := NewModel(&MockController{}, domain.Snapshot{}, nil, config.DefaultConfig().Display)

	_, cmd := update(t, m, keyMsg("q"))

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderProgressBar_Clamps(t *testing.T) {
	assert.Equal(t, renderProgressBar(100, 10, usageColor(100)), renderProgressBar(150, 10, usageColor(100)))
	assert.Equal(t, renderProgressBar(0, 10, usageColor(0)), renderProgressBar(-5, 10, usageColor(0)))
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "0.50s", formatInterval(500*time.Millisecond))
	assert.Equal(t, "2.0s", formatInterval(2*time.Second))
	assert.Equal(t, "30s", formatInterval(30*time.Second))
}
