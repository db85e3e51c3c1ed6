// Package tui is the interactive watch view over a live snapshot store.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/worldland/gpumon/internal/cli"
	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
)

// Controller is the scheduler surface the view drives.
type Controller interface {
	Refresh(ctx context.Context) (domain.Snapshot, error)
	Toggle() bool
	Interval() time.Duration
}

// SnapshotMsg carries a snapshot published by the store.
type SnapshotMsg domain.Snapshot

// RefreshDoneMsg reports the outcome of a manual refresh.
type RefreshDoneMsg struct {
	err error
}

// ToggledMsg reports the scheduler state after a toggle.
type ToggledMsg struct {
	enabled bool
}

// Model renders the latest snapshot and forwards key presses to the controller.
type Model struct {
	ctrl       Controller
	updates    <-chan domain.Snapshot
	display    config.DisplayConfig
	snap       domain.Snapshot
	refreshing bool
	refreshErr string
	width      int
	height     int
	now        func() time.Time
}

// NewModel creates a view starting from initial and following updates.
func NewModel(ctrl Controller, initial domain.Snapshot, updates <-chan domain.Snapshot, display config.DisplayConfig) Model {
	return Model{
		ctrl:    ctrl,
		updates: updates,
		display: display,
		snap:    initial,
		now:     time.Now,
	}
}

// Run starts the program on the alternate screen until q or ctx is done.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

// waitForSnapshot blocks on the subscription; a closed channel ends the program.
func waitForSnapshot(updates <-chan domain.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return tea.Quit()
		}
		return SnapshotMsg(snap)
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), defaults.RefreshHandlerTimeout)
		defer cancel()
		_, err := m.ctrl.Refresh(ctx)
		return RefreshDoneMsg{err: err}
	}
}

func (m Model) toggle() tea.Cmd {
	return func() tea.Msg {
		return ToggledMsg{enabled: m.ctrl.Toggle()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.refreshing {
				return m, nil
			}
			m.refreshing = true
			m.refreshErr = ""
			return m, m.refresh()
		case "t":
			return m, m.toggle()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SnapshotMsg:
		m.snap = domain.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case RefreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.refreshErr = msg.err.Error()
		}

	case ToggledMsg:
		m.snap.Active = msg.enabled
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  GPU Monitor  "))
	b.WriteString("\n")
	subtitle := fmt.Sprintf("Source: %s | Interval: %s | Updated: %s | 'r' refresh | 't' toggle | 'q' quit",
		sourceLabel(m.snap.Source), formatInterval(m.ctrl.Interval()), m.updatedLabel())
	b.WriteString(mutedStyle.Render(subtitle))
	b.WriteString("\n\n")

	if line := cli.StatusLine(m.snap, m.display); line != "" {
		b.WriteString(headerStyle.Render(line))
		b.WriteString("\n\n")
	}

	if m.snap.Empty() {
		b.WriteString(warnStyle.Render("No GPU information available"))
		b.WriteString("\n")
	}
	for i, gpu := range m.snap.GPUs {
		b.WriteString(renderGPU(i, gpu, m.barWidth()))
		b.WriteString("\n")
	}

	if m.snap.Failing() {
		b.WriteString(errorStyle.Render("Last error: " + m.snap.LastError))
		b.WriteString("\n")
	}
	if m.refreshing {
		b.WriteString(mutedStyle.Render("Refreshing..."))
		b.WriteString("\n")
	} else if m.refreshErr != "" {
		b.WriteString(errorStyle.Render("Refresh failed: " + m.refreshErr))
		b.WriteString("\n")
	}
	return b.String()
}

func renderGPU(index int, gpu domain.GPUInfo, barWidth int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("● GPU %d: %s", index+1, gpu.Name)))
	b.WriteString("\n")

	row := func(label, bar, value string) {
		b.WriteString(fmt.Sprintf("  %-12s %s %s\n", label, bar, value))
	}
	row("Usage", renderProgressBar(gpu.Usage, barWidth, usageColor(gpu.Usage)), fmt.Sprintf("%5.1f%%", gpu.Usage))
	if gpu.HasMemory() {
		pct := gpu.MemoryPercent()
		row("Memory", renderProgressBar(pct, barWidth, usageColor(pct)),
			fmt.Sprintf("%.2f/%.2f GB", gpu.MemoryUsedGB(), gpu.MemoryTotalGB()))
	}

	var extras []string
	if gpu.HasTemperature() {
		extras = append(extras, fmt.Sprintf("Temp %.1f°C", gpu.Temperature))
	}
	if gpu.HasPower() {
		extras = append(extras, fmt.Sprintf("Power %.1fW", gpu.PowerUsage))
	}
	if gpu.DriverVersion != "" {
		extras = append(extras, "Driver "+gpu.DriverVersion)
	}
	if len(extras) > 0 {
		b.WriteString("  " + mutedStyle.Render(strings.Join(extras, "  ")) + "\n")
	}
	return b.String()
}

func (m Model) barWidth() int {
	if m.width <= 0 {
		return 30
	}
	w := m.width - 40
	if w < 10 {
		return 10
	}
	if w > 60 {
		return 60
	}
	return w
}

func (m Model) updatedLabel() string {
	if m.snap.CapturedAt.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s ago", m.snap.Age(m.now()).Truncate(time.Second))
}

func sourceLabel(v domain.Vendor) string {
	if v == "" {
		return "-"
	}
	return string(v)
}

func formatInterval(interval time.Duration) string {
	seconds := interval.Seconds()
	if seconds < 1 {
		return fmt.Sprintf("%.2fs", seconds)
	} else if seconds < 10 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.0fs", seconds)
}
