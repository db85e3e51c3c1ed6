package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldland/gpumon/internal/domain"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	err := app.Run(context.Background(), append([]string{name, "--log-level", "error"}, args...))
	return buf.String(), err
}

func TestProbe_MockJSON(t *testing.T) {
	out, err := runApp(t, "probe", "--mock", "--format", "json")
	require.NoError(t, err)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.GPUs, 1)
	assert.Equal(t, "Mock GPU", snap.GPUs[0].Name)
	assert.Equal(t, domain.VendorMock, snap.Source)
	assert.True(t, snap.Active)
}

func TestProbe_UnknownFormat(t *testing.T) {
	_, err := runApp(t, "probe", "--mock", "--format", "xml")

	assert.Error(t, err)
}

func TestStatus_Mock(t *testing.T) {
	out, err := runApp(t, "status", "--mock")
	require.NoError(t, err)

	assert.Equal(t, "Mock GPU 50% | 60°C | 7.8/23.4GB\n", out)
}

func TestStatus_MockHideFields(t *testing.T) {
	out, err := runApp(t, "status", "--mock", "--no-temperature", "--no-memory")
	require.NoError(t, err)

	assert.Equal(t, "Mock GPU 50%\n", out)
}

func TestDetails_Mock(t *testing.T) {
	out, err := runApp(t, "details", "--mock")
	require.NoError(t, err)

	assert.Contains(t, out, "GPU 1: Mock GPU")
	assert.Contains(t, out, "7.81/23.44 GB")
}

func TestVersion(t *testing.T) {
	out, err := runApp(t, "version")
	require.NoError(t, err)

	assert.Contains(t, out, "gpumon dev")
}

func TestInterval_RequiresNumber(t *testing.T) {
	_, err := runApp(t, "interval", "soon")

	assert.Error(t, err)
}
