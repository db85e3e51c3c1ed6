package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/worldland/gpumon/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpumon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Monitoring.RefreshInterval())
	assert.Equal(t, 5*time.Second, cfg.Monitoring.ProbeTimeout())
	assert.True(t, cfg.Display.ShowStatusBar)
	assert.True(t, cfg.Display.ShowPercentage)
	assert.True(t, cfg.Display.ShowTemperature)
	assert.True(t, cfg.Display.ShowMemoryUsage)
	assert.False(t, cfg.Hub.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv(EnvRefreshInterval, "")
	path := writeConfig(t, `
monitoring:
  refresh_interval_ms: 500
  probes: [nvidia, system]
display:
  show_temperature: false
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitoring.RefreshInterval())
	assert.Equal(t, []string{"nvidia", "system"}, cfg.Monitoring.Probes)
	assert.False(t, cfg.Display.ShowTemperature)
	assert.True(t, cfg.Display.ShowPercentage, "unset keys keep defaults")
	assert.True(t, cfg.Monitoring.Enabled)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "monitoring:\n  refresh_intervall_ms: 500\n")

	_, err := Load(path)

	assert.ErrorIs(t, err, apperrors.New(apperrors.ErrCodeInvalidConfig, ""))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRefreshInterval: "750",
		EnvProbeTimeout:    "1500",
		EnvListen:          "0.0.0.0:9000",
		EnvPort:            "9100",
		EnvHubAddress:      "hub.example:8443",
	}
	cfg := DefaultConfig()

	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, 750, cfg.Monitoring.RefreshIntervalMS)
	assert.Equal(t, 1500, cfg.Monitoring.ProbeTimeoutMS)
	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Address)
	assert.Equal(t, "hub.example:8443", cfg.Hub.Address)
}

func TestApplyEnv_BadInterval(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.ApplyEnv(func(k string) string {
		if k == EnvRefreshInterval {
			return "fast"
		}
		return ""
	})

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Monitoring.RefreshIntervalMS = 0 }},
		{"negative interval", func(c *Config) { c.Monitoring.RefreshIntervalMS = -1 }},
		{"interval below minimum", func(c *Config) { c.Monitoring.RefreshIntervalMS = 10 }},
		{"zero probe timeout", func(c *Config) { c.Monitoring.ProbeTimeoutMS = 0 }},
		{"unknown probe", func(c *Config) { c.Monitoring.Probes = []string{"intel"} }},
		{"bad address", func(c *Config) { c.Server.Address = "no-port" }},
		{"zero rate", func(c *Config) { c.Server.RateLimit = 0 }},
		{"hub without certs", func(c *Config) { c.Hub.Address = "hub:8443" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidConfig, apperrors.CodeOf(err))
		})
	}
}

func TestMarshal_RoundTripsThroughLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitoring.RefreshIntervalMS = 3000
	data, err := cfg.Marshal()
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(data)))

	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
