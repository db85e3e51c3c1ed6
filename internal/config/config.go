// Package config loads gpumon configuration from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// Environment overrides, applied after the file.
const (
	EnvRefreshInterval = "GPUMON_REFRESH_INTERVAL_MS"
	EnvProbeTimeout    = "GPUMON_PROBE_TIMEOUT_MS"
	EnvListen          = "GPUMON_LISTEN"
	EnvHubAddress      = "GPUMON_HUB_ADDRESS"
	EnvPort            = "PORT"
)

// Config is the complete gpumon configuration.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Display    DisplayConfig    `yaml:"display"`
	Server     ServerConfig     `yaml:"server"`
	Hub        HubConfig        `yaml:"hub"`
}

// MonitoringConfig drives the scheduler and the probe chain.
type MonitoringConfig struct {
	// Enabled is the initial scheduler state
	Enabled bool `yaml:"enabled"`

	// RefreshIntervalMS is the polling period in milliseconds
	// Default: 2000
	RefreshIntervalMS int `yaml:"refresh_interval_ms"`

	// ProbeTimeoutMS bounds one external tool invocation
	// Default: 5000
	ProbeTimeoutMS int `yaml:"probe_timeout_ms"`

	// Probes restricts the chain to these vendors (nvidia, amd, system)
	// If empty, all probes run in priority order
	Probes []string `yaml:"probes,omitempty"`
}

// RefreshInterval returns the polling period.
func (m MonitoringConfig) RefreshInterval() time.Duration {
	return time.Duration(m.RefreshIntervalMS) * time.Millisecond
}

// ProbeTimeout returns the per-invocation bound.
func (m MonitoringConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutMS) * time.Millisecond
}

// DisplayConfig only affects presentation; the snapshot always carries every field.
type DisplayConfig struct {
	ShowStatusBar   bool `yaml:"show_status_bar"`
	ShowPercentage  bool `yaml:"show_percentage"`
	ShowTemperature bool `yaml:"show_temperature"`
	ShowMemoryUsage bool `yaml:"show_memory_usage"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Address   string  `yaml:"address"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// HubConfig enables telemetry reporting to a hub when Address is set.
type HubConfig struct {
	Address  string `yaml:"address,omitempty"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
	NodeID   string `yaml:"node_id,omitempty"`
}

// Enabled reports whether a hub is configured.
func (h HubConfig) Enabled() bool { return h.Address != "" }

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Monitoring: MonitoringConfig{
			Enabled:           true,
			RefreshIntervalMS: int(defaults.RefreshInterval / time.Millisecond),
			ProbeTimeoutMS:    int(defaults.ProbeTimeout / time.Millisecond),
		},
		Display: DisplayConfig{
			ShowStatusBar:   true,
			ShowPercentage:  true,
			ShowTemperature: true,
			ShowMemoryUsage: true,
		},
		Server: ServerConfig{
			Address:   defaults.ServerAddress,
			RateLimit: defaults.ServerRateLimit,
			RateBurst: defaults.ServerRateBurst,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, "failed to parse "+path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the environment through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvRefreshInterval); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, EnvRefreshInterval+" must be an integer", err)
		}
		c.Monitoring.RefreshIntervalMS = ms
	}
	if v := getenv(EnvProbeTimeout); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, EnvProbeTimeout+" must be an integer", err)
		}
		c.Monitoring.ProbeTimeoutMS = ms
	}
	if v := getenv(EnvListen); v != "" {
		c.Server.Address = v
	}
	if v := getenv(EnvPort); v != "" {
		host, _, err := net.SplitHostPort(c.Server.Address)
		if err != nil {
			host = ""
		}
		c.Server.Address = net.JoinHostPort(host, v)
	}
	if v := getenv(EnvHubAddress); v != "" {
		c.Hub.Address = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Monitoring.RefreshInterval() < defaults.MinRefreshInterval {
		return invalid("refresh_interval_ms must be at least %d, got %d",
			defaults.MinRefreshInterval.Milliseconds(), c.Monitoring.RefreshIntervalMS)
	}
	if c.Monitoring.ProbeTimeoutMS <= 0 {
		return invalid("probe_timeout_ms must be positive, got %d", c.Monitoring.ProbeTimeoutMS)
	}
	for _, p := range c.Monitoring.Probes {
		switch domain.Vendor(p) {
		case domain.VendorNVIDIA, domain.VendorAMD, domain.VendorSystem:
		default:
			return invalid("unknown probe %q (want nvidia, amd or system)", p)
		}
	}
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return invalid("server.address %q: %v", c.Server.Address, err)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return invalid("server.rate_limit and server.rate_burst must be positive")
	}
	if c.Hub.Enabled() && (c.Hub.CertFile == "" || c.Hub.KeyFile == "" || c.Hub.CAFile == "") {
		return invalid("hub.address requires cert_file, key_file and ca_file")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
