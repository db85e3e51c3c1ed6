package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/worldland/gpumon/internal/adapters/probe"
	"github.com/worldland/gpumon/internal/adapters/toolexec"
	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/domain"
	"github.com/worldland/gpumon/internal/logging"
	"github.com/worldland/gpumon/internal/services"
	"github.com/worldland/gpumon/internal/snapshot"
)

const name = "gpumon"

var (
	// overridden during build with ldflags
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "GPU telemetry daemon and CLI for NVIDIA, AMD and generic Linux GPUs",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				Sources: cli.EnvVars("GPUMON_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars(logging.EnvLogLevel),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "shorthand for --log-level=debug",
			},
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "address of a running gpumon daemon (default: server.address from config)",
				Sources: cli.EnvVars("GPUMON_ADDR"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := cmd.String("log-level")
			if cmd.Bool("debug") {
				level = "debug"
			}
			logging.SetDefaultStructuredLoggerWithLevel(name, version, level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			probeCmd(),
			statusCmd(),
			detailsCmd(),
			refreshCmd(),
			toggleCmd(),
			intervalCmd(),
			watchCmd(),
			doctorCmd(),
			versionCmd(),
		},
	}
}

func mockFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "mock",
		Usage:   "use a fixed demo GPU instead of the vendor tools",
		Sources: cli.EnvVars("GPUMON_MOCK"),
	}
}

// loadConfig reads --config and validates it.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	return config.Load(cmd.String("config"))
}

// pipeline is one probe chain, coordinator, store and scheduler.
type pipeline struct {
	mock        bool
	coordinator *services.Coordinator
	store       *snapshot.Store
	scheduler   *services.Scheduler
}

// buildChain returns the demo probe in mock mode, otherwise the configured
// vendor probes behind a runner bounded by the probe timeout.
func buildChain(m config.MonitoringConfig, mock bool) ([]domain.Probe, error) {
	if mock {
		return []domain.Probe{probe.NewMockProbe(probe.DemoGPU())}, nil
	}
	return probe.Chain(toolexec.NewExecRunner(m.ProbeTimeout()), m.Probes)
}

func newPipeline(cfg config.Config, mock bool, logger *slog.Logger) (*pipeline, error) {
	probes, err := buildChain(cfg.Monitoring, mock)
	if err != nil {
		return nil, err
	}

	coord := services.NewCoordinator(probes, logger)
	store := snapshot.NewStore(cfg.Monitoring.Enabled)
	sched := services.NewScheduler(
		coord,
		store,
		services.SchedulerConfig{
			Enabled:  cfg.Monitoring.Enabled,
			Interval: cfg.Monitoring.RefreshInterval(),
		},
		logger,
	)
	return &pipeline{mock: mock, coordinator: coord, store: store, scheduler: sched}, nil
}

// daemonAddr resolves --addr, falling back to the configured listen address.
func daemonAddr(cmd *cli.Command, cfg config.Config) string {
	if addr := cmd.String("addr"); addr != "" {
		return addr
	}
	return cfg.Server.Address
}
