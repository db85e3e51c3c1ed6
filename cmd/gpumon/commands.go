package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/worldland/gpumon/internal/adapters/toolexec"
	gpucli "github.com/worldland/gpumon/internal/cli"
	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	"github.com/worldland/gpumon/internal/logging"
	"github.com/worldland/gpumon/internal/serializer"
	"github.com/worldland/gpumon/internal/setup"
	"github.com/worldland/gpumon/internal/tui"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "output format (json, yaml, table)",
		Value:   string(serializer.FormatTable),
	}
}

func localFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "local",
		Usage: "acquire on this host instead of asking a running daemon",
	}
}

func probeCmd() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Run the fallback chain once and print the snapshot",
		Flags: []cli.Flag{mockFlag(), formatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := serializer.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			snap, err := acquireOnce(ctx, cfg, cmd.Bool("mock"))
			if err != nil {
				return err
			}
			return serializer.NewWriter(format, cmd.Root().Writer).Serialize(snap)
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print the one-line GPU summary",
		Flags: []cli.Flag{
			localFlag(),
			mockFlag(),
			&cli.BoolFlag{Name: "no-percentage", Usage: "hide GPU usage"},
			&cli.BoolFlag{Name: "no-temperature", Usage: "hide temperature"},
			&cli.BoolFlag{Name: "no-memory", Usage: "hide memory usage"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			snap, err := currentSnapshot(ctx, cmd, cfg)
			if err != nil {
				return err
			}

			display := cfg.Display
			display.ShowPercentage = display.ShowPercentage && !cmd.Bool("no-percentage")
			display.ShowTemperature = display.ShowTemperature && !cmd.Bool("no-temperature")
			display.ShowMemoryUsage = display.ShowMemoryUsage && !cmd.Bool("no-memory")

			if line := gpucli.StatusLine(snap, display); line != "" {
				fmt.Fprintln(cmd.Root().Writer, line)
			}
			return nil
		},
	}
}

func detailsCmd() *cli.Command {
	return &cli.Command{
		Name:  "details",
		Usage: "Print per-GPU details with memory in GB",
		Flags: []cli.Flag{localFlag(), mockFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			snap, err := currentSnapshot(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			gpucli.PrintDetails(cmd.Root().Writer, snap)
			return nil
		},
	}
}

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Ask the daemon for an immediate acquisition",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			snap, err := gpucli.NewDaemonClient(daemonAddr(cmd, cfg)).Refresh(ctx)
			if err != nil {
				return err
			}
			gpucli.PrintDetails(cmd.Root().Writer, snap)
			return nil
		},
	}
}

func toggleCmd() *cli.Command {
	return &cli.Command{
		Name:  "toggle",
		Usage: "Enable or disable scheduled monitoring on the daemon",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enabled, err := gpucli.NewDaemonClient(daemonAddr(cmd, cfg)).Toggle(ctx)
			if err != nil {
				return err
			}
			if enabled {
				gpucli.PrintSuccess(cmd.Root().Writer, "GPU monitoring enabled")
			} else {
				gpucli.PrintSuccess(cmd.Root().Writer, "GPU monitoring disabled")
			}
			return nil
		},
	}
}

func intervalCmd() *cli.Command {
	return &cli.Command{
		Name:      "interval",
		Usage:     "Change the daemon's refresh interval and restart its scheduler",
		ArgsUsage: "<milliseconds>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ms, err := strconv.Atoi(cmd.Args().First())
			if err != nil {
				return fmt.Errorf("interval must be a number of milliseconds: %w", err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			resp, err := gpucli.NewDaemonClient(daemonAddr(cmd, cfg)).SetInterval(ctx, ms)
			if err != nil {
				return err
			}
			gpucli.PrintSuccess(cmd.Root().Writer, fmt.Sprintf("Refresh interval set to %dms", resp.RefreshIntervalMS))
			return nil
		},
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Interactive live view ('r' refresh, 't' toggle, 'q' quit)",
		Flags: []cli.Flag{mockFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// Log lines would tear the terminal UI.
			p, err := newPipeline(cfg, cmd.Bool("mock"), logging.Discard())
			if err != nil {
				return err
			}

			updates, unsubscribe := p.store.Subscribe(defaults.SubscriberBuffer)
			defer unsubscribe()
			p.scheduler.Start(ctx)
			defer p.scheduler.Shutdown()

			return tui.Run(ctx, tui.NewModel(p.scheduler, p.store.Current(), updates, cfg.Display))
		},
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check which GPU tools are installed and which backend would be used",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			gpucli.PrintHeader(w, "GPU backends")
			result := setup.NewPreflight(toolexec.NewExecRunner(cfg.Monitoring.ProbeTimeout())).Run(ctx)
			result.PrintStatus(w)
			return nil
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(_ context.Context, cmd *cli.Command) error {
			fmt.Fprintf(cmd.Root().Writer, "%s %s (commit %s, built %s)\n", name, version, commit, date)
			return nil
		},
	}
}

// currentSnapshot asks the daemon, or acquires locally with --local or --mock.
func currentSnapshot(ctx context.Context, cmd *cli.Command, cfg config.Config) (domain.Snapshot, error) {
	if cmd.Bool("local") || cmd.Bool("mock") {
		return acquireOnce(ctx, cfg, cmd.Bool("mock"))
	}
	return gpucli.NewDaemonClient(daemonAddr(cmd, cfg)).GetSnapshot(ctx)
}

// acquireOnce runs one manual refresh through a fresh pipeline. Failures
// propagate, so NO_GPU_DETECTED exits non-zero.
func acquireOnce(ctx context.Context, cfg config.Config, mock bool) (domain.Snapshot, error) {
	cfg.Monitoring.Enabled = true
	p, err := newPipeline(cfg, mock, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return p.scheduler.Refresh(ctx)
}
