package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/worldland/gpumon/internal/adapters/mtls"
	"github.com/worldland/gpumon/internal/api"
	"github.com/worldland/gpumon/internal/config"
	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/metrics"
	"github.com/worldland/gpumon/internal/services"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the polling daemon with the HTTP API and optional hub reporter",
		Description: `Starts the scheduler, serves the local API and, when hub.address is set,
streams a heartbeat per snapshot to the hub over mutual TLS.

SIGHUP reloads the configuration file and restarts the scheduler with the
new refresh interval. SIGINT and SIGTERM shut down gracefully.`,
		Flags: []cli.Flag{
			mockFlag(),
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "API listen address, overrides server.address",
				Sources: cli.EnvVars(config.EnvListen),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			listen := cmd.String("listen")
			if listen != "" {
				cfg.Server.Address = listen
			}
			return serve(ctx, cmd.String("config"), listen, cfg, cmd.Bool("mock"), slog.Default())
		},
	}
}

func serve(ctx context.Context, configPath, listen string, cfg config.Config, mock bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, mock, logger)
	if err != nil {
		return err
	}

	logger.Info("starting gpumon",
		slog.String("commit", commit),
		slog.String("date", date),
		slog.Bool("enabled", cfg.Monitoring.Enabled),
		slog.Duration("interval", cfg.Monitoring.RefreshInterval()),
		slog.Duration("probeTimeout", cfg.Monitoring.ProbeTimeout()),
		slog.Bool("mock", mock),
	)

	updates, unsubscribe := p.store.Subscribe(defaults.SubscriberBuffer)
	defer unsubscribe()

	p.scheduler.Start(ctx)
	defer p.scheduler.Shutdown()
	metrics.ObserveSnapshot(p.store.Current())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		metrics.Follow(gctx, updates)
		return nil
	})

	server := api.NewServer(api.ServerConfig{
		Address:   cfg.Server.Address,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, api.NewTelemetryHandler(p.scheduler, p.store), logger)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Hub.Enabled() {
		reporter, err := newReporter(cfg.Hub, p, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return reporter.Run(gctx)
		})
	}

	g.Go(func() error {
		reloadOnHangup(gctx, configPath, listen, cfg, p, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("gpumon stopped gracefully")
	return nil
}

func newReporter(hub config.HubConfig, p *pipeline, logger *slog.Logger) (*services.Reporter, error) {
	cert, pool, err := mtls.LoadCredentials(hub.CertFile, hub.KeyFile, hub.CAFile)
	if err != nil {
		return nil, err
	}

	nodeID := hub.NodeID
	if nodeID == "" {
		if nodeID, err = os.Hostname(); err != nil {
			return nil, err
		}
	}

	client := mtls.NewClient(hub.Address, cert, pool).WithLogger(logger)
	logger.Info("hub reporting enabled", "hub", hub.Address, "nodeID", nodeID)
	return services.NewReporter(client, p.store, p.scheduler, nodeID, logger), nil
}

// reloadOnHangup re-reads the config file on every SIGHUP and applies it
// through applyReload. An invalid file keeps the running settings.
func reloadOnHangup(ctx context.Context, configPath, listen string, current config.Config, p *pipeline, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := config.Load(configPath)
			if err != nil {
				logger.Warn("config reload failed, keeping current settings", "error", err)
				continue
			}
			if listen != "" {
				next.Server.Address = listen
			}
			current = applyReload(current, next, p, logger)
		}
	}
}

// applyReload applies the monitoring section of next and returns the config
// now in effect. The probe chain is rebuilt when its vendors or timeout
// change, the enabled state follows the file only when the file changed it,
// and the interval restarts the scheduler. Server and hub settings need a
// process restart; changing them is logged and otherwise ignored.
func applyReload(prev, next config.Config, p *pipeline, logger *slog.Logger) config.Config {
	pm, nm := prev.Monitoring, next.Monitoring

	if nm.ProbeTimeoutMS != pm.ProbeTimeoutMS || !slices.Equal(nm.Probes, pm.Probes) {
		chain, err := buildChain(nm, p.mock)
		if err != nil {
			logger.Warn("probe chain not rebuilt, keeping current probes", "error", err)
			nm.Probes, nm.ProbeTimeoutMS = pm.Probes, pm.ProbeTimeoutMS
		} else {
			p.coordinator.SetProbes(chain)
			logger.Info("probe chain rebuilt", "probes", nm.Probes, "probeTimeout", nm.ProbeTimeout().String())
		}
	}

	if nm.Enabled != pm.Enabled && nm.Enabled != p.scheduler.Enabled() {
		p.scheduler.Toggle()
	}

	if nm.RefreshIntervalMS != pm.RefreshIntervalMS {
		p.scheduler.Restart(nm.RefreshInterval())
	}

	var restart []string
	if next.Server != prev.Server {
		restart = append(restart, "server")
	}
	if next.Hub != prev.Hub {
		restart = append(restart, "hub")
	}
	if len(restart) > 0 {
		logger.Warn("config sections changed that only apply after a restart", "sections", restart)
		next.Server, next.Hub = prev.Server, prev.Hub
	}

	next.Monitoring = nm
	logger.Info("config reloaded",
		"enabled", p.scheduler.Enabled(),
		"interval", p.scheduler.Interval().String(),
	)
	return next
}
