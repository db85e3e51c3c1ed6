package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/worldland/gpumon/internal/adapters/mtls"
	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/domain"
	"github.com/worldland/gpumon/internal/logging"
	"github.com/worldland/gpumon/internal/metrics"
	"github.com/worldland/gpumon/internal/snapshot"
)

// HubConn is the hub transport the reporter drives. *mtls.Client implements it.
type HubConn interface {
	Connect(ctx context.Context) error
	Send(msg any) error
	Listen() error
	HandleCommands(fn func(cmd mtls.Command) mtls.CommandAck)
	Close()
}

// Controller is the part of the scheduler the hub may drive remotely.
type Controller interface {
	Refresh(ctx context.Context) (domain.Snapshot, error)
	Toggle() bool
}

// Heartbeat is the telemetry message sent to the hub for every snapshot.
type Heartbeat struct {
	Type    string           `json:"type"`
	Payload HeartbeatPayload `json:"payload"`
}

// HeartbeatPayload carries one snapshot for one node.
type HeartbeatPayload struct {
	NodeID     string           `json:"node_id"`
	GPUs       []domain.GPUInfo `json:"gpus"`
	Source     domain.Vendor    `json:"source,omitempty"`
	Active     bool             `json:"active"`
	CapturedAt time.Time        `json:"captured_at"`
	LastError  string           `json:"last_error,omitempty"`
	Sequence   uint64           `json:"sequence"`
}

// Reporter streams snapshots to a hub and reconnects with exponential backoff.
type Reporter struct {
	conn       HubConn
	store      *snapshot.Store
	controller Controller
	nodeID     string
	logger     *slog.Logger

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// NewReporter creates a reporter. controller may be nil, in which case hub
// commands other than "snapshot" are rejected.
func NewReporter(conn HubConn, store *snapshot.Store, controller Controller, nodeID string, logger *slog.Logger) *Reporter {
	return &Reporter{
		conn:             conn,
		store:            store,
		controller:       controller,
		nodeID:           nodeID,
		logger:           logging.OrDefault(logger),
		ReconnectInitial: defaults.HubReconnectInitial,
		ReconnectMax:     defaults.HubReconnectMax,
	}
}

// Run sends a heartbeat for the current snapshot and every later one until
// ctx is done. Connection loss triggers a reconnect; Run only returns an
// error if ctx is still live when reconnecting gives up.
func (r *Reporter) Run(ctx context.Context) error {
	updates, unsubscribe := r.store.Subscribe(defaults.SubscriberBuffer)
	defer unsubscribe()
	defer r.conn.Close()

	r.conn.HandleCommands(func(cmd mtls.Command) mtls.CommandAck {
		return r.handleCommand(ctx, cmd)
	})

	for {
		if err := r.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		lost := make(chan error, 1)
		go func() { lost <- r.conn.Listen() }()

		r.send(r.store.Current())

	stream:
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-lost:
				r.logger.Warn("hub connection lost", "error", err)
				break stream
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				if err := r.send(snap); err != nil {
					r.conn.Close()
					break stream
				}
			}
		}
	}
}

func (r *Reporter) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.ReconnectInitial
	b.MaxInterval = r.ReconnectMax
	b.MaxElapsedTime = 0

	operation := func() error {
		err := r.conn.Connect(ctx)
		if err != nil {
			r.logger.Warn("hub connect failed, retrying", "error", err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (r *Reporter) send(snap domain.Snapshot) error {
	err := r.conn.Send(r.buildHeartbeat(snap))
	metrics.ObserveHeartbeat(err)
	if err != nil {
		r.logger.Warn("failed to send heartbeat", "error", err)
	}
	return err
}

func (r *Reporter) buildHeartbeat(snap domain.Snapshot) Heartbeat {
	return Heartbeat{
		Type: "gpu_telemetry",
		Payload: HeartbeatPayload{
			NodeID:     r.nodeID,
			GPUs:       snap.GPUs,
			Source:     snap.Source,
			Active:     snap.Active,
			CapturedAt: snap.CapturedAt,
			LastError:  snap.LastError,
			Sequence:   snap.Sequence,
		},
	}
}

func (r *Reporter) handleCommand(ctx context.Context, cmd mtls.Command) mtls.CommandAck {
	ack := mtls.CommandAck{CommandID: cmd.ID, Status: "ok"}
	fail := func(msg string) mtls.CommandAck {
		ack.Status = "error"
		ack.Error = msg
		return ack
	}

	switch cmd.Type {
	case "snapshot":
		ack.Payload = map[string]any{"snapshot": r.store.Current()}
	case "refresh":
		if r.controller == nil {
			return fail("refresh not supported")
		}
		snap, err := r.controller.Refresh(ctx)
		if err != nil {
			return fail(err.Error())
		}
		ack.Payload = map[string]any{"snapshot": snap}
	case "toggle":
		if r.controller == nil {
			return fail("toggle not supported")
		}
		ack.Payload = map[string]any{"enabled": r.controller.Toggle()}
	default:
		return fail("unknown command: " + cmd.Type)
	}
	r.logger.Info("handled hub command", "id", cmd.ID, "type", cmd.Type)
	return ack
}

var _ HubConn = (*mtls.Client)(nil)
