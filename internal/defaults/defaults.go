// Package defaults holds the named defaults shared by config, the daemon and the CLI.
package defaults

import "time"

// Polling.
const (
	// RefreshInterval is the default period between scheduled acquisitions.
	RefreshInterval = 2000 * time.Millisecond

	// MinRefreshInterval is the smallest interval config validation accepts.
	MinRefreshInterval = 100 * time.Millisecond

	// ProbeTimeout bounds a single external tool invocation.
	ProbeTimeout = 5 * time.Second

	// SubscriberBuffer is the channel depth handed to snapshot subscribers.
	SubscriberBuffer = 4
)

// Server timeouts for the local HTTP API.
const (
	ServerAddress = "127.0.0.1:9477"

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ServerIdleTimeout  = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 5 * time.Second

	// RefreshHandlerTimeout caps a manual refresh issued over HTTP.
	// Should exceed ProbeTimeout times the number of probes.
	RefreshHandlerTimeout = 20 * time.Second

	ServerRateLimit = 20
	ServerRateBurst = 40
)

// Outbound connections.
const (
	// HTTPClientTimeout applies to CLI requests against a running daemon.
	HTTPClientTimeout = 30 * time.Second

	// HubReconnectInitial is the first delay before redialing the hub.
	HubReconnectInitial = 2 * time.Second

	// HubReconnectMax caps the delay between hub redial attempts.
	HubReconnectMax = 30 * time.Second

	// HubDialTimeout bounds one TLS dial to the hub.
	HubDialTimeout = 10 * time.Second
)
