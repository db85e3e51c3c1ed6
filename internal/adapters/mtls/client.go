// Package mtls maintains the mutual-TLS stream between gpumon and a hub.
// Messages in both directions are JSON values written back to back.
package mtls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/worldland/gpumon/internal/defaults"
	"github.com/worldland/gpumon/internal/logging"
)

// ErrNotConnected is returned by Send and Listen before Connect succeeds.
var ErrNotConnected = errors.New("not connected to hub")

// Command is a request pushed by the hub, such as "refresh" or "toggle".
type Command struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// CommandAck answers a Command.
type CommandAck struct {
	Type      string         `json:"type"`
	CommandID string         `json:"command_id"`
	Status    string         `json:"status"` // "ok" or "error"
	Error     string         `json:"error,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Client handles the mTLS connection to the hub.
type Client struct {
	hubAddr   string
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder

	// OnCommand is called for every command received in Listen.
	OnCommand func(cmd Command) CommandAck
}

// NewClient creates a client presenting cert and trusting rootCAs. Only TLS 1.3 is accepted.
func NewClient(hubAddr string, cert tls.Certificate, rootCAs *x509.CertPool) *Client {
	return &Client{
		hubAddr: hubAddr,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      rootCAs,
			MinVersion:   tls.VersionTLS13,
			MaxVersion:   tls.VersionTLS13,
		},
		logger: slog.Default(),
	}
}

// WithLogger sets the client's logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = logging.OrDefault(l)
	return c
}

// HandleCommands sets the handler Listen uses for incoming commands.
func (c *Client) HandleCommands(fn func(cmd Command) CommandAck) {
	c.OnCommand = fn
}

// LoadCredentials reads a PEM key pair and CA bundle for NewClient.
func LoadCredentials(certFile, keyFile, caFile string) (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("failed to parse CA certificate %s", caFile)
	}
	return cert, pool, nil
}

// Connect dials the hub and completes the handshake. An existing connection is replaced.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: defaults.HubDialTimeout},
		Config:    c.tlsConfig,
	}
	raw, err := dialer.DialContext(ctx, "tcp", c.hubAddr)
	if err != nil {
		return fmt.Errorf("TLS dial %s failed: %w", c.hubAddr, err)
	}
	conn := raw.(*tls.Conn)
	if err := conn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.mu.Unlock()

	c.logger.Info("connected to hub", "addr", c.hubAddr)
	return nil
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one JSON message to the hub. A write error drops the connection.
func (c *Client) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.enc.Encode(msg); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("send to hub failed: %w", err)
	}
	return nil
}

// Listen reads commands until the connection fails or is closed, answering
// each with OnCommand's ack. It returns the read error that ended the stream.
func (c *Client) Listen() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	dec := json.NewDecoder(conn)
	for {
		var cmd Command
		if err := dec.Decode(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.logger.Warn("discarding malformed hub message", "error", err)
				dec = json.NewDecoder(conn)
				continue
			}
			c.dropIf(conn)
			return err
		}

		ack := CommandAck{CommandID: cmd.ID, Status: "ok"}
		if c.OnCommand != nil {
			ack = c.OnCommand(cmd)
		}
		ack.Type = "ack"
		if err := c.Send(ack); err != nil {
			c.logger.Warn("failed to send ack", "command_id", cmd.ID, "error", err)
		}
	}
}

func (c *Client) dropIf(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
