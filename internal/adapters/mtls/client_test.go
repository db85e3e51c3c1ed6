package mtls_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/worldland/gpumon/internal/adapters/mtls"
)

// Test helper: Generate test CA certificate
func generateTestCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey, []byte) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	caTemplate := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "Test CA",
			Organization: []string{"gpumon test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		t.Fatalf("failed to parse CA certificate: %v", err)
	}

	caCertPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCertDER})

	return caCert, caKey, caCertPEM
}

// Test helper: Generate client/server certificate signed by CA
func generateCert(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, commonName string, isServer bool) tls.Certificate {
	t.Helper()

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"gpumon"},
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	if isServer {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.DNSNames = []string{"localhost"}
		// Add IP SAN for 127.0.0.1
		template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	} else {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &certKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, _ := x509.MarshalECPrivateKey(certKey)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("failed to create key pair: %v", err)
	}

	return cert
}

// startHub serves one mTLS connection with handle and returns the hub address.
func startHub(t *testing.T, minVersion, maxVersion uint16, handle func(conn net.Conn)) (string, tls.Certificate, *x509.CertPool) {
	t.Helper()

	caCert, caKey, caCertPEM := generateTestCA(t)
	serverCert := generateCert(t, caCert, caKey, "localhost", true)
	clientCert := generateCert(t, caCert, caKey, "test-node", false)

	caPool := x509.NewCertPool()
	caPool.AppendCertsFromPEM(caCertPEM)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
	}

	listener, err := tls.Listen("tcp", "localhost:0", tlsConfig)
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if tc, ok := conn.(*tls.Conn); ok {
			if err := tc.Handshake(); err != nil {
				return
			}
		}
		handle(conn)
	}()

	return listener.Addr().String(), clientCert, caPool
}

func TestClient_ConnectsToHub(t *testing.T) {
	hubAddr, clientCert, caPool := startHub(t, tls.VersionTLS13, tls.VersionTLS13, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
	})

	client := mtls.NewClient(hubAddr, clientCert, caPool)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	if !client.Connected() {
		t.Fatal("expected client to report connected")
	}
}

func TestClient_SendsTelemetry(t *testing.T) {
	received := make(chan map[string]any, 1)
	hubAddr, clientCert, caPool := startHub(t, tls.VersionTLS13, tls.VersionTLS13, func(conn net.Conn) {
		var msg map[string]any
		if err := json.NewDecoder(conn).Decode(&msg); err == nil {
			received <- msg
		}
	})

	client := mtls.NewClient(hubAddr, clientCert, caPool)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.Send(map[string]any{"type": "gpu_telemetry", "payload": map[string]any{"node_id": "n1"}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg["type"] != "gpu_telemetry" {
			t.Errorf("expected type gpu_telemetry, got %v", msg["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for telemetry")
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	client := mtls.NewClient("localhost:1", tls.Certificate{}, x509.NewCertPool())

	if err := client.Send("x"); err != mtls.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_ReceivesCommandAndAcks(t *testing.T) {
	acks := make(chan mtls.CommandAck, 1)
	hubAddr, clientCert, caPool := startHub(t, tls.VersionTLS13, tls.VersionTLS13, func(conn net.Conn) {
		command := mtls.Command{ID: "cmd-123", Type: "refresh"}
		data, _ := json.Marshal(command)
		conn.Write(append(data, '\n'))

		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		var ack mtls.CommandAck
		if json.Unmarshal(line, &ack) == nil {
			acks <- ack
		}
	})

	commandReceived := make(chan mtls.Command, 1)
	client := mtls.NewClient(hubAddr, clientCert, caPool)
	client.OnCommand = func(cmd mtls.Command) mtls.CommandAck {
		commandReceived <- cmd
		return mtls.CommandAck{CommandID: cmd.ID, Status: "ok"}
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	go client.Listen()

	select {
	case cmd := <-commandReceived:
		if cmd.Type != "refresh" {
			t.Errorf("expected command type 'refresh', got %q", cmd.Type)
		}
		if cmd.ID != "cmd-123" {
			t.Errorf("expected command ID 'cmd-123', got %q", cmd.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for command")
	}

	select {
	case ack := <-acks:
		if ack.Type != "ack" || ack.CommandID != "cmd-123" || ack.Status != "ok" {
			t.Errorf("unexpected ack %+v", ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack")
	}
}

func TestClient_EnforcesTLS13(t *testing.T) {
	hubAddr, clientCert, caPool := startHub(t, tls.VersionTLS12, tls.VersionTLS12, func(conn net.Conn) {})

	client := mtls.NewClient(hubAddr, clientCert, caPool)

	err := client.Connect(context.Background())
	if err == nil {
		client.Close()
		t.Fatal("connection should fail with TLS 1.2 server (client requires TLS 1.3)")
	}
}
