package mitm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestHandshakeClientPresentsMintedLeaf(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca-cert.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")
	if err := GenerateCA(certPath, keyPath); err != nil {
		t.Fatalf("GenerateCA failed: %v", err)
	}
	ca, err := LoadCA(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCA failed: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srvErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			srvErr <- err
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = ca.HandshakeClient(ctx, conn)
		srvErr <- err
	}()

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)

	clientConn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{
		ServerName: "intercepted.example.com",
		RootCAs:    roots,
	})
	if err != nil {
		t.Fatalf("client handshake failed: %v", err)
	}
	defer clientConn.Close()

	if err := <-srvErr; err != nil {
		t.Fatalf("HandshakeClient failed: %v", err)
	}

	peerCerts := clientConn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		t.Fatalf("expected at least one peer certificate")
	}
	if err := peerCerts[0].VerifyHostname("intercepted.example.com"); err != nil {
		t.Fatalf("leaf does not match requested SNI: %v", err)
	}
}

func TestServerConfigRejectsMissingSNI(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca-cert.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")
	if err := GenerateCA(certPath, keyPath); err != nil {
		t.Fatalf("GenerateCA failed: %v", err)
	}
	ca, err := LoadCA(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCA failed: %v", err)
	}

	cfg := ca.ServerConfig()
	if _, err := cfg.GetCertificate(&tls.ClientHelloInfo{ServerName: ""}); err == nil {
		t.Fatalf("expected error for empty SNI")
	}
}
