package mitm

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateAndLoadCA(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca-cert.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")

	if err := GenerateCA(certPath, keyPath); err != nil {
		t.Fatalf("GenerateCA failed: %v", err)
	}

	if _, err := os.Stat(certPath); err != nil {
		t.Fatalf("expected cert file to exist: %v", err)
	}

	ca, err := LoadCA(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCA failed: %v", err)
	}
	if !ca.cert.IsCA {
		t.Fatalf("expected generated root to be a CA certificate")
	}
}

func TestLeafForSignedByRoot(t *testing.T) {
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

	leaf, err := ca.LeafFor("example.com")
	if err != nil {
		t.Fatalf("LeafFor failed: %v", err)
	}

	leafCert, err := x509.ParseCertificate(leaf.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse leaf: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)
	if _, err := leafCert.Verify(x509.VerifyOptions{DNSName: "example.com", Roots: roots}); err != nil {
		t.Fatalf("leaf did not verify against root: %v", err)
	}
}

func TestLeafForIsCached(t *testing.T) {
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

	first, _ := ca.LeafFor("example.com")
	second, _ := ca.LeafFor("example.com")
	if &first.Certificate[0][0] != &second.Certificate[0][0] {
		t.Fatalf("expected cached leaf to be reused")
	}
}

func TestShouldBypass(t *testing.T) {
	subs := []string{"icloud", "play", "api"}

	cases := map[string]bool{
		"www.icloud.com":    true,
		"play.google.com":   true,
		"api.example.com":   true,
		"www.example.com":   false,
	}
	for host, want := range cases {
		if got := ShouldBypass(host, subs); got != want {
			t.Fatalf("ShouldBypass(%q) = %v, want %v", host, got, want)
		}
	}
}
