package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 8443 {
		t.Fatalf("expected default listen port, got %d", cfg.ListenPort)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hintproxy.toml")
	contents := `
listen_port = 9999
mode = "tunnel"
target_host = "example.com"
bypass_substrings = ["icloud", "custom"]
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 9999 {
		t.Fatalf("expected overlaid listen port, got %d", cfg.ListenPort)
	}
	if cfg.Mode != ModeTunnel {
		t.Fatalf("expected tunnel mode, got %v", cfg.Mode)
	}
	if !cfg.ShouldBypass("www.icloud.com") {
		t.Fatalf("expected icloud to be bypassed")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for invalid port")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for invalid mode")
	}
}
