// Package config loads hintproxy's TOML configuration file (SPEC_FULL
// §4.L), grounded on the folbricht-routedns CLI's config.go use of
// BurntSushi/toml's DecodeReader. Command-line flags are layered over the
// result by cmd/hintproxy, the same way that CLI layers --log-level over
// the config file.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hintproxy/hintproxy/internal/mitm"
	"github.com/hintproxy/hintproxy/pkg/constants"
	"github.com/hintproxy/hintproxy/pkg/errors"
)

// Mode selects whether intercepted pairs are MITM'd or only tunneled.
type Mode string

const (
	ModeMITM   Mode = "mitm"
	ModeTunnel Mode = "tunnel"
)

// Config is hintproxy's full runtime configuration.
type Config struct {
	ListenPort       int      `toml:"listen_port"`
	Mode             Mode     `toml:"mode"`
	TargetHost       string   `toml:"target_host"`
	BypassSubstrings []string `toml:"bypass_substrings"`

	CACertPath    string `toml:"ca_cert_path"`
	CAKeyPath     string `toml:"ca_key_path"`
	CategoriesPath string `toml:"categories_path"`

	LLMEndpoint string `toml:"llm_endpoint"`
	LLMAPIKey   string `toml:"llm_api_key"`
	LLMModel    string `toml:"llm_model"`

	CacheSize int `toml:"cache_size"`
	LogLevel  string `toml:"log_level"`
}

// Default returns a Config populated with the same defaults the reference
// proxy hard-codes (spec §9, SPEC_FULL §4.L).
func Default() Config {
	return Config{
		ListenPort:       8443,
		Mode:             ModeMITM,
		TargetHost:       "www.nytimes.com",
		BypassSubstrings: append([]string(nil), constants.DefaultBypassSubstrings...),
		CACertPath:       "certs/ca-cert.pem",
		CAKeyPath:        "certs/ca-key.pem",
		CategoriesPath:   "categories.txt",
		LLMModel:         constants.DefaultLLMModel,
		CacheSize:        constants.DefaultCacheSize,
		LogLevel:         "info",
	}
}

// Load decodes a TOML file at path over the default configuration. A
// missing file is not an error; the defaults are used as-is, matching the
// reference proxy's hard-coded fallback behavior when no config is
// supplied on the command line.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.NewIOError("read-config", err)
	}
	defer f.Close()

	if _, err := toml.DecodeReader(f, &cfg); err != nil {
		return cfg, errors.NewValidationError("invalid config file: " + err.Error())
	}
	return cfg, nil
}

// Validate checks the fields required for the proxy to start at all.
func (c Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.NewValidationError("listen_port must be between 1 and 65535")
	}
	if c.Mode != ModeMITM && c.Mode != ModeTunnel {
		return errors.NewValidationError("mode must be \"mitm\" or \"tunnel\"")
	}
	return nil
}

// ShouldBypass reports whether host should be tunneled instead of
// intercepted, per the configured bypass substrings.
func (c Config) ShouldBypass(host string) bool {
	return mitm.ShouldBypass(host, c.BypassSubstrings)
}
