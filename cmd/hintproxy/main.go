// Command hintproxy runs the intercepting hint proxy (SPEC_FULL §4.N),
// grounded on folbricht-routedns's cmd/routedns/main.go: a cobra root
// command with persistent flags layered over a TOML config file, plus
// os/signal-driven graceful shutdown.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hintproxy/hintproxy/internal/logging"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "hintproxy",
		Short: "Intercepting HTTPS proxy with LLM-backed hint injection",
		Long: `hintproxy terminates TLS from a client, re-originates TLS to the
origin, and for a configured target host mutates the decrypted HTML
response to inject an LLM-backed hint overlay. A tunnel mode forwards
encrypted bytes untouched.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to hintproxy.toml (defaults used if absent)")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override the configured log level (trace, debug, info, warn, error)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newGenCACommand())

	if err := root.Execute(); err != nil {
		logging.For("main").WithField("error", err).Error("command failed")
		os.Exit(1)
	}
}
