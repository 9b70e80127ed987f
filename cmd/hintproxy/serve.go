package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hintproxy/hintproxy/internal/config"
	"github.com/hintproxy/hintproxy/internal/eventloop"
	"github.com/hintproxy/hintproxy/internal/llm"
	"github.com/hintproxy/hintproxy/internal/logging"
	"github.com/hintproxy/hintproxy/internal/mitm"
)

var log = logging.For("serve")

func newServeCommand() *cobra.Command {
	var port int
	var mode string

	cmd := &cobra.Command{
		Use:   "serve [port]",
		Short: "Run the proxy until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				p, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid port %q: %w", args[0], err)
				}
				cfg.ListenPort = p
			}
			if cmd.Flags().Changed("port") {
				cfg.ListenPort = port
			}
			if cmd.Flags().Changed("mode") {
				cfg.Mode = config.Mode(mode)
			}
			if logLevel == "" {
				logLevel = os.Getenv("LOG_LEVEL")
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.SetLevel(cfg.LogLevel)

			return serve(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&mode, "mode", "", "tunnel or mitm (overrides config)")

	return cmd
}

func serve(cfg config.Config) error {
	var ca *mitm.CA
	if cfg.Mode == config.ModeMITM {
		loaded, err := mitm.LoadCA(cfg.CACertPath, cfg.CAKeyPath)
		if err != nil {
			return fmt.Errorf("load root CA (run \"hintproxy gen-ca\" first): %w", err)
		}
		ca = loaded
	}

	var orchestrator *llm.Orchestrator
	if cfg.LLMEndpoint != "" {
		host, port := splitEndpoint(cfg.LLMEndpoint)
		client := llm.NewClient(host, port, cfg.LLMAPIKey)
		built, err := llm.NewOrchestrator(client, cfg.LLMModel, cfg.ListenPort, cfg.CategoriesPath)
		if err != nil {
			return fmt.Errorf("load hint categories: %w", err)
		}
		orchestrator = built
	}

	loop, err := eventloop.New(cfg, ca, orchestrator)
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		<-sig
		log.Info("shutdown signal received")
		close(stop)
	}()

	log.WithField("port", cfg.ListenPort).WithField("mode", cfg.Mode).Info("hintproxy serving")
	return loop.Run(ctx, stop)
}

// splitEndpoint separates an optional ":port" suffix from an LLM endpoint
// configuration value; a bare host defers to Client's own 443 default.
func splitEndpoint(endpoint string) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
