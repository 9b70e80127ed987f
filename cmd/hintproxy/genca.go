package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hintproxy/hintproxy/internal/config"
	"github.com/hintproxy/hintproxy/internal/mitm"
)

func newGenCACommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "gen-ca",
		Short: "Mint a root CA keypair for MITM mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(cfg.CACertPath); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.CACertPath)
				}
			}

			if err := os.MkdirAll(filepath.Dir(cfg.CACertPath), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.CAKeyPath), 0o755); err != nil {
				return err
			}

			if err := mitm.GenerateCA(cfg.CACertPath, cfg.CAKeyPath); err != nil {
				return fmt.Errorf("generate root CA: %w", err)
			}

			fmt.Printf("wrote %s and %s\n", cfg.CACertPath, cfg.CAKeyPath)
			fmt.Println("trust the certificate on client devices before running \"hintproxy serve\" in mitm mode")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing root CA")

	return cmd
}
