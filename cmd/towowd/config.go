package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/towow/negotiation/internal/config"
)

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate towowd configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a towowd configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: engine.max_center_rounds=%d encoder.mode=%s adapter.source=%s\n",
				cfg.Engine.MaxCenterRounds, cfg.Encoder.Mode, cfg.Adapter.Source)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
