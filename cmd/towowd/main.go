// Command towowd is the process entry point for a towow negotiation engine:
// load configuration, wire the builder, and run a demo negotiation loop.
//
// # Basic usage
//
//	towowd serve --config towow.yaml
//	towowd config validate --config towow.yaml
//
// # Environment variables
//
//   - TOWOW_PLATFORM_LLM_API_KEY: Anthropic API key for the platform coordinator
//   - TOWOW_ADAPTER_API_KEY: Anthropic API key for per-agent client adapters
//   - TOWOW_LOG_LEVEL, TOWOW_LOG_FORMAT: logging overrides
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() for testability.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "towowd",
		Short:        "towowd - multi-agent negotiation engine",
		Long:         "towowd runs a resonance-matched, LLM-coordinated negotiation engine over a registry of agent adapters.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd(), buildConfigCmd())
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("TOWOW_CONFIG"); env != "" {
		return env
	}
	return ""
}
