// Package main is the CLI entry point for Sofia, the conversational
// delivery pipeline for the Vivoly real-estate CRM.
//
// Start the daemon:
//
//	sofia serve --config sofia.yaml
//
// Check a running instance:
//
//	sofia status
//
// Configuration can also come from environment variables:
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for the fallback provider
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sofia",
		Short: "Sofia - automated WhatsApp assistant for real-estate leads",
		Long: `Sofia answers inbound WhatsApp messages with LLM-generated replies and
paces outbound delivery to stay under the platform's anti-abuse radar.

Providers: Anthropic (Claude) primary, OpenAI (GPT) fallback.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
