// Package cmd implements the CLI commands for PromptPipe using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/promptpipe/config"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "promptpipe",
	Short: "PromptPipe: turn pasted content into a chat submission",
	Long: `PromptPipe is the ingestion core of a chat prompt widget. It normalizes pasted
markup into Markdown with attachment references, fits images under a byte budget,
and assembles the outbound submission payload.

Usage:
  promptpipe normalize <file|url|-> [flags]
  promptpipe reencode <image> [flags]
  promptpipe paste --html page.html --image shot.png [flags]
  promptpipe submit --text "hello" [files...]`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log_level", "", "Override the configured log level (debug, info, warn, error, off)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config and applies --log_level.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return cfg, zerolog.Nop(), err
		}
	}
	return cfg, cfg.Logger(os.Stderr), nil
}
