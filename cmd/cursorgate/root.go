package main

import (
	"fmt"
	"os"

	"mercator-hq/cursorgate/pkg/cli"
	"mercator-hq/cursorgate/pkg/config"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "cursorgate",
	Short: "OpenAI and Anthropic compatible gateway for Cursor",
	Long: `Cursorgate translates OpenAI chat completions and Anthropic Messages
requests into the Cursor chat protocol and relays the answers back, streamed
or batched, in the caller's format.

API keys issued by the gateway map to pools of Cursor session cookies.
Cookies rejected upstream are quarantined in the invalid cookie file and
skipped until an operator clears them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code for its error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig initializes the process-wide configuration and applies the
// global flag overrides.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		name := cfgFile
		if name == "" {
			name = "environment configuration"
		}
		return nil, cli.WrapConfigError(name, err)
	}
	cfg := config.GetConfig()

	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, cli.NewConfigError("--log-level", err.Error())
		}
	}
	return cfg, nil
}
