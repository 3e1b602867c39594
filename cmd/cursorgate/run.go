package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mercator-hq/cursorgate/pkg/cli"
	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/relay"
	"mercator-hq/cursorgate/pkg/server"
	"mercator-hq/cursorgate/pkg/telemetry/health"
	"mercator-hq/cursorgate/pkg/telemetry/logging"
	"mercator-hq/cursorgate/pkg/telemetry/metrics"
	"mercator-hq/cursorgate/pkg/telemetry/tracing"
	"mercator-hq/cursorgate/pkg/upstream"

	"github.com/spf13/cobra"
)

// telemetryShutdownTimeout bounds flushing buffered spans on exit.
const telemetryShutdownTimeout = 5 * time.Second

var runFlags struct {
	listenAddress string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The server listens on the configured address and serves /v1/chat/completions,
/v1/messages and /v1/models, plus /health, /ready, /version and the metrics
endpoint.

Examples:
  # Start with defaults and environment variables (PORT, API_KEYS, ...)
  cursorgate run

  # Start with a config file
  cursorgate run --config /etc/cursorgate/config.yaml

  # Override listen address
  cursorgate run --listen 127.0.0.1:8080

  # Validate config without starting server
  cursorgate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	store, err := credentials.Open(ctx, credentials.Options{
		InvalidFile:    cfg.Credentials.InvalidFile,
		Source:         cfg.Credentials.Pool(),
		Watch:          cfg.Credentials.WatchEnabled(),
		RotateSchedule: cfg.Credentials.RotateSchedule,
		UsageDB:        cfg.Credentials.UsageDB,
		Observer:       collector,
		Logger:         logger,
	})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open credential store: %w", err))
	}
	defer store.Close()

	client := upstream.NewClient(cfg.Upstream,
		upstream.WithTracer(tracer),
		upstream.WithRecorder(collector),
	)

	resolver := credentials.NewResolver(store)
	rl := relay.New(relay.Options{
		Resolver:        resolver,
		Upstream:        client,
		Invalidator:     store,
		Metrics:         collector,
		Tracer:          tracer,
		Logger:          logger,
		MetadataTimeout: cfg.Upstream.MetadataTimeout,
		Compress:        cfg.Upstream.Compress,
	})

	checker := health.New(0)
	checker.Register("credential_pool", poolCheck(store))

	printBanner(cmd, cfg, store)

	srv := server.NewServer(cfg, server.Dependencies{
		Relay:   rl,
		Keys:    resolver,
		Health:  checker,
		Metrics: collector,
		Version: versionInfo(),
	})
	err = srv.Start(ctx)

	rl.Wait()
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

// poolCheck fails readiness while no API key has a usable cookie.
func poolCheck(store *credentials.Store) health.CheckFunc {
	return func(context.Context) error {
		if store.Snapshot().Len() == 0 {
			return errors.New("no API keys in pool")
		}
		return nil
	}
}

func printBanner(cmd *cobra.Command, cfg *config.Config, store *credentials.Store) {
	out := cmd.OutOrStdout()
	pool := store.Snapshot()

	fmt.Fprintf(out, "cursorgate v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	}
	fmt.Fprintf(out, "✓ Credential pool: %d keys, %d invalid cookies\n", pool.Len(), len(store.ListInvalid()))
	fmt.Fprintf(out, "✓ Upstream: %s\n", cfg.Upstream.BaseURL)
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.MetricsEnabled() {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s\n", cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if pool.Len() == 0 {
		slog.Warn("credential pool is empty; every chat request will be rejected")
	}
}
