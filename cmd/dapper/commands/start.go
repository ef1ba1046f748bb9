package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/config"
	"github.com/marmos91/dapper/pkg/runtime"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dapper server",
	Long: `Start the LDAP, RADIUS and API servers enabled in the configuration.

The server runs in the foreground until it receives SIGINT or SIGTERM, then
shuts every listener down gracefully.

Examples:
  # Start with the default config file
  dapper start

  # Start with a custom config file
  dapper start --config /etc/dapper/config.yaml

  # Override settings with environment variables
  DAPPER_LOGGING_LEVEL=DEBUG DAPPER_RADIUS_SECRET=s3cr3t dapper start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry.Tracing(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.Telemetry.Profiler(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Enabled {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}
	if !cfg.Metrics.Enabled {
		logger.Info("Metrics collection disabled")
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}

	tree := rt.Tree()
	logger.Info("Directory loaded",
		"provider", cfg.Datastore.Provider,
		"domains", len(tree.Domains()),
		"organizations", len(tree.Organizations()),
		"users", len(tree.Users()))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- rt.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
