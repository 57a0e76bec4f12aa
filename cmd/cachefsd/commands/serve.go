package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/cachefsd/internal/config"
	"github.com/marmos91/cachefsd/internal/handler"
	"github.com/marmos91/cachefsd/internal/logger"
	"github.com/marmos91/cachefsd/internal/metrics"
	"github.com/marmos91/cachefsd/internal/server"
	"github.com/marmos91/cachefsd/internal/session"
	"github.com/marmos91/cachefsd/internal/store"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cachefsd server",
	Long: `Start the cachefsd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/cachefsd/config.yaml.

Examples:
  # Start with default config
  cachefsd serve

  # Start with custom config file
  cachefsd serve --config /etc/cachefsd/config.yaml

  # Start with environment variable overrides
  CACHEFSD_LOGGING_LEVEL=DEBUG cachefsd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Path,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("cachefsd starting",
		"socket_path", cfg.SocketPath,
		"max_files", cfg.MaxFiles,
		"max_bytes", uint64(cfg.MaxBytes),
		"workers", cfg.Workers,
		"replacement_policy", cfg.ReplacementPolicy,
		"config_source", getConfigSource(GetConfigFile()),
	)

	policy, ok := store.ParsePolicy(cfg.ReplacementPolicy)
	if !ok {
		return fmt.Errorf("invalid replacement_policy %q", cfg.ReplacementPolicy)
	}

	st := store.New(cfg.MaxFiles, int(cfg.MaxBytes), policy)
	reg := session.NewRegistry()
	h := handler.New(st, reg)

	var m *metrics.Metrics
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		m = metrics.New(promReg)
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr, promReg)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				logger.Warn("metrics server stopped", logger.Err(err))
			}
		}()
		logger.Info("metrics enabled", "addr", cfg.Metrics.Addr)
	} else {
		logger.Info("metrics disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(cfg, st, reg, h, m)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		signal.Stop(sigCh)
		cancel()
	}()

	err = srv.Serve(ctx)

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if shutErr := metricsSrv.Shutdown(shutdownCtx); shutErr != nil {
			logger.Warn("metrics server shutdown error", logger.Err(shutErr))
		}
	}

	return err
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
