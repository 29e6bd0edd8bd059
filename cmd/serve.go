package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpin/taskpin/internal/config"
	"github.com/taskpin/taskpin/internal/instrumentation"
	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		listenAddr     string
		metricsAddr    string
		metricsEnabled bool
		debugMode      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the taskpin daemon",
		Long: `Run the taskpin daemon. The daemon answers typed messages on
POST /api/message, completes OAuth authorization on GET /oauth/callback,
and reports health on /healthz and /readyz.

Configuration comes from TASKPIN_* environment variables; the flags below
override the corresponding variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if debugMode {
				cfg.LogLevel = "debug"
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", "127.0.0.1:8585", "Message and OAuth callback address. Can also use TASKPIN_LISTEN_ADDR env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use TASKPIN_METRICS_ADDR env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use TASKPIN_METRICS_ENABLED env var.")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

func runServe(cfg *config.Config) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Initialize instrumentation
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !cfg.MetricsEnabled {
		instrConfig.Enabled = false
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("creating instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	serverContext, err := server.NewServerContext(shutdownCtx, cfg, logger, provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	metricsErr := make(chan error, 1)
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("creating metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
		}()
	}

	healthChecker := server.NewHealthChecker(serverContext)

	srv, err := server.NewServer(server.ServerConfig{
		Addr:    cfg.ListenAddr,
		Context: serverContext,
		Health:  healthChecker,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
		close(serverDone)
	}()

	logger.Info("daemon started",
		slog.String("addr", cfg.ListenAddr),
		slog.String("version", version))

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("message server stopped: %w", err)
		}
		return nil
	case err := <-metricsErr:
		return fmt.Errorf("metrics server stopped: %w", err)
	}

	healthChecker.SetReady(false)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("message server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}
	return nil
}
