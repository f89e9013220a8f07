package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/core/store"
	"github.com/keygate/keygate/internal/gateway"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/ratelimit"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return fmt.Errorf("telemetry system not initialized")
	}
	return nil
}

// counterHealthChecker verifies the rate-limit counter store is reachable.
// The probe key expires almost immediately and never collides with request
// counters, which all carry the rate_limit: prefix.
type counterHealthChecker struct {
	counters ratelimit.CounterStore
}

func (c counterHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := c.counters.Increment(ctx, "health:ping", time.Second)
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

On shutdown the HTTP server drains in-flight requests, the health prober
stops, and the store and rate-limit counters are closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		observability.InitServerLogger("keygate", cfg.Logging.Level)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics("keygate", cfg.Metrics.Port); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
				return fmt.Errorf("metrics initialization failed: %w", err)
			}
		}

		observability.ServerLogger.Info("Initializing gateway",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Bool("redis_counters", cfg.Redis.Addr != ""))

		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if err := st.Migrate(cmd.Context()); err != nil {
			_ = st.Close()
			return fmt.Errorf("migrate store: %w", err)
		}

		counters, err := newCounterStore(cmd.Context(), cfg)
		if err != nil {
			_ = st.Close()
			return err
		}

		pipeline := gateway.NewPipeline(
			gateway.NewAuthenticator(st),
			ratelimit.NewLimiter(counters),
			gateway.NewForwarder(st, nil),
			gateway.NewRecorder(st, cfg.Gateway.BodyCaptureLimit),
		)

		prober := gateway.NewProber(st, nil, cfg.Gateway.ProbeTimeout, cfg.Gateway.HealthInterval)
		prober.Run()

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("store", st)
		hm.RegisterChecker("counters", counterHealthChecker{counters: counters})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Deps{
			Pipeline:         pipeline,
			Keys:             st,
			Services:         st,
			Audit:            st,
			Prober:           prober,
			Health:           hm,
			DefaultPerMinute: cfg.Gateway.DefaultPerMinute,
			DefaultPerHour:   cfg.Gateway.DefaultPerHour,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Graceful shutdown handlers run LIFO: HTTP server first, then the
		// prober, then storage, and the logger flush last.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing store and rate-limit counters...")
			if err := counters.Close(); err != nil {
				observability.ServerLogger.Warn("Failed to close counter store", zap.Error(err))
			}
			return st.Close()
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Stopping health prober...")
			prober.Stop()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return fmt.Errorf("config reload failed: %w", err)
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			// TODO: propagate reloaded quotas and log level without restart
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	},
}

// newCounterStore picks the rate-limit backend: Redis when configured, so
// replicas share windows, otherwise in-process memory.
func newCounterStore(ctx context.Context, cfg *config.Config) (ratelimit.CounterStore, error) {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryStore(), nil
	}

	counters, err := ratelimit.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect rate-limit store: %w", err)
	}
	observability.ServerLogger.Info("Using Redis rate-limit counters",
		zap.String("addr", cfg.Redis.Addr))
	return counters, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
