package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/appid"
	errwrap "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/gateway"
	"github.com/meshrider/meshgate/internal/metrics"
	"github.com/meshrider/meshgate/internal/observability"
	"github.com/meshrider/meshgate/internal/server"
	"github.com/meshrider/meshgate/internal/server/handlers"
	servermw "github.com/meshrider/meshgate/internal/server/middleware"
	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	identity *appid.Identity
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	if err := i.identity.Validate(); err != nil {
		return errwrap.NewConfigInvalidError(err.Error())
	}
	return nil
}

// limiterHealthChecker fails when the limiter is missing or has been closed.
type limiterHealthChecker struct {
	limiter *gateway.RateLimiter
}

func (l limiterHealthChecker) CheckHealth(ctx context.Context) error {
	if l.limiter == nil {
		return errwrap.NewInternalError("rate limiter not initialized")
	}
	if limit, _ := l.limiter.Limit(); limit <= 0 {
		return errwrap.NewConfigInvalidError("rate limiter has no quota")
	}
	return nil
}

// storeHealthChecker pings the device registry.
type storeHealthChecker struct {
	store *store.Store
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return errwrap.WrapExternalService(ctx, err, "device registry unreachable")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the dashboard gateway with graceful shutdown support.

Routes:
  POST /api/proxy/ubus     rate-limited ubus JSON-RPC relay
  GET|POST /api/proxy/*    passthrough relay (gateway.passthrough.enabled)
  POST /api/chat           completion relay (needs the key named by chat.api_key_env)

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (restart to apply gateway settings)`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "config invalid")
	}

	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:   identity.BinaryName,
		Level:     cfg.Logging.Level,
		Profile:   cfg.Logging.Profile,
		Namespace: namespace,
	})
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	registry, pins := registryPins(ctx, cfg)

	rt, err := buildGatewayRuntime(cfg, pins, os.Getenv)
	if err != nil {
		if registry != nil {
			_ = registry.Close()
		}
		return errwrap.WrapConfigInvalid(ctx, err, "gateway setup failed")
	}

	limit, window := rt.limiter.Limit()
	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("default_target", cfg.Gateway.DefaultTarget),
		zap.Int("rate_limit", limit),
		zap.Duration("rate_window", window),
		zap.String("trust_mode", string(rt.policy.Mode())),
		zap.Int("pinned_devices", rt.policy.PinCount()),
		zap.Bool("chat_enabled", rt.chat.Enabled()))

	warnOpenSurfaces(cfg.Gateway.Passthrough.Enabled, cfg.Gateway.Passthrough.RateLimited, rt.policy.Mode())

	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("app_identity", identityHealthChecker{identity: identity})
	hm.RegisterChecker("rate_limiter", limiterHealthChecker{limiter: rt.limiter})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	if registry != nil {
		hm.RegisterOptionalChecker("store", storeHealthChecker{store: registry})
	}
	if !cfg.Health.Enabled {
		hm = nil
	}

	handlers.SetAppIdentity(identity)

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Gateway: &handlers.GatewayHandler{
			Limiter:                rt.limiter,
			Devices:                rt.devices,
			PassthroughRateLimited: cfg.Gateway.Passthrough.RateLimited,
		},
		Chat:               &handlers.ChatHandler{Service: rt.chat},
		Health:             hm,
		CORS:               servermw.CORSOptions{AllowOrigin: cfg.Gateway.CORS.AllowOrigin},
		PassthroughEnabled: cfg.Gateway.Passthrough.Enabled,
		AdminToken:         os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN"),
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: HTTP server, then gateway, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		rt.Close()
		if registry != nil {
			if err := registry.Close(); err != nil {
				logger.Warn("Failed to close device registry", zap.Error(err))
			}
		}
		logger.Info("Gateway resources released")
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		reloaded, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		if err := applyReloadedPins(rt.policy, reloaded.Trust.PinMap()); err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "pin reload failed")
		}

		logger.Info("Configuration reloaded; pins applied, other gateway settings need a restart",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Int("pinned_devices", rt.policy.PinCount()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// warnOpenSurfaces logs the relay surfaces an operator should know about.
func warnOpenSurfaces(passthrough, passthroughLimited bool, mode trust.Mode) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}
	if passthrough {
		logger.Warn("Passthrough route /api/proxy/* is an unauthenticated relay to any reachable device",
			zap.Bool("rate_limited", passthroughLimited))
	}
	if mode == trust.ModeInsecure {
		logger.Warn("TLS verification disabled for device traffic",
			zap.String("trust_mode", string(mode)),
			zap.String("hint", "set trust.mode=pinned and pin devices with 'devices pin'"))
	}
}

// applyReloadedPins adds or replaces pins on a running policy.
func applyReloadedPins(policy *trust.Policy, pins map[string]string) error {
	for host, fp := range pins {
		if err := policy.SetPin(host, fp); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
