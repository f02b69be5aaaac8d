package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/observability"
	"github.com/meshrider/meshgate/internal/trust"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the gateway can start: version info, configuration, trust policy and device registry.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid")

		mode, err := trust.ParseMode(cfg.Trust.Mode)
		if err == nil {
			_, err = trust.NewPolicy(mode, cfg.Trust.PinMap())
		}
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Trust policy invalid", err)
			return
		}
		logger.Info("✅ Trust policy ready", zap.String("mode", string(mode)))

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			// The server runs without a registry; report but do not fail.
			logger.Warn("⚠️  Device registry unavailable", zap.Error(err))
		} else {
			_ = st.Close()
			logger.Info("✅ Device registry reachable")
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
