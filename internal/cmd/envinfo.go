package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/config"
	"github.com/meshrider/meshgate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== Meshgate Environment Information ===")
		log.Info("")

		identity := GetAppIdentity()
		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = "(none; defaults from " + config.DefaultConfigDir() + ")"
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + configFile)
		log.Info("  Server:         "+fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info(fmt.Sprintf("  Metrics:        enabled=%t port=%d", cfg.Metrics.Enabled, cfg.Metrics.Port))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info("")

		gw := cfg.Gateway
		log.Info("Gateway:")
		log.Info("  Default Target: " + gw.DefaultTarget)
		log.Info(fmt.Sprintf("  ubus:           %s://<target>%s timeout=%s", gw.Ubus.Scheme, gw.Ubus.Path, gw.Ubus.Timeout))
		log.Info(fmt.Sprintf("  Rate Limit:     %d per %s (max %d clients)", gw.RateLimit.Requests, gw.RateLimit.Window, gw.RateLimit.MaxClients))
		log.Info(fmt.Sprintf("  Passthrough:    enabled=%t scheme=%s rate_limited=%t timeout=%s",
			gw.Passthrough.Enabled, gw.Passthrough.Scheme, gw.Passthrough.RateLimited, gw.Passthrough.Timeout))
		log.Info("  CORS Origin:    " + gw.CORS.AllowOrigin)
		log.Info("")

		log.Info("Trust:")
		log.Info("  Mode:           "+cfg.Trust.Mode, zap.String("trust_mode", cfg.Trust.Mode))
		log.Info(fmt.Sprintf("  Config Pins:    %d", len(cfg.Trust.Pins)))
		log.Info("  DNS Cache TTL:  " + cfg.Trust.DNSCacheTTL.String())
		log.Info("")

		log.Info("Chat:")
		log.Info("  Provider:       " + cfg.Chat.Provider)
		log.Info("  Base URL:       " + cfg.Chat.BaseURL)
		log.Info("  Model:          " + cfg.Chat.Model)
		keyState := "(not set)"
		if strings.TrimSpace(os.Getenv(cfg.Chat.APIKeyEnv)) != "" {
			keyState = "(set)"
		}
		log.Info(fmt.Sprintf("  %s: %s", cfg.Chat.APIKeyEnv, keyState))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
