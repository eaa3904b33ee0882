// Package cmd holds the klinevault command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"klinevault/config"
	"klinevault/internal/metrics"
	"klinevault/logger"
)

var (
	configPath string
	envFile    string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "klinevault",
	Short: "Binance kline archive mirror",
	Long: `Mirror Binance public kline archives into a local time-series store.
    ex) klinevault sync --symbols BTCUSDT,ETHUSDT`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.GetLogger().WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// setup loads the environment and configuration shared by every command.
func setup(cmd *cobra.Command, _ []string) error {
	log := logger.GetLogger()

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	path := config.ResolvePath(configPath)
	loaded, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load configuration %s: %w", path, err)
	}
	cfg = loaded

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	env := config.AppEnvironment()
	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"environment": env,
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"config":      path,
		"category":    cfg.Data.AssetCategory,
		"command":     cmd.Name(),
	}).Info("starting klinevault")
	if config.IsProductionLike(env) && !strings.EqualFold(cfg.Logging.Format, "json") {
		log.WithFields(logger.Fields{"environment": env, "format": cfg.Logging.Format}).Warn("non-json log format in a production-like environment")
	}

	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		metrics.InitCloudWatch(cmd.Context(), cw.Region, cw.Namespace, cw.Dashboard, cfg.Data.AssetCategory)
	}
	return nil
}
