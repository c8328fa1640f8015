package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bisq-support/review-engine/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "review-engine",
	Short: "Answer review and FAQ curation engine",
	Long:  "Scores generated support answers, routes them into review queues, tracks auto-send calibration, and curates near-duplicate FAQ candidates.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		zap.L().Debug("config loaded",
			zap.String("path", configPath),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Float64("auto_approve_threshold", cfg.Routing.AutoApproveThreshold),
			zap.Int("calibration_samples", cfg.Calibration.SamplesRequired),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "path to review.yaml (defaults to ./config.yaml)")
	f.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
