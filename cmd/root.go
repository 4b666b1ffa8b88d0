package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fundflow",
	Short: "Crypto funding intelligence engine",
	Long:  "Discovers crypto projects across funding trackers, on-chain metric APIs, and code hosts, reconciles conflicting source data into canonical records with field-level provenance, and grades them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
