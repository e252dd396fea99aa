package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pqaidevteam/pqai-db/internal/config"
	"github.com/pqaidevteam/pqai-db/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "pqai-db",
	Short:         "Patent document, drawing and thumbnail store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			os.Setenv("CONFIG_FILE", path)
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := logging.Init(loaded.Log); err != nil {
			return fmt.Errorf("logging init error: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pqai-db:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file (overrides CONFIG_FILE)")
}
