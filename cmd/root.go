package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yourusername/billdesk/config"
	"github.com/yourusername/billdesk/logger"
)

var version = "0.1.0"

var (
	configDir string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "billdesk",
	Short: "Invoice lifecycle and payment reconciliation service",
	Long: `billdesk issues invoices, applies payments, reviews client payment
proofs and regenerates recurring invoices.

Configuration is read from config.yaml, .env and BILLDESK_* environment
variables (for example BILLDESK_DATABASE_DSN).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var paths []string
		if configDir != "" {
			paths = []string{configDir}
		}
		loaded, err := config.LoadConfig(paths...)
		if err != nil {
			return err
		}
		if err := logger.Setup(logConfig(loaded.Log)); err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// logConfig fills unset log settings from the logger defaults.
func logConfig(c config.LogConfig) logger.LogConfig {
	out := logger.DefaultConfig()
	if c.Level != "" {
		out.Level = c.Level
	}
	if c.Format != "" {
		out.Format = c.Format
	}
	if c.TimeFormat != "" {
		out.TimeFormat = c.TimeFormat
	}
	if c.Output != "" {
		out.Output = c.Output
	}
	return out
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory containing config.yaml")
}
