package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yourusername/billdesk/database"
	"github.com/yourusername/billdesk/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the billing tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("migrate")
		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("database migrated")
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ migrations applied"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
