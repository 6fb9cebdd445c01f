package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <invoice-id>",
	Short: "Show total, paid and outstanding amounts of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid invoice id %q", args[0])
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		inv, err := a.service.GetInvoice(cmd.Context(), id)
		if err != nil {
			return err
		}
		bal, err := a.service.GetBalance(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderBalance(inv, bal, a.currencies))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
