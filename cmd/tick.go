package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/billdesk/logger"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Generate every recurring invoice that has come due",
	Long: `Run one recurrence pass. Each template produces one invoice per missed
period, oldest first. Templates that fail are reported and left for the
next run.`,
	Example: `  # Catch up to the current time
  billdesk tick

  # Generate as of a given date
  billdesk tick --now 2024-06-30`,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)

	tickCmd.Flags().String("now", "", "Reference time (YYYY-MM-DD or RFC 3339, default: current time)")
}

func parseNow(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q, use YYYY-MM-DD or RFC 3339", raw)
	}
	return t.UTC(), nil
}

func runTick(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("now")
	now, err := parseNow(raw, time.Now())
	if err != nil {
		return err
	}
	log := logger.WithFields(map[string]interface{}{
		"component": "tick",
		"now":       now.Format(time.RFC3339),
	})

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.service.RunRecurrenceTick(cmd.Context(), now)
	if report == nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTickReport(report, now, a.currencies))
	if err != nil {
		log.Warn().Err(err).Int("failures", len(report.Failures)).Msg("tick finished with failures")
		return fmt.Errorf("%d template(s) failed", len(report.Failures))
	}
	return nil
}
