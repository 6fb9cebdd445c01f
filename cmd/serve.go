package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yourusername/billdesk/database"
	"github.com/yourusername/billdesk/logger"
	"github.com/yourusername/billdesk/scheduler"
	"github.com/yourusername/billdesk/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the recurrence scheduler",
	Example: `  # Serve with migrations applied first
  billdesk serve --migrate

  # API only, ticks driven externally
  billdesk serve --no-scheduler`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("migrate", false, "Apply database migrations before serving")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not run recurrence ticks in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
		log.Info().Msg("database migrated")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan error, 1)
	if noScheduler, _ := cmd.Flags().GetBool("no-scheduler"); noScheduler {
		close(schedulerDone)
	} else {
		runner, closeLease, err := newRunner(a)
		if err != nil {
			return err
		}
		defer closeLease()
		go func() { schedulerDone <- runner.Run(ctx) }()
	}

	srv := server.NewServer(server.Dependencies{
		Config:     cfg,
		Service:    a.service,
		Clients:    a.clients,
		Currencies: a.currencies,
		Logger:     logger.WithComponent("server"),
	})
	serveErr := srv.Run(ctx)
	stop()
	if err := <-schedulerDone; err != nil {
		log.Error().Err(err).Msg("scheduler stopped with error")
	}
	return serveErr
}

// newRunner builds the recurrence runner, guarded by a Redis lease when
// redis.addr is configured.
func newRunner(a *app) (*scheduler.Runner, func() error, error) {
	log := logger.WithComponent("scheduler")
	if cfg.Redis.Addr == "" {
		return scheduler.NewRunner(a.service, nil, cfg.Billing.SchedulerInterval, log), func() error { return nil }, nil
	}
	client, err := scheduler.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}
	lease := scheduler.NewRedisLease(client, cfg.Redis.LeaseKey, cfg.Redis.LeaseTTL)
	log.Info().Str("key", cfg.Redis.LeaseKey).Msg("recurrence ticks guarded by redis lease")
	return scheduler.NewRunner(a.service, lease, cfg.Billing.SchedulerInterval, log), client.Close, nil
}
