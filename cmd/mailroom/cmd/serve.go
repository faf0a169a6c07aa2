package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailroom/mailroom/internal/api"
	"github.com/mailroom/mailroom/internal/auth"
	"github.com/mailroom/mailroom/internal/mailbox"
	"github.com/mailroom/mailroom/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the mailroom HTTP API server in the foreground.

Besides serving requests, the server runs maintenance jobs on the cron
schedule in [sessions] reap_schedule: idle mailboxes (and their caches) are
dropped after [sessions] idle_timeout, as are per-client rate limiters.

Cron format: minute hour day-of-month month day-of-week
  Examples:
    */5 * * * *   = Every 5 minutes
    @every 10m    = Every 10 minutes
    0 * * * *     = Hourly

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	authMgr, err := auth.NewManager(ctx, authConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("create oauth manager: %w", err)
	}
	sessions := auth.NewSessions(auth.CookieStore{Secure: cfg.SecureCookies()}, authMgr, logger)
	registry := mailbox.NewRegistry(newDialer(cfg, logger), mailboxOptions(cfg, logger)...)

	apiServer := api.NewServer(cfg, authMgr, sessions, registry, logger)

	sched := scheduler.New().WithLogger(logger)
	if err := addMaintenanceJobs(sched, registry, apiServer); err != nil {
		return err
	}
	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	fmt.Printf("mailroom started\n")
	fmt.Printf("  API server: http://%s\n", cfg.Addr())
	fmt.Printf("  Front end:  %s\n", cfg.Server.AppURL)
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next run at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	case runErr = <-serverErr:
		logger.Error("API server error", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	select {
	case <-sched.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler shutdown timed out")
	}

	if runErr != nil {
		return fmt.Errorf("api server: %w", runErr)
	}
	return nil
}

// addMaintenanceJobs schedules idle mailbox reaping and rate limiter
// pruning. An empty schedule disables both.
func addMaintenanceJobs(sched *scheduler.Scheduler, registry *mailbox.Registry, srv *api.Server) error {
	expr := cfg.Sessions.ReapSchedule
	if expr == "" {
		return nil
	}
	idle := cfg.Sessions.IdleTimeout.Duration

	if err := sched.AddJob("reap-mailboxes", expr, func(ctx context.Context) error {
		registry.Reap(idle)
		return nil
	}); err != nil {
		return fmt.Errorf("schedule mailbox reaping: %w", err)
	}

	if err := sched.AddJob("prune-rate-limits", expr, func(ctx context.Context) error {
		if n := srv.PruneRateLimits(idle); n > 0 {
			logger.Debug("pruned rate limiters", "count", n)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("schedule rate limiter pruning: %w", err)
	}
	return nil
}
