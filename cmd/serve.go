package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"klinevault/config"
	"klinevault/internal/dashboard"
	"klinevault/internal/scheduler"
	"klinevault/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}

		dash := dashboard.NewServer(cfg.Dashboard, cfg.App.Name, logger.GetLogger())
		return serve(ctx, dash, cfg.Schedule, func(ctx context.Context) error {
			report, err := a.syncOnce(ctx, nil)
			if report.RunID != "" {
				dash.RecordRun(report)
			}
			return err
		})
	},
}

// serve runs job on the schedule next to the dashboard until ctx is done or
// the dashboard fails. Both share one context, so either ending cancels a
// sync in flight.
func serve(ctx context.Context, dash *dashboard.Server, sched config.ScheduleConfig, job scheduler.Job) error {
	log := logger.GetLogger().WithComponent("serve")
	g, ctx := errgroup.WithContext(ctx)

	s, err := scheduler.New(ctx, sched.Cron, job)
	if err != nil {
		return err
	}

	g.Go(func() error { return dash.Run(ctx) })
	s.Start()
	if sched.RunOnStart {
		g.Go(func() error {
			if err := s.RunNow(); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("initial sync failed")
			}
			return nil
		})
	}

	<-ctx.Done()
	s.Stop()
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
