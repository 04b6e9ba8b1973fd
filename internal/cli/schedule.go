package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/app"
	"github.com/ibeckermayer/livechat/internal/scheduler"
)

func newScheduleCmd(g *globalFlags) *cobra.Command {
	var conv conversationFlags
	var cronExpr string
	var now bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Repeat the chat probe on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			req, err := conv.apply(cmd, cfg)
			if err != nil {
				return err
			}
			if cronExpr != "" {
				cfg.Schedule.Cron = cronExpr
			}
			if err := cfg.Validate(); err != nil {
				return &usageError{err}
			}

			logger, err := newLogger(cfg, g.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			archive, err := openArchive(cfg)
			if err != nil {
				return err
			}
			if archive != nil {
				defer archive.Close()
			}

			// Budget for one probe: page load, welcome wait and reply wait, plus slack.
			budget := cfg.Browser.LoadDelay + cfg.Browser.ReloadDelay +
				time.Duration(cfg.Chat.WelcomeAttempts)*cfg.Chat.WelcomeInterval +
				cfg.Chat.ReplyTimeout + cfg.Browser.ActionTimeout*2

			sched, err := scheduler.New(cfg.Schedule.Timezone, budget, logger)
			if err != nil {
				return &usageError{err}
			}

			a := app.New(cfg, archive, logger)
			job := func(ctx context.Context) error {
				res, err := a.Run(ctx, req)
				if err != nil {
					return err
				}
				logger.Info("Probe finished",
					zap.String("outcome", res.Outcome),
					zap.String("run", res.RunID))
				printResult(cmd.OutOrStdout(), res)
				return nil
			}

			if err := sched.AddJob("probe", cfg.Schedule.Cron, job); err != nil {
				return &usageError{err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if now {
				sched.RunNow("probe", job)
			}
			sched.Start()
			for _, j := range sched.ListJobs() {
				fmt.Fprintf(cmd.OutOrStdout(), "Next %s run: %s\n", j.Name, j.NextRun.Format("2006-01-02 15:04:05"))
			}

			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	conv.register(cmd)
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron schedule (default from config schedule.cron)")
	cmd.Flags().BoolVar(&now, "now", false, "Run one probe immediately before waiting for the schedule")

	return cmd
}
