// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/runner"
	"github.com/postgate-dev/postgate/internal/schedule"
)

const daemonShutdownTimeout = time.Minute

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run invocations and reports on the configured schedule",
		Long: "Fire 'run' on schedule.run and 'report --raise' on schedule.report. Overlapping firings are\n" +
			"skipped. With --serve the status API runs alongside.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			withServer, _ := cmd.Flags().GetBool("serve")
			runNow, _ := cmd.Flags().GetBool("run-now")

			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := checkRunnable(cfg); err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			sched := schedule.New(loc)
			if err := sched.Add(schedule.Job{Name: "run", Spec: cfg.Schedule.Run, Run: runJob(cfg)}); err != nil {
				return err
			}
			if err := sched.Add(schedule.Job{Name: "report", Spec: cfg.Schedule.Report, Run: reportJob(cfg)}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if runNow {
				if err := runJob(cfg)(ctx); err != nil {
					slog.Error("initial run failed", "error", err)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(gctx, daemonShutdownTimeout) })
			if withServer {
				g.Go(func() error { return serveStatus(gctx, cfg) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().Bool("serve", false, "also serve the status API")
	cmd.Flags().Bool("run-now", false, "perform one invocation before waiting for the schedule")
	return cmd
}

func runJob(cfg *config.Config) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := invoke(ctx, cfg, runner.RunOptions{})
		if res != nil {
			slog.Info("invocation verdict", "summary", res.Verdict())
		}
		return err
	}
}
