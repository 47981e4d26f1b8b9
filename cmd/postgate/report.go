// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/report"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recent executions",
		Long: "Aggregate the execution log over the short and long windows, with trend and recommendations.\n" +
			"With --raise the markdown rendering is filed through the configured alert sink.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			raise, _ := cmd.Flags().GetBool("raise")

			cfg, err := a.config()
			if err != nil {
				return err
			}
			rep, err := generateReport(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return pgerr.Errorf(pgerr.CodeCLIInputInvalid, "creating %s: %w", output, err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			if err := report.Render(w, rep, format); err != nil {
				return err
			}

			if raise {
				return raiseReport(cmd.Context(), cfg, rep)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", report.FormatText, "output format: text, json, yaml or markdown")
	cmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().Bool("raise", false, "also file the report through the alert sink")

	return cmd
}

func generateReport(ctx context.Context, cfg *config.Config) (report.Report, error) {
	reader, s, err := openReader(cfg)
	if err != nil {
		return report.Report{}, err
	}
	defer func() { _ = s.Close() }()
	return reader.Report(ctx)
}

func raiseReport(ctx context.Context, cfg *config.Config, rep report.Report) error {
	_, sink, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	raiseCtx, cancel := context.WithTimeout(ctx, cfg.Alerts.Timeout)
	defer cancel()
	if err := sink.Raise(raiseCtx, rep.Title(), report.Markdown(rep), cfg.Alerts.GitHub.Labels); err != nil {
		return pgerr.Wrap(err, pgerr.CodeAlertDispatchFailure, "raising report")
	}
	return nil
}

// reportJob backs the daemon's report schedule.
func reportJob(cfg *config.Config) func(context.Context) error {
	return func(ctx context.Context) error {
		rep, err := generateReport(ctx, cfg)
		if err != nil {
			return err
		}
		slog.Info("report generated",
			"title", rep.Title(),
			"short_rate", rep.Short.Rate,
			"long_rate", rep.Long.Rate,
			"trend", rep.Trend)
		return raiseReport(ctx, cfg, rep)
	}
}
