// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/quota"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func newResetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the failure streak or a day's quota",
		Long: "Operator override. --failures clears the consecutive failure count and any suspension;\n" +
			"--quota zeroes the action count for --date (default today).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resetFailures, _ := cmd.Flags().GetBool("failures")
			resetQuota, _ := cmd.Flags().GetBool("quota")
			date, _ := cmd.Flags().GetString("date")
			if !resetFailures && !resetQuota {
				return pgerr.New(pgerr.CodeCLIInputInvalid, "nothing to reset, pass --failures and/or --quota")
			}
			if date != "" && !resetQuota {
				return pgerr.New(pgerr.CodeCLIInputInvalid, "--date only applies with --quota")
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if resetFailures {
				if err := failure.NewTracker(s, cfg.FailurePolicy()).Reset(ctx); err != nil {
					return err
				}
				slog.Info("failure state reset")
				fmt.Fprintln(w, successStyle.Render("Failure streak and suspension cleared."))
			}
			if resetQuota {
				qt := quota.NewTracker(s, loc)
				if err := qt.Reset(ctx, date); err != nil {
					return err
				}
				if date == "" {
					date = qt.DateKey(time.Now())
				}
				slog.Info("quota reset", "date", date)
				fmt.Fprintln(w, successStyle.Render("Quota cleared for "+date+"."))
			}
			return nil
		},
	}

	cmd.Flags().Bool("failures", false, "clear the failure streak and suspension")
	cmd.Flags().Bool("quota", false, "zero a day's action count")
	cmd.Flags().String("date", "", "quota day to reset, YYYY-MM-DD (default today)")

	return cmd
}
