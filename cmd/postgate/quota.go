// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func newQuotaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show today's quota and the daily ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days < 0 {
				return pgerr.Errorf(pgerr.CodeCLIInputInvalid, "--days must not be negative, got %d", days)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			reader, s, err := openReader(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			q, err := reader.Quota(cmd.Context())
			if err != nil {
				return err
			}
			ledger, err := reader.Ledger(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %d/%d used, %d remaining\n",
				titleStyle.Render("Today ("+q.Date+"):"), q.Performed, q.Limit, q.Remaining)
			if q.LastActionAt != nil {
				fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Last action:"), q.LastActionAt.Format(time.RFC3339))
			}

			dates := ledger.Dates()
			if days > 0 && len(dates) > days {
				dates = dates[len(dates)-days:]
			}
			if len(dates) == 0 {
				_, err := fmt.Fprintln(w, "No actions recorded.")
				return err
			}
			fmt.Fprintln(w)
			for i := len(dates) - 1; i >= 0; i-- {
				day := ledger.Day(dates[i])
				if _, err := fmt.Fprintf(w, "%s  %d\n", day.Date, day.ActionsPerformed); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("days", 7, "number of ledger days to show, 0 for all")
	return cmd
}
