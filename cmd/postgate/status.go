// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/postgate-dev/postgate/internal/status"
)

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health, quota and breaker state",
		Long:  "Evaluate health from the persisted state and show what the next invocation would be admitted to do.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := a.config()
			if err != nil {
				return err
			}
			reader, s, err := openReader(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ov, err := reader.Overview(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ov)
			}
			return printOverview(cmd.OutOrStdout(), ov)
		},
	}

	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func printOverview(w io.Writer, ov *status.Overview) error {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-22s", label)), value)
	}

	b.WriteString(titleStyle.Render("postgate status"))
	b.WriteString("\n\n")

	row("Health:", statusStyle(ov.Health.Status).Render(string(ov.Health.Status)))
	row("Current success rate:", fmt.Sprintf("%.0f%%", ov.Health.CurrentSuccessRate*100))
	row("Weekly success rate:", fmt.Sprintf("%.1f%%", ov.Health.WeeklySuccessRate*100))
	row("Trend:", string(ov.Health.Trend))
	row("Consecutive failures:", fmt.Sprint(ov.Failures.ConsecutiveFailures))
	if ov.Failures.Suspended && ov.Failures.SuspendedUntil != nil {
		row("Suspended until:", errorStyle.Render(fmt.Sprintf("%s (%s left)",
			ov.Failures.SuspendedUntil.Format(time.RFC3339), ov.Failures.Remaining)))
	}
	row("Quota today:", fmt.Sprintf("%d/%d used, %d remaining (%s)",
		ov.Quota.Performed, ov.Quota.Limit, ov.Quota.Remaining, ov.Quota.Date))
	row("Next invocation:", verdictStyle(ov.NextDecision.Verdict).Render(
		fmt.Sprintf("%s (%s)", ov.NextDecision.Verdict, ov.NextDecision.Reason)))
	if last := ov.LastExecution; last != nil {
		outcome := successStyle.Render("ok")
		if !last.Success {
			outcome = errorStyle.Render("failed")
		}
		row("Last execution:", fmt.Sprintf("%s %s mode=%s posted=%d/%d",
			last.Timestamp.Format(time.RFC3339), outcome, last.Mode, last.PostedCount, last.TargetCount))
	}

	var findings []string
	for _, al := range ov.Health.Alerts {
		findings = append(findings, errorStyle.Render("ALERT ")+al.Message)
	}
	for _, wn := range ov.Health.Warnings {
		findings = append(findings, warnStyle.Render("WARN  ")+wn.Message)
	}
	if len(findings) > 0 {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.Join(findings, "\n")))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
