// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/runner"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/types"
)

// alertDrainTimeout bounds how long a finished invocation waits for
// in-flight alert dispatches.
const alertDrainTimeout = 30 * time.Second

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one admission-controlled invocation",
		Long: "Load persisted state, decide between live, dry-run and idle, perform or simulate the admitted\n" +
			"actions and record the outcome. Exits non-zero only when the invocation itself fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			maxPosts, _ := cmd.Flags().GetInt("max-posts")
			asJSON, _ := cmd.Flags().GetBool("json")
			if maxPosts < 0 {
				return pgerr.Errorf(pgerr.CodeCLIInputInvalid, "--max-posts must not be negative, got %d", maxPosts)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := invoke(ctx, cfg, runner.RunOptions{DryRun: dryRun, MaxPosts: maxPosts})
			if res != nil {
				if perr := printResult(cmd.OutOrStdout(), res, asJSON); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().Bool("dry-run", false, "simulate only, never act live")
	cmd.Flags().Int("max-posts", 0, "override the daily limit for this run (still capped)")
	cmd.Flags().Bool("json", false, "print the result as JSON")

	return cmd
}

// invoke wires and runs a single invocation, then drains alerts and
// closes the store.
func invoke(ctx context.Context, cfg *config.Config, ro runner.RunOptions) (*runner.Result, error) {
	inv, err := wireRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, runErr := inv.runner.Run(ctx, ro)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertDrainTimeout)
	defer cancel()
	if err := inv.Close(drainCtx); err != nil {
		slog.Warn("closing invocation", "error", err)
	}
	return res, runErr
}

func printResult(w io.Writer, res *runner.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	line := res.Verdict()
	switch {
	case res.Mode == types.ModeError:
		line = errorStyle.Render(line)
	case res.Decision.QuotaExhausted:
		line = labelStyle.Render(line)
	default:
		line = verdictStyle(res.Decision.Verdict).Render(line)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
