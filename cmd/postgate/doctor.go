// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the config, storage backend, content source, action command, status server and disk space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, a)
		},
	}

	cmd.Flags().String("address", "", "status server address to check (default server.listen)")

	return cmd
}

func runDoctor(cmd *cobra.Command, a *app) error {
	w := cmd.OutOrStdout()
	cfg, cfgErr := a.config()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(a.cfgFile, cfgErr) }},
	}
	if cfgErr == nil {
		addr, _ := cmd.Flags().GetString("address")
		if addr == "" {
			addr = cfg.Server.Listen
		}
		checks = append(checks, []struct {
			name string
			fn   func() string
		}{
			{"Storage", func() string { return checkStorage(cmd.Context(), cfg) }},
			{"Source", func() string { return checkSource(cfg) }},
			{"Action", func() string { return checkAction(cfg) }},
			{"Status server", func() string { return checkStatusServer(addr) }},
			{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
		}...)
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("postgate %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(file string, err error) string {
	if err != nil {
		return errorStyle.Render("invalid: " + err.Error())
	}
	if file != "" {
		return fmt.Sprintf("loaded from %s", file)
	}
	return "using defaults (no config file found)"
}

func checkStorage(ctx context.Context, cfg *config.Config) string {
	s, err := openStore(cfg)
	if err != nil {
		return errorStyle.Render("unavailable: " + err.Error())
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.Load(ctx, store.KeyFailures); err != nil && !errors.Is(err, store.ErrNotFound) {
		return errorStyle.Render("unreachable: " + err.Error())
	}
	return fmt.Sprintf("%s backend reachable", cfg.Storage.Backend)
}

func checkSource(cfg *config.Config) string {
	switch cfg.Source.Type {
	case "sheets":
		if cfg.Source.Sheets.SpreadsheetID == "" {
			return warnStyle.Render("sheets source has no spreadsheet_id")
		}
		return fmt.Sprintf("Google Sheets %s", cfg.Source.Sheets.SpreadsheetID)
	default:
		if cfg.Source.File == "" {
			return warnStyle.Render("no source.file configured")
		}
		if _, err := os.Stat(cfg.Source.File); err != nil {
			return warnStyle.Render(fmt.Sprintf("file %s: %s", cfg.Source.File, err))
		}
		return fmt.Sprintf("file %s", cfg.Source.File)
	}
}

func checkAction(cfg *config.Config) string {
	if len(cfg.Action.Command) == 0 {
		return warnStyle.Render("no action.command configured (runs will fail)")
	}
	path, err := exec.LookPath(cfg.Action.Command[0])
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("%s not found in PATH", cfg.Action.Command[0]))
	}
	return path
}

func checkStatusServer(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newStatusClient(addr).getJSON("/api/v1/health", &body); err != nil {
		if pgerr.HasCode(err, pgerr.CodeCLIServerDown) {
			return fmt.Sprintf("not running at %s (run 'postgate serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", statusStyle(health.Status(body.Status)).Render(body.Status), addr)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
