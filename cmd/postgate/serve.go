// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/server"
	"github.com/postgate-dev/postgate/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveStatus(ctx, cfg)
		},
	}

	cmd.Flags().String("listen", "", "listen address, overrides server.listen")
	return cmd
}

// serveStatus blocks serving the status API until ctx is cancelled.
func serveStatus(ctx context.Context, cfg *config.Config) error {
	reader, s, err := openReader(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Version:   version,
		Telemetry: telemetry.New(),
	}, reader)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	slog.Info("status server listening", "addr", cfg.Server.Listen)
	return srv.Start(ctx)
}
