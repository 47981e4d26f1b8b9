// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Command openapi-gen writes the OpenAPI document of the status API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/report"
	"github.com/postgate-dev/postgate/internal/server"
	"github.com/postgate-dev/postgate/internal/status"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/status.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against a stub reader and returns the
// document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, stubReader{})
	if err != nil {
		return nil, pgerr.Errorf(pgerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// stubReader is never called during generation.
type stubReader struct{}

func (stubReader) Overview(context.Context) (*status.Overview, error) { return nil, nil }
func (stubReader) Health(context.Context) (health.Snapshot, error)    { return health.Snapshot{}, nil }
func (stubReader) Quota(context.Context) (status.Quota, error)        { return status.Quota{}, nil }
func (stubReader) Report(context.Context) (report.Report, error)      { return report.Report{}, nil }

func (stubReader) Executions(context.Context, int) ([]metrics.Record, error) {
	return nil, nil
}
