// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/report"
	"github.com/postgate-dev/postgate/internal/status"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

// StatusReader is the read side of the persisted state.
type StatusReader interface {
	Overview(ctx context.Context) (*status.Overview, error)
	Health(ctx context.Context) (health.Snapshot, error)
	Quota(ctx context.Context) (status.Quota, error)
	Executions(ctx context.Context, limit int) ([]metrics.Record, error)
	Report(ctx context.Context) (report.Report, error)
}

type livenessOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Process liveness"`
	}
}

type overviewOutput struct {
	Body *status.Overview
}

type healthOutput struct {
	Body health.Snapshot
}

type quotaOutput struct {
	Body status.Quota
}

type executionsInput struct {
	Limit int `query:"limit" default:"20" minimum:"0" maximum:"1000" doc:"Maximum records, newest first; 0 for all"`
}

type executionsOutput struct {
	Body struct {
		Executions []metrics.Record `json:"executions"`
	}
}

type reportOutput struct {
	Body report.Report
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "liveness",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Process liveness",
		Tags:        []string{"system"},
	}, func(context.Context, *struct{}) (*livenessOutput, error) {
		out := &livenessOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Health, quota, breaker and next admission decision",
		Tags:        []string{"status"},
	}, s.handleOverview)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Evaluate posting health",
		Tags:        []string{"status"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-quota",
		Method:      http.MethodGet,
		Path:        "/api/v1/quota",
		Summary:     "Today's action budget",
		Tags:        []string{"status"},
	}, s.handleQuota)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-executions",
		Method:      http.MethodGet,
		Path:        "/api/v1/executions",
		Summary:     "Recent execution records",
		Tags:        []string{"status"},
	}, s.handleExecutions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/api/v1/report",
		Summary:     "Weekly success report",
		Tags:        []string{"status"},
	}, s.handleReport)
}

func (s *Server) handleOverview(ctx context.Context, _ *struct{}) (*overviewOutput, error) {
	ov, err := s.status.Overview(ctx)
	if err != nil {
		return nil, apiError("reading status", err)
	}
	return &overviewOutput{Body: ov}, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	snap, err := s.status.Health(ctx)
	if err != nil {
		return nil, apiError("evaluating health", err)
	}
	return &healthOutput{Body: snap}, nil
}

func (s *Server) handleQuota(ctx context.Context, _ *struct{}) (*quotaOutput, error) {
	q, err := s.status.Quota(ctx)
	if err != nil {
		return nil, apiError("reading quota", err)
	}
	return &quotaOutput{Body: q}, nil
}

func (s *Server) handleExecutions(ctx context.Context, in *executionsInput) (*executionsOutput, error) {
	recs, err := s.status.Executions(ctx, in.Limit)
	if err != nil {
		return nil, apiError("reading executions", err)
	}
	out := &executionsOutput{}
	out.Body.Executions = recs
	return out, nil
}

func (s *Server) handleReport(ctx context.Context, _ *struct{}) (*reportOutput, error) {
	rep, err := s.status.Report(ctx)
	if err != nil {
		return nil, apiError("generating report", err)
	}
	return &reportOutput{Body: rep}, nil
}

// metricsHandler refreshes the gauges from the store before each scrape so
// a long-lived serve process reports current state.
func (s *Server) metricsHandler() http.Handler {
	m := s.cfg.Telemetry
	next := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rep, err := s.status.Report(ctx); err != nil {
			slog.Warn("metrics refresh: report", "error", err)
		} else if snap, err := s.status.Health(ctx); err != nil {
			slog.Warn("metrics refresh: health", "error", err)
		} else {
			m.ObserveHealth(snap, rep.Long.Rate)
		}
		if q, err := s.status.Quota(ctx); err != nil {
			slog.Warn("metrics refresh: quota", "error", err)
		} else {
			m.ObserveQuota(q.Performed, q.Limit)
		}
		next.ServeHTTP(w, r)
	})
}

func apiError(msg string, err error) error {
	slog.Error(msg, "error", err, "code", pgerr.CodeOf(err))
	return huma.NewError(pgerr.HTTPStatus(err), msg, err)
}
