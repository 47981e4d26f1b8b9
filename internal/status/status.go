// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package status answers read-only questions about persisted state for the
// CLI and the status API. Health is evaluated on demand and never written.
package status

import (
	"context"
	"slices"
	"time"

	"github.com/postgate-dev/postgate/internal/admission"
	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/monitor"
	"github.com/postgate-dev/postgate/internal/quota"
	"github.com/postgate-dev/postgate/internal/report"
	"github.com/postgate-dev/postgate/internal/runner"
	"github.com/postgate-dev/postgate/internal/store"
	"github.com/postgate-dev/postgate/pkg/health"
)

// Quota is today's budget usage.
type Quota struct {
	Date         string     `json:"date" yaml:"date"`
	Limit        int        `json:"limit" yaml:"limit"`
	Performed    int        `json:"performed" yaml:"performed"`
	Remaining    int        `json:"remaining" yaml:"remaining"`
	LastActionAt *time.Time `json:"last_action_at,omitempty" yaml:"last_action_at,omitempty"`
}

// Overview is everything `postgate status` shows.
type Overview struct {
	Health        health.Snapshot    `json:"health" yaml:"health"`
	Quota         Quota              `json:"quota" yaml:"quota"`
	Failures      failure.Status     `json:"failures" yaml:"failures"`
	NextDecision  admission.Decision `json:"next_decision" yaml:"next_decision"`
	LastExecution *metrics.Record    `json:"last_execution,omitempty" yaml:"last_execution,omitempty"`
}

// Reader reads state through the same trackers the runner writes with.
type Reader struct {
	quota    *quota.Tracker
	failures *failure.Tracker
	recorder *metrics.Recorder
	opts     runner.Options
	nowFunc  func() time.Time
}

func NewReader(s store.DocumentStore, opts runner.Options) *Reader {
	return &Reader{
		quota:    quota.NewTracker(s, opts.Location),
		failures: failure.NewTracker(s, opts.Failure),
		recorder: metrics.NewRecorder(s, opts.Metrics),
		opts:     opts,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *Reader) SetNowFunc(fn func() time.Time) {
	r.nowFunc = fn
	r.quota.SetNowFunc(fn)
}

// Health evaluates a fresh snapshot.
func (r *Reader) Health(ctx context.Context) (health.Snapshot, error) {
	st, err := r.failures.Load(ctx)
	if err != nil {
		return health.Snapshot{}, err
	}
	log, err := r.recorder.Load(ctx)
	if err != nil {
		return health.Snapshot{}, err
	}
	return monitor.Evaluate(st, log, r.opts.Metrics, r.opts.Thresholds, r.nowFunc()), nil
}

// Quota returns today's usage against the configured limit.
func (r *Reader) Quota(ctx context.Context) (Quota, error) {
	today, err := r.quota.Today(ctx)
	if err != nil {
		return Quota{}, err
	}
	limit := r.opts.Admission.Limit(0)
	return Quota{
		Date:         today.Date,
		Limit:        limit,
		Performed:    today.ActionsPerformed,
		Remaining:    quota.Remaining(limit, today.ActionsPerformed),
		LastActionAt: today.LastActionAt,
	}, nil
}

// Ledger returns the whole quota ledger.
func (r *Reader) Ledger(ctx context.Context) (quota.Ledger, error) {
	return r.quota.Ledger(ctx)
}

// Failures summarizes the breaker.
func (r *Reader) Failures(ctx context.Context) (failure.Status, error) {
	st, err := r.failures.Load(ctx)
	if err != nil {
		return failure.Status{}, err
	}
	return st.Status(r.nowFunc()), nil
}

// Executions returns up to limit records, newest first. A limit of zero or
// less returns all of them.
func (r *Reader) Executions(ctx context.Context, limit int) ([]metrics.Record, error) {
	log, err := r.recorder.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(log.Executions)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []metrics.Record{}
	}
	return out, nil
}

// Report builds the periodic report over the current log.
func (r *Reader) Report(ctx context.Context) (report.Report, error) {
	log, err := r.recorder.Load(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return report.Generate(log, r.opts.Metrics, r.nowFunc()), nil
}

// Overview gathers health, quota, breaker state and the decision the next
// invocation would get.
func (r *Reader) Overview(ctx context.Context) (*Overview, error) {
	now := r.nowFunc()

	st, err := r.failures.Load(ctx)
	if err != nil {
		return nil, err
	}
	log, err := r.recorder.Load(ctx)
	if err != nil {
		return nil, err
	}
	q, err := r.Quota(ctx)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Health:   monitor.Evaluate(st, log, r.opts.Metrics, r.opts.Thresholds, now),
		Quota:    q,
		Failures: st.Status(now),
		NextDecision: admission.Decide(r.opts.Admission, admission.Input{
			Now:            now,
			Failures:       st,
			Limit:          q.Limit,
			PerformedToday: q.Performed,
		}),
	}
	if n := len(log.Executions); n > 0 {
		last := log.Executions[n-1]
		ov.LastExecution = &last
	}
	return ov, nil
}
