// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package report rolls the execution log up into a periodic trend report.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/pkg/health"
	"github.com/postgate-dev/postgate/pkg/types"
)

// inspectionRate is the weekly rate below which an inspection is advised.
const inspectionRate = 0.7

// Recommendation texts.
const (
	RecommendInspection = "Weekly success rate is below 70%; inspect recent errors and the action command."
	RecommendUpstream   = "Success rate is degrading; check whether the target site or its login flow changed."
	RecommendScheduler  = "No executions in the last week; check that the scheduler is running."
	RecommendNormal     = "Operating normally."
)

// WindowSummary aggregates one trailing window.
type WindowSummary struct {
	Days       int     `json:"days" yaml:"days"`
	Total      int     `json:"total" yaml:"total"`
	Successful int     `json:"successful" yaml:"successful"`
	Rate       float64 `json:"rate" yaml:"rate"`
	Posted     int     `json:"posted" yaml:"posted"`
}

// ModeCount is one row of the mode breakdown.
type ModeCount struct {
	Mode  types.Mode `json:"mode" yaml:"mode"`
	Count int        `json:"count" yaml:"count"`
}

// Report is the rollup returned by Generate.
type Report struct {
	GeneratedAt             time.Time     `json:"generated_at" yaml:"generated_at"`
	Short                   WindowSummary `json:"short_window" yaml:"short_window"`
	Long                    WindowSummary `json:"long_window" yaml:"long_window"`
	Trend                   health.Trend  `json:"trend" yaml:"trend"`
	Modes                   []ModeCount   `json:"modes" yaml:"modes"`
	AverageExecutionSeconds float64       `json:"average_execution_seconds" yaml:"average_execution_seconds"`
	InsufficientData        bool          `json:"insufficient_data" yaml:"insufficient_data"`
	Recommendations         []string      `json:"recommendations" yaml:"recommendations"`
}

func summarize(records []metrics.Record, days int) WindowSummary {
	rate := metrics.RateOf(records)
	return WindowSummary{
		Days:       days,
		Total:      rate.Total,
		Successful: rate.Successful,
		Rate:       rate.Rate,
		Posted:     metrics.TotalPosted(records),
	}
}

// Generate builds the report at now. It only reads log.
func Generate(log metrics.Log, opts metrics.Options, now time.Time) Report {
	short := log.Window(now, opts.ShortWindowDays)
	long := log.Window(now, opts.LongWindowDays)

	r := Report{
		GeneratedAt:             now,
		Short:                   summarize(short, opts.ShortWindowDays),
		Long:                    summarize(long, opts.LongWindowDays),
		AverageExecutionSeconds: metrics.AverageExecutionSeconds(short),
		InsufficientData:        len(long) == 0,
		Modes:                   []ModeCount{},
	}
	r.Trend = metrics.ClassifyTrend(r.Short.Rate, r.Long.Rate, opts.TrendDelta)

	for mode, n := range metrics.ModeBreakdown(short) {
		r.Modes = append(r.Modes, ModeCount{Mode: mode, Count: n})
	}
	sort.Slice(r.Modes, func(i, j int) bool { return r.Modes[i].Mode < r.Modes[j].Mode })

	r.Recommendations = recommend(r)
	return r
}

func recommend(r Report) []string {
	var out []string
	if r.Short.Total > 0 && r.Short.Rate < inspectionRate {
		out = append(out, RecommendInspection)
	}
	if r.Trend == health.TrendDegrading {
		out = append(out, RecommendUpstream)
	}
	if r.Short.Total == 0 {
		out = append(out, RecommendScheduler)
	}
	if len(out) == 0 {
		out = append(out, RecommendNormal)
	}
	return out
}

// Title is a one-line heading for the report.
func (r Report) Title() string {
	return fmt.Sprintf("postgate weekly report (%s)", r.GeneratedAt.Format("2006-01-02"))
}
