// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package metrics keeps the bounded execution log and derives rolling
// success rates and trends from it.
package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
	"github.com/postgate-dev/postgate/pkg/types"
)

// Defaults for Options.
const (
	DefaultMaxRecords      = 100
	DefaultShortWindowDays = 7
	DefaultLongWindowDays  = 30
	DefaultTrendDelta      = 0.1
)

// Options configures log retention and trend windows.
type Options struct {
	MaxRecords      int
	ShortWindowDays int
	LongWindowDays  int
	TrendDelta      float64
}

// DefaultOptions returns the default retention and windows.
func DefaultOptions() Options {
	return Options{
		MaxRecords:      DefaultMaxRecords,
		ShortWindowDays: DefaultShortWindowDays,
		LongWindowDays:  DefaultLongWindowDays,
		TrendDelta:      DefaultTrendDelta,
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	switch {
	case o.MaxRecords <= 0:
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"metrics.max_records must be positive, got %d", o.MaxRecords)
	case o.ShortWindowDays <= 0 || o.LongWindowDays <= 0:
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"metrics windows must be positive, got %d/%d", o.ShortWindowDays, o.LongWindowDays)
	case o.ShortWindowDays > o.LongWindowDays:
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"metrics.short_window_days (%d) must not exceed metrics.long_window_days (%d)",
			o.ShortWindowDays, o.LongWindowDays)
	case o.TrendDelta < 0:
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"metrics.trend_delta must not be negative, got %v", o.TrendDelta)
	}
	return nil
}

// Record is one execution log entry.
type Record struct {
	ID                   string     `json:"id"`
	InvocationID         string     `json:"invocation_id"`
	Timestamp            time.Time  `json:"timestamp"`
	Success              bool       `json:"success"`
	PostedCount          int        `json:"posted_count"`
	TargetCount          int        `json:"target_count"`
	Mode                 types.Mode `json:"mode"`
	ExecutionTimeSeconds float64    `json:"execution_time_seconds"`
	Errors               []string   `json:"errors"`
}

// NewRecord returns a record with a fresh ID.
func NewRecord(invocationID string, ts time.Time, mode types.Mode) Record {
	return Record{
		ID:           uuid.NewString(),
		InvocationID: invocationID,
		Timestamp:    ts,
		Mode:         mode,
		Errors:       []string{},
	}
}

// Log is the persisted execution log, oldest first.
type Log struct {
	Executions  []Record  `json:"executions"`
	LastUpdated time.Time `json:"last_updated"`
}

// Append adds r and evicts the oldest entries beyond maxRecords.
func (l *Log) Append(r Record, maxRecords int) {
	l.Executions = append(l.Executions, r)
	if maxRecords > 0 && len(l.Executions) > maxRecords {
		l.Executions = append([]Record(nil), l.Executions[len(l.Executions)-maxRecords:]...)
	}
	l.LastUpdated = r.Timestamp
}

// Window returns the records with timestamps in (now-days, now].
func (l Log) Window(now time.Time, days int) []Record {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	var out []Record
	for _, r := range l.Executions {
		if r.Timestamp.After(cutoff) && !r.Timestamp.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// Rate is a success ratio over a window.
type Rate struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Rate       float64 `json:"rate"`
}

// RateOf computes the success ratio of records. An empty set rates 1.0.
func RateOf(records []Record) Rate {
	r := Rate{Total: len(records), Rate: 1.0}
	for _, rec := range records {
		if rec.Success {
			r.Successful++
		}
	}
	if r.Total > 0 {
		r.Rate = float64(r.Successful) / float64(r.Total)
	}
	return r
}

// RollingRate is RateOf over Window(now, days).
func (l Log) RollingRate(now time.Time, days int) Rate {
	return RateOf(l.Window(now, days))
}

// ClassifyTrend compares a short-window rate to a long-window rate.
func ClassifyTrend(short, long, delta float64) health.Trend {
	switch {
	case short > long+delta:
		return health.TrendImproving
	case short < long-delta:
		return health.TrendDegrading
	default:
		return health.TrendStable
	}
}

// Trend classifies the log's short window against its long window.
func (l Log) Trend(now time.Time, o Options) health.Trend {
	return ClassifyTrend(
		l.RollingRate(now, o.ShortWindowDays).Rate,
		l.RollingRate(now, o.LongWindowDays).Rate,
		o.TrendDelta,
	)
}

// ModeBreakdown counts records per mode.
func ModeBreakdown(records []Record) map[types.Mode]int {
	out := make(map[types.Mode]int)
	for _, r := range records {
		out[r.Mode]++
	}
	return out
}

// AverageExecutionSeconds is the mean duration; zero for no records.
func AverageExecutionSeconds(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.ExecutionTimeSeconds
	}
	return sum / float64(len(records))
}

// TotalPosted sums PostedCount.
func TotalPosted(records []Record) int {
	n := 0
	for _, r := range records {
		n += r.PostedCount
	}
	return n
}

// Recorder loads and saves the execution log.
type Recorder struct {
	store store.DocumentStore
	opts  Options
}

// NewRecorder creates a Recorder over s.
func NewRecorder(s store.DocumentStore, opts Options) *Recorder {
	return &Recorder{store: s, opts: opts}
}

// Options returns the recorder's options.
func (r *Recorder) Options() Options { return r.opts }

// Load returns the persisted log; an absent document is an empty log.
func (r *Recorder) Load(ctx context.Context) (Log, error) {
	var l Log
	if _, err := store.LoadDocument(ctx, r.store, store.KeyMetrics, &l); err != nil {
		return Log{}, err
	}
	return l, nil
}

// Save overwrites the persisted log.
func (r *Recorder) Save(ctx context.Context, l Log) error {
	return store.SaveDocument(ctx, r.store, store.KeyMetrics, l)
}

// Append loads the log, appends rec and saves it.
func (r *Recorder) Append(ctx context.Context, rec Record) (Log, error) {
	l, err := r.Load(ctx)
	if err != nil {
		return Log{}, err
	}
	l.Append(rec, r.opts.MaxRecords)
	return l, r.Save(ctx, l)
}
