// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package monitor turns failure state and the execution log into a health
// snapshot. Evaluation is read-only.
package monitor

import (
	"fmt"
	"time"

	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/metrics"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

// Defaults for Thresholds.
const (
	DefaultCriticalRate   = 0.5
	DefaultWarningRate    = 0.7
	DefaultCriticalErrors = 3
	DefaultWarningErrors  = 2
)

// Thresholds are the status cut-offs.
type Thresholds struct {
	CriticalRate   float64
	WarningRate    float64
	CriticalErrors int
	WarningErrors  int
}

// DefaultThresholds returns the default cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalRate:   DefaultCriticalRate,
		WarningRate:    DefaultWarningRate,
		CriticalErrors: DefaultCriticalErrors,
		WarningErrors:  DefaultWarningErrors,
	}
}

// Validate checks that the cut-offs are ordered and in range.
func (t Thresholds) Validate() error {
	if t.CriticalRate < 0 || t.WarningRate > 1 || t.CriticalRate > t.WarningRate {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"health rates must satisfy 0 <= critical_rate (%v) <= warning_rate (%v) <= 1",
			t.CriticalRate, t.WarningRate)
	}
	if t.WarningErrors <= 0 || t.WarningErrors > t.CriticalErrors {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"health error counts must satisfy 0 < warning_errors (%d) <= critical_errors (%d)",
			t.WarningErrors, t.CriticalErrors)
	}
	return nil
}

// CurrentRate maps the consecutive failure count onto a coarse rate:
// none is 1.0, one or two is 0.8, three or more is 0.5.
func CurrentRate(consecutiveFailures int) float64 {
	switch {
	case consecutiveFailures <= 0:
		return 1.0
	case consecutiveFailures < 3:
		return 0.8
	default:
		return 0.5
	}
}

// Evaluate derives the snapshot at now. Each step can only raise the status.
func Evaluate(st failure.State, log metrics.Log, opts metrics.Options, th Thresholds, now time.Time) health.Snapshot {
	current := CurrentRate(st.ConsecutiveFailures)

	snap := health.Snapshot{
		Status:              health.StatusHealthy,
		Alerts:              []health.Alert{},
		Warnings:            []health.Alert{},
		CurrentSuccessRate:  current,
		WeeklySuccessRate:   log.RollingRate(now, opts.ShortWindowDays).Rate,
		Trend:               log.Trend(now, opts),
		ConsecutiveFailures: st.ConsecutiveFailures,
		EvaluatedAt:         now,
	}

	switch {
	case current <= th.CriticalRate:
		snap.Status = snap.Status.Raise(health.StatusCritical)
		snap.Alerts = append(snap.Alerts, health.Alert{
			Type:                 health.AlertSuccessRateCritical,
			Message:              fmt.Sprintf("success rate %.0f%% is at or below the critical threshold", current*100),
			ThresholdDescription: fmt.Sprintf("success rate <= %.0f%%", th.CriticalRate*100),
			Severity:             health.SeverityHigh,
		})
	case current <= th.WarningRate:
		snap.Status = snap.Status.Raise(health.StatusWarning)
		snap.Warnings = append(snap.Warnings, health.Alert{
			Type:                 health.AlertSuccessRateWarning,
			Message:              fmt.Sprintf("success rate %.0f%% is at or below the warning threshold", current*100),
			ThresholdDescription: fmt.Sprintf("success rate <= %.0f%%", th.WarningRate*100),
			Severity:             health.SeverityMedium,
		})
	}

	switch {
	case st.ConsecutiveFailures >= th.CriticalErrors:
		snap.Status = snap.Status.Raise(health.StatusCritical)
		snap.Alerts = append(snap.Alerts, health.Alert{
			Type:                 health.AlertConsecutiveErrorsCritical,
			Message:              fmt.Sprintf("%d consecutive failures", st.ConsecutiveFailures),
			ThresholdDescription: fmt.Sprintf("consecutive failures >= %d", th.CriticalErrors),
			Severity:             health.SeverityHigh,
		})
	case st.ConsecutiveFailures >= th.WarningErrors:
		snap.Status = snap.Status.Raise(health.StatusWarning)
		snap.Warnings = append(snap.Warnings, health.Alert{
			Type:                 health.AlertConsecutiveErrorsWarning,
			Message:              fmt.Sprintf("%d consecutive failures", st.ConsecutiveFailures),
			ThresholdDescription: fmt.Sprintf("consecutive failures >= %d", th.WarningErrors),
			Severity:             health.SeverityMedium,
		})
	}

	if st.IsSuspended(now) {
		until := *st.SuspendedUntil
		snap.SuspendedUntil = &until
		snap.Status = snap.Status.Raise(health.StatusSuspended)
		snap.Alerts = append(snap.Alerts, health.Alert{
			Type:                 health.AlertSystemSuspended,
			Message:              "live actions suspended until " + until.Format(time.RFC3339),
			ThresholdDescription: "suspension window active",
			Severity:             health.SeverityHigh,
		})
	}

	return snap
}

// NewAlerts returns the high-severity alerts in cur whose type was not
// already raised in prev. A nil prev treats every alert as new.
func NewAlerts(cur health.Snapshot, prev *health.Snapshot) []health.Alert {
	var out []health.Alert
	for _, a := range cur.HighSeverityAlerts() {
		if prev != nil && prev.HasAlert(a.Type) {
			continue
		}
		out = append(out, a)
	}
	return out
}
