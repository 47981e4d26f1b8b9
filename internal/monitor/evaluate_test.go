// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package monitor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/monitor"
	"github.com/postgate-dev/postgate/pkg/health"
	"github.com/postgate-dev/postgate/pkg/types"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func failures(n int) failure.State {
	var st failure.State
	p := failure.DefaultPolicy()
	for i := 0; i < n; i++ {
		st.RecordFailure(p, now.Add(-2*time.Hour), "action", "x")
	}
	return st
}

func evaluate(st failure.State, log metrics.Log) health.Snapshot {
	return monitor.Evaluate(st, log, metrics.DefaultOptions(), monitor.DefaultThresholds(), now)
}

func alertTypes(alerts []health.Alert) []string {
	out := []string{}
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestCurrentRate(t *testing.T) {
	assert.Equal(t, 1.0, monitor.CurrentRate(0))
	assert.Equal(t, 0.8, monitor.CurrentRate(1))
	assert.Equal(t, 0.8, monitor.CurrentRate(2))
	assert.Equal(t, 0.5, monitor.CurrentRate(3))
	assert.Equal(t, 0.5, monitor.CurrentRate(50))
}

func TestEvaluate_Healthy(t *testing.T) {
	snap := evaluate(failure.State{}, metrics.Log{})
	assert.Equal(t, health.StatusHealthy, snap.Status)
	assert.Empty(t, snap.Alerts)
	assert.Empty(t, snap.Warnings)
	assert.Equal(t, 1.0, snap.CurrentSuccessRate)
	assert.Equal(t, 1.0, snap.WeeklySuccessRate)
	assert.Equal(t, health.TrendStable, snap.Trend)
}

func TestEvaluate_OneFailureIsStillHealthy(t *testing.T) {
	snap := evaluate(failures(1), metrics.Log{})
	assert.Equal(t, health.StatusHealthy, snap.Status)
	assert.Equal(t, 0.8, snap.CurrentSuccessRate)
}

func TestEvaluate_TwoFailuresWarn(t *testing.T) {
	snap := evaluate(failures(2), metrics.Log{})
	assert.Equal(t, health.StatusWarning, snap.Status)
	assert.Equal(t, []string{health.AlertConsecutiveErrorsWarning}, alertTypes(snap.Warnings))
	assert.Empty(t, snap.Alerts)
}

func TestEvaluate_SuspendedOverridesCritical(t *testing.T) {
	snap := evaluate(failures(3), metrics.Log{})
	assert.Equal(t, health.StatusSuspended, snap.Status)
	assert.Equal(t, []string{
		health.AlertSuccessRateCritical,
		health.AlertConsecutiveErrorsCritical,
		health.AlertSystemSuspended,
	}, alertTypes(snap.Alerts))
	require.NotNil(t, snap.SuspendedUntil)
	for _, a := range snap.Alerts {
		assert.Equal(t, health.SeverityHigh, a.Severity)
	}
}

func TestEvaluate_LapsedSuspensionIsCritical(t *testing.T) {
	st := failures(3)
	snap := monitor.Evaluate(st, metrics.Log{}, metrics.DefaultOptions(), monitor.DefaultThresholds(), now.Add(48*time.Hour))
	assert.Equal(t, health.StatusCritical, snap.Status)
	assert.False(t, snap.HasAlert(health.AlertSystemSuspended))
	assert.Nil(t, snap.SuspendedUntil)
}

func TestEvaluate_WarningRateFromCustomThreshold(t *testing.T) {
	th := monitor.DefaultThresholds()
	th.WarningRate = 0.8
	th.WarningErrors = 2
	snap := monitor.Evaluate(failures(1), metrics.Log{}, metrics.DefaultOptions(), th, now)
	assert.Equal(t, health.StatusWarning, snap.Status)
	assert.Equal(t, []string{health.AlertSuccessRateWarning}, alertTypes(snap.Warnings))
}

func TestEvaluate_ReportsWindowedRate(t *testing.T) {
	var log metrics.Log
	for i := 0; i < 4; i++ {
		r := metrics.NewRecord("inv", now.Add(-time.Duration(i+1)*time.Hour), types.ModeLive)
		r.Success = i%2 == 0
		log.Append(r, 100)
	}
	snap := evaluate(failure.State{}, log)
	assert.InDelta(t, 0.5, snap.WeeklySuccessRate, 1e-9)
	// The coarse current rate is independent of the log.
	assert.Equal(t, 1.0, snap.CurrentSuccessRate)
}

func TestEvaluate_StatusIsMonotonic(t *testing.T) {
	for n := 0; n < 6; n++ {
		snap := evaluate(failures(n), metrics.Log{})
		if n >= 3 {
			assert.Equal(t, health.StatusSuspended, snap.Status, "failures=%d", n)
		}
		if n == 2 {
			assert.Equal(t, health.StatusWarning, snap.Status)
		}
	}
}

func TestNewAlerts(t *testing.T) {
	cur := evaluate(failures(3), metrics.Log{})
	assert.Len(t, monitor.NewAlerts(cur, nil), 3)

	prev := evaluate(failures(3), metrics.Log{})
	assert.Empty(t, monitor.NewAlerts(cur, &prev))

	healthy := evaluate(failure.State{}, metrics.Log{})
	assert.Len(t, monitor.NewAlerts(cur, &healthy), 3)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, monitor.DefaultThresholds().Validate())

	th := monitor.DefaultThresholds()
	th.CriticalRate = 0.9
	assert.Error(t, th.Validate())

	th = monitor.DefaultThresholds()
	th.WarningErrors = 5
	assert.Error(t, th.Validate())
}
