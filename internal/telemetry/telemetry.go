// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package telemetry exposes controller state as Prometheus metrics and
// pushes them to a Pushgateway after short-lived invocations.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
	"github.com/postgate-dev/postgate/pkg/types"
)

// MetricsNamespace prefixes every metric.
const MetricsNamespace = "postgate"

// Window label values for SuccessRate.
const (
	WindowCurrent = "current"
	WindowShort   = "short"
	WindowLong    = "long"
)

// Metrics holds the registered collectors.
type Metrics struct {
	reg *prometheus.Registry

	ConsecutiveFailures prometheus.Gauge
	Suspended           prometheus.Gauge
	SuccessRate         *prometheus.GaugeVec
	QuotaUsed           prometheus.Gauge
	QuotaLimit          prometheus.Gauge
	HealthStatus        *prometheus.GaugeVec
	ActionsTotal        *prometheus.CounterVec
	LastRunTimestamp    prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{reg: reg}

	m.ConsecutiveFailures = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "consecutive_failures",
		Help:      "Failures recorded since the last success",
	})
	m.Suspended = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suspended",
		Help:      "1 while a suspension window is open",
	})
	m.SuccessRate = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "success_rate",
		Help:      "Success rate by window",
	}, []string{"window"})
	m.QuotaUsed = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "quota_used",
		Help:      "Live actions performed today",
	})
	m.QuotaLimit = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "quota_limit",
		Help:      "Effective daily live action limit",
	})
	m.HealthStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "health_status",
		Help:      "1 for the current health status, 0 for the others",
	}, []string{"status"})
	m.ActionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "actions_total",
		Help:      "Actions attempted by mode and result",
	}, []string{"mode", "result"})
	m.LastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last completed invocation",
	})

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveHealth copies a snapshot into the gauges.
func (m *Metrics) ObserveHealth(snap health.Snapshot, longRate float64) {
	m.ConsecutiveFailures.Set(float64(snap.ConsecutiveFailures))
	m.Suspended.Set(boolGauge(snap.Status == health.StatusSuspended))
	m.SuccessRate.WithLabelValues(WindowCurrent).Set(snap.CurrentSuccessRate)
	m.SuccessRate.WithLabelValues(WindowShort).Set(snap.WeeklySuccessRate)
	m.SuccessRate.WithLabelValues(WindowLong).Set(longRate)
	for _, s := range health.Statuses {
		m.HealthStatus.WithLabelValues(string(s)).Set(boolGauge(s == snap.Status))
	}
}

// ObserveQuota records today's usage against the limit.
func (m *Metrics) ObserveQuota(used, limit int) {
	m.QuotaUsed.Set(float64(used))
	m.QuotaLimit.Set(float64(limit))
}

// RecordAction counts one attempted action.
func (m *Metrics) RecordAction(mode types.Mode, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.ActionsTotal.WithLabelValues(string(mode), result).Inc()
}

// MarkRun stamps the completion time of an invocation.
func (m *Metrics) MarkRun(at time.Time) {
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// Push replaces the job's metric group on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = MetricsNamespace
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return pgerr.Wrap(err, pgerr.CodeTelemetryPushFailure, "pushing metrics", pgerr.Field("url", url))
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
