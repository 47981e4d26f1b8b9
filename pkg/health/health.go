// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package health

import "time"

// Status is the overall health verdict of the posting system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusSuspended Status = "suspended"
)

// Statuses lists every status from weakest to strongest.
var Statuses = []Status{StatusHealthy, StatusWarning, StatusCritical, StatusSuspended}

// rank orders statuses: suspended > critical > warning > healthy.
func (s Status) rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusSuspended:
		return 3
	default:
		return 0
	}
}

// Raise returns the stronger of s and other. Combining statuses with Raise
// never lowers a verdict.
func (s Status) Raise(other Status) Status {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// Severity classifies an alert or warning.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Trend compares the short-window success rate to the long-window one.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Alert types raised by the evaluator.
const (
	AlertSuccessRateCritical       = "success_rate_critical"
	AlertSuccessRateWarning        = "success_rate_warning"
	AlertConsecutiveErrorsCritical = "consecutive_errors_critical"
	AlertConsecutiveErrorsWarning  = "consecutive_errors_warning"
	AlertSystemSuspended           = "system_suspended"
)

// Alert is a single structured finding in a snapshot.
type Alert struct {
	Type                 string   `json:"type" yaml:"type"`
	Message              string   `json:"message" yaml:"message"`
	ThresholdDescription string   `json:"threshold_description" yaml:"threshold_description"`
	Severity             Severity `json:"severity" yaml:"severity"`
}

// Snapshot is a point-in-time health verdict. It is derived from the failure
// state and the execution log at evaluation time and is safe to serialize.
// A persisted copy exists for observability only.
type Snapshot struct {
	Status              Status     `json:"status" yaml:"status"`
	Alerts              []Alert    `json:"alerts" yaml:"alerts"`
	Warnings            []Alert    `json:"warnings" yaml:"warnings"`
	CurrentSuccessRate  float64    `json:"current_success_rate" yaml:"current_success_rate"`
	WeeklySuccessRate   float64    `json:"weekly_success_rate" yaml:"weekly_success_rate"`
	Trend               Trend      `json:"trend" yaml:"trend"`
	ConsecutiveFailures int        `json:"consecutive_failures" yaml:"consecutive_failures"`
	SuspendedUntil      *time.Time `json:"suspended_until,omitempty" yaml:"suspended_until,omitempty"`
	EvaluatedAt         time.Time  `json:"evaluated_at" yaml:"evaluated_at"`
}

// HighSeverityAlerts returns the alerts that warrant an external hand-off.
func (s Snapshot) HighSeverityAlerts() []Alert {
	var out []Alert
	for _, a := range s.Alerts {
		if a.Severity == SeverityHigh {
			out = append(out, a)
		}
	}
	return out
}

// HasAlert reports whether the snapshot carries an alert of the given type.
func (s Snapshot) HasAlert(alertType string) bool {
	for _, a := range s.Alerts {
		if a.Type == alertType {
			return true
		}
	}
	return false
}
