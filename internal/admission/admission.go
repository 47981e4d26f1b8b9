// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package admission decides, per invocation, whether live actions may run
// and how many. The decision is recomputed from persisted facts each time.
package admission

import (
	"fmt"
	"time"

	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/monitor"
	"github.com/postgate-dev/postgate/internal/quota"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/types"
)

// Verdict is the admission state for one invocation.
type Verdict string

const (
	VerdictSuspended  Verdict = "SUSPENDED"
	VerdictDryRunOnly Verdict = "DRY_RUN_ONLY"
	VerdictLive       Verdict = "LIVE"
)

// Defaults for Policy.
const (
	DefaultDailyLimit       = 3
	DefaultSuccessThreshold = 0.8
)

// Policy holds the admission settings.
type Policy struct {
	DailyLimit       int
	MaxDailyLimit    int
	Gradual          bool
	SuccessThreshold float64
}

// DefaultPolicy returns the default admission settings.
func DefaultPolicy() Policy {
	return Policy{
		DailyLimit:       DefaultDailyLimit,
		MaxDailyLimit:    quota.HardCap,
		Gradual:          true,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// Validate checks the settings.
func (p Policy) Validate() error {
	if p.DailyLimit < 0 || p.DailyLimit > quota.HardCap {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"admission.daily_limit must be within 0..%d, got %d", quota.HardCap, p.DailyLimit)
	}
	if p.MaxDailyLimit < 0 || p.MaxDailyLimit > quota.HardCap {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"admission.max_daily_limit must be within 0..%d, got %d", quota.HardCap, p.MaxDailyLimit)
	}
	if p.SuccessThreshold < 0 || p.SuccessThreshold > 1 {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"admission.success_threshold must be within 0..1, got %v", p.SuccessThreshold)
	}
	return nil
}

// Limit returns the effective daily limit. A positive override replaces
// DailyLimit but is still clamped by MaxDailyLimit and the hard cap.
func (p Policy) Limit(override int) int {
	requested := p.DailyLimit
	if override > 0 {
		requested = override
	}
	return quota.EffectiveLimit(requested, p.MaxDailyLimit)
}

// Input is the persisted state a decision is made from.
type Input struct {
	Now            time.Time
	Failures       failure.State
	Limit          int
	PerformedToday int
	ForceDryRun    bool
}

// Decision is the outcome of Decide. Verdict is the admission state; when
// QuotaExhausted is set the verdict stays LIVE but nothing is admitted, so
// consumers must check Allowed or QuotaExhausted before reading Verdict as
// "actions will run".
type Decision struct {
	Verdict        Verdict    `json:"verdict" doc:"Admission state; with quota_exhausted set no action is admitted"`
	Mode           types.Mode `json:"mode" doc:"Execution mode recorded for the invocation"`
	Allowed        int        `json:"allowed" doc:"Actions admitted for this invocation"`
	Remaining      int        `json:"remaining" doc:"Quota remaining today"`
	Limit          int        `json:"limit" doc:"Effective daily limit"`
	CurrentRate    float64    `json:"current_rate" doc:"Coarse success rate derived from consecutive failures"`
	QuotaExhausted bool       `json:"quota_exhausted" doc:"Authoritative no-op marker: the daily quota is spent and nothing runs"`
	Forced         bool       `json:"forced" doc:"Dry run requested by the operator rather than by the gradual gate"`
	Reason         string     `json:"reason" doc:"Human-readable explanation"`
}

// Idle reports whether the decision admits no work at all.
func (d Decision) Idle() bool {
	return d.Verdict == VerdictSuspended || d.QuotaExhausted
}

// Decide applies, in order: suspension, remaining budget, the gradual gate.
// An active suspension always yields VerdictSuspended.
func Decide(p Policy, in Input) Decision {
	current := monitor.CurrentRate(in.Failures.ConsecutiveFailures)
	d := Decision{
		Limit:       in.Limit,
		Remaining:   quota.Remaining(in.Limit, in.PerformedToday),
		CurrentRate: current,
	}

	if in.Failures.IsSuspended(in.Now) {
		d.Verdict = VerdictSuspended
		d.Mode = types.ModeSuspended
		d.Reason = "suspended until " + in.Failures.SuspendedUntil.Format(time.RFC3339)
		return d
	}

	if d.Remaining <= 0 {
		d.Verdict = VerdictLive
		d.Mode = types.ModeLive
		d.QuotaExhausted = true
		d.Reason = fmt.Sprintf("daily quota reached (%d/%d)", in.PerformedToday, in.Limit)
		return d
	}

	d.Allowed = d.Remaining

	if in.ForceDryRun {
		d.Verdict = VerdictDryRunOnly
		d.Mode = types.ModeDryRun
		d.Forced = true
		d.Reason = "dry run requested"
		return d
	}

	if p.Gradual {
		if current < p.SuccessThreshold {
			d.Verdict = VerdictDryRunOnly
			d.Mode = types.ModeDryRun
			d.Reason = fmt.Sprintf("success rate %.2f below threshold %.2f", current, p.SuccessThreshold)
			return d
		}
		d.Verdict = VerdictLive
		d.Mode = types.ModeGradual
		d.Reason = fmt.Sprintf("success rate %.2f meets threshold %.2f", current, p.SuccessThreshold)
		return d
	}

	d.Verdict = VerdictLive
	d.Mode = types.ModeLive
	d.Reason = "gradual admission disabled"
	return d
}
