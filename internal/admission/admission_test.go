// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package admission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/admission"
	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/pkg/types"
)

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func stateWith(n int) failure.State {
	var st failure.State
	p := failure.DefaultPolicy()
	for i := 0; i < n; i++ {
		st.RecordFailure(p, now.Add(-time.Hour), "action", "x")
	}
	return st
}

func TestDecide_SuspendedWinsOverEverything(t *testing.T) {
	st := stateWith(3)
	for _, gradual := range []bool{true, false} {
		for performed := 0; performed <= 4; performed++ {
			for _, force := range []bool{true, false} {
				p := admission.DefaultPolicy()
				p.Gradual = gradual
				p.SuccessThreshold = 0
				d := admission.Decide(p, admission.Input{
					Now: now, Failures: st, Limit: 3, PerformedToday: performed, ForceDryRun: force,
				})
				assert.Equal(t, admission.VerdictSuspended, d.Verdict)
				assert.Equal(t, types.ModeSuspended, d.Mode)
				assert.Zero(t, d.Allowed)
				assert.True(t, d.Idle())
			}
		}
	}
}

func TestDecide_NoBudgetIsNoop(t *testing.T) {
	d := admission.Decide(admission.DefaultPolicy(), admission.Input{Now: now, Limit: 1, PerformedToday: 1})
	assert.True(t, d.QuotaExhausted)
	assert.True(t, d.Idle())
	assert.Zero(t, d.Allowed)
	assert.Zero(t, d.Remaining)

	d = admission.Decide(admission.DefaultPolicy(), admission.Input{Now: now, Limit: 1, PerformedToday: 5})
	assert.Zero(t, d.Remaining)
}

func TestDecide_FreshStateIsLive(t *testing.T) {
	d := admission.Decide(admission.DefaultPolicy(), admission.Input{Now: now, Limit: 3, PerformedToday: 1})
	assert.Equal(t, admission.VerdictLive, d.Verdict)
	assert.Equal(t, types.ModeGradual, d.Mode)
	assert.Equal(t, 2, d.Allowed)
	assert.Equal(t, 1.0, d.CurrentRate)
	assert.False(t, d.Idle())
}

func TestDecide_GradualGate(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		threshold float64
		want      admission.Verdict
	}{
		{"two failures meet 0.8", 2, 0.8, admission.VerdictLive},
		{"two failures miss 0.85", 2, 0.85, admission.VerdictDryRunOnly},
		{"one failure meets 0.8", 1, 0.8, admission.VerdictLive},
		{"zero threshold", 2, 0, admission.VerdictLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := admission.DefaultPolicy()
			p.SuccessThreshold = tt.threshold
			d := admission.Decide(p, admission.Input{Now: now, Failures: stateWith(tt.failures), Limit: 3})
			assert.Equal(t, tt.want, d.Verdict)
			assert.Equal(t, 3, d.Allowed)
		})
	}
}

func TestDecide_LapsedSuspensionGoesDryRun(t *testing.T) {
	st := stateWith(3)
	d := admission.Decide(admission.DefaultPolicy(), admission.Input{
		Now: now.Add(25 * time.Hour), Failures: st, Limit: 3,
	})
	assert.Equal(t, admission.VerdictDryRunOnly, d.Verdict)
	assert.Equal(t, types.ModeDryRun, d.Mode)
	assert.Equal(t, 0.5, d.CurrentRate)
}

func TestDecide_GradualDisabled(t *testing.T) {
	p := admission.DefaultPolicy()
	p.Gradual = false
	d := admission.Decide(p, admission.Input{Now: now, Failures: stateWith(2), Limit: 3})
	assert.Equal(t, admission.VerdictLive, d.Verdict)
	assert.Equal(t, types.ModeLive, d.Mode)
}

func TestDecide_ForceDryRun(t *testing.T) {
	d := admission.Decide(admission.DefaultPolicy(), admission.Input{Now: now, Limit: 2, ForceDryRun: true})
	assert.Equal(t, admission.VerdictDryRunOnly, d.Verdict)
	assert.Equal(t, 2, d.Allowed)
}

func TestPolicy_Limit(t *testing.T) {
	p := admission.DefaultPolicy()
	assert.Equal(t, 3, p.Limit(0))
	assert.Equal(t, 1, p.Limit(1))
	assert.Equal(t, 3, p.Limit(10))

	p.MaxDailyLimit = 2
	assert.Equal(t, 2, p.Limit(0))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, admission.DefaultPolicy().Validate())

	p := admission.DefaultPolicy()
	p.SuccessThreshold = 1.5
	assert.Error(t, p.Validate())

	p = admission.DefaultPolicy()
	p.MaxDailyLimit = 10
	assert.Error(t, p.Validate())

	p = admission.DefaultPolicy()
	p.DailyLimit = 5
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admission.daily_limit")
}
