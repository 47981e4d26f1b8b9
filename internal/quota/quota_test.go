// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/quota"
	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func newTracker(t *testing.T, now *time.Time) (*quota.Tracker, store.DocumentStore) {
	t.Helper()
	s := store.NewMemoryStore()
	tr := quota.NewTracker(s, time.UTC)
	tr.SetNowFunc(func() time.Time { return *now })
	return tr, s
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		maxLimit  int
		want      int
	}{
		{"default", 3, 3, 3},
		{"below max", 1, 3, 1},
		{"above max", 5, 2, 2},
		{"hard cap wins", 10, 10, quota.HardCap},
		{"negative", -1, 3, 0},
		{"no max", 2, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quota.EffectiveLimit(tt.requested, tt.maxLimit))
		})
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	for performed := 0; performed <= 10; performed++ {
		for limit := 0; limit <= 5; limit++ {
			r := quota.Remaining(limit, performed)
			assert.GreaterOrEqual(t, r, 0)
			if performed > limit {
				assert.Equal(t, 0, r)
			}
		}
	}
}

func TestTracker_FreshDayIsZero(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tr, _ := newTracker(t, &now)

	rem, err := tr.Remaining(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rem)

	today, err := tr.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", today.Date)
	assert.Nil(t, today.LastActionAt)
}

func TestTracker_RecordActionOverwrites(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tr, _ := newTracker(t, &now)

	require.NoError(t, tr.RecordAction(ctx, 1))
	require.NoError(t, tr.RecordAction(ctx, 2))

	today, err := tr.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, today.ActionsPerformed)
	require.NotNil(t, today.LastActionAt)
	assert.True(t, now.Equal(*today.LastActionAt))

	rem, err := tr.Remaining(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, rem)

	rem, err = tr.Remaining(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rem)
}

func TestTracker_NewDayResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 23, 30, 0, 0, time.UTC)
	tr, _ := newTracker(t, &now)

	require.NoError(t, tr.RecordAction(ctx, 3))
	now = now.Add(time.Hour)

	rem, err := tr.Remaining(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rem)

	ledger, err := tr.Ledger(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-04-01"}, ledger.Dates())
}

func TestTracker_DayFollowsLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	tr := quota.NewTracker(store.NewMemoryStore(), tokyo)

	// 16:00 UTC is already the next day in JST.
	ts := time.Date(2026, 4, 1, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-04-02", tr.DateKey(ts))
}

func TestTracker_RejectsNegativeTotal(t *testing.T) {
	now := time.Now()
	tr, _ := newTracker(t, &now)
	err := tr.RecordAction(context.Background(), -1)
	require.Error(t, err)
	assert.True(t, pgerr.IsInvalidInput(err))
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tr, _ := newTracker(t, &now)

	require.NoError(t, tr.RecordAction(ctx, 3))
	require.NoError(t, tr.Reset(ctx, ""))

	rem, err := tr.Remaining(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rem)

	assert.Error(t, tr.Reset(ctx, "yesterday"))
}

func TestTracker_CorruptLedgerIsStoreFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tr, s := newTracker(t, &now)
	require.NoError(t, s.Save(ctx, store.KeyQuota, []byte("[")))

	_, err := tr.Remaining(ctx, 3)
	require.Error(t, err)
	assert.True(t, pgerr.IsStoreFailure(err))
}

func TestTracker_IncrementRereads(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tr, s := newTracker(t, &now)

	total, err := tr.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// Another tracker on the same store writes in between.
	other := quota.NewTracker(s, time.UTC)
	other.SetNowFunc(func() time.Time { return now })
	require.NoError(t, other.RecordAction(ctx, 5))

	total, err = tr.Increment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}
