// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package quota tracks live actions per calendar day.
package quota

import (
	"context"
	"sort"
	"time"

	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// DateLayout is the day key format.
const DateLayout = "2006-01-02"

// HardCap bounds any configured or requested daily limit.
const HardCap = 3

// DailyQuota is the record for one calendar day.
type DailyQuota struct {
	Date             string     `json:"date"`
	ActionsPerformed int        `json:"actions_performed"`
	LastActionAt     *time.Time `json:"last_action_at,omitempty"`
}

// Ledger holds one record per day. Days are never removed.
type Ledger map[string]DailyQuota

// Day returns the record for date, or a zero record when absent.
func (l Ledger) Day(date string) DailyQuota {
	if q, ok := l[date]; ok {
		return q
	}
	return DailyQuota{Date: date}
}

// Dates returns the ledger's day keys in ascending order.
func (l Ledger) Dates() []string {
	dates := make([]string, 0, len(l))
	for d := range l {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// EffectiveLimit clamps a requested limit to [0, min(maxLimit, HardCap)].
func EffectiveLimit(requested, maxLimit int) int {
	limit := requested
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if limit > HardCap {
		limit = HardCap
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// Remaining returns limit - performed, floored at zero.
func Remaining(limit, performed int) int {
	if r := limit - performed; r > 0 {
		return r
	}
	return 0
}

// Tracker reads and writes the quota ledger.
type Tracker struct {
	store   store.DocumentStore
	loc     *time.Location
	nowFunc func() time.Time // for testing
}

// NewTracker creates a Tracker whose day boundaries follow loc. A nil loc
// means time.Local.
func NewTracker(s store.DocumentStore, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{store: s, loc: loc, nowFunc: time.Now}
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) { t.nowFunc = fn }

// DateKey returns the day key for ts in the tracker's location.
func (t *Tracker) DateKey(ts time.Time) string {
	return ts.In(t.loc).Format(DateLayout)
}

// Ledger loads the full ledger; an absent document is an empty ledger.
func (t *Tracker) Ledger(ctx context.Context) (Ledger, error) {
	ledger := Ledger{}
	if _, err := store.LoadDocument(ctx, t.store, store.KeyQuota, &ledger); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = Ledger{}
	}
	return ledger, nil
}

// Today returns today's record.
func (t *Tracker) Today(ctx context.Context) (DailyQuota, error) {
	ledger, err := t.Ledger(ctx)
	if err != nil {
		return DailyQuota{}, err
	}
	return ledger.Day(t.DateKey(t.nowFunc())), nil
}

// Remaining returns how many actions limit still allows today.
func (t *Tracker) Remaining(ctx context.Context, limit int) (int, error) {
	today, err := t.Today(ctx)
	if err != nil {
		return 0, err
	}
	return Remaining(limit, today.ActionsPerformed), nil
}

// RecordAction overwrites today's count with total and stamps the time.
func (t *Tracker) RecordAction(ctx context.Context, total int) error {
	if total < 0 {
		return pgerr.New(pgerr.CodeStoreInvalidInput, "quota total must not be negative",
			pgerr.Field("total", total))
	}

	ledger, err := t.Ledger(ctx)
	if err != nil {
		return err
	}

	now := t.nowFunc()
	date := t.DateKey(now)
	ledger[date] = DailyQuota{Date: date, ActionsPerformed: total, LastActionAt: &now}

	return store.SaveDocument(ctx, t.store, store.KeyQuota, ledger)
}

// Increment re-reads today's count, adds one and saves it. It returns the
// new total.
func (t *Tracker) Increment(ctx context.Context) (int, error) {
	today, err := t.Today(ctx)
	if err != nil {
		return 0, err
	}
	total := today.ActionsPerformed + 1
	return total, t.RecordAction(ctx, total)
}

// Reset zeroes the count for date. An empty date means today.
func (t *Tracker) Reset(ctx context.Context, date string) error {
	if date == "" {
		date = t.DateKey(t.nowFunc())
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return pgerr.Wrap(err, pgerr.CodeStoreInvalidInput, "invalid quota date", pgerr.Field("date", date))
	}

	ledger, err := t.Ledger(ctx)
	if err != nil {
		return err
	}
	ledger[date] = DailyQuota{Date: date}
	return store.SaveDocument(ctx, t.store, store.KeyQuota, ledger)
}
