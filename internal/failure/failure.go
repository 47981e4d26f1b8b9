// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package failure implements the consecutive-failure circuit breaker. State
// is a plain value mutated by explicit calls; Tracker persists it.
package failure

import (
	"context"
	"time"

	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// Defaults for Policy.
const (
	DefaultMaxConsecutiveErrors = 3
	DefaultSuspension           = 24 * time.Hour
	DefaultRecentErrors         = 10
)

// Policy holds the breaker thresholds.
type Policy struct {
	MaxConsecutiveErrors int
	Suspension           time.Duration
	RecentErrors         int
}

// DefaultPolicy returns the default breaker thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		Suspension:           DefaultSuspension,
		RecentErrors:         DefaultRecentErrors,
	}
}

// Validate rejects non-positive thresholds.
func (p Policy) Validate() error {
	if p.MaxConsecutiveErrors <= 0 {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"failure.max_consecutive_errors must be positive, got %d", p.MaxConsecutiveErrors)
	}
	if p.Suspension <= 0 {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"failure.suspension must be positive, got %s", p.Suspension)
	}
	if p.RecentErrors <= 0 {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"failure.recent_errors must be positive, got %d", p.RecentErrors)
	}
	return nil
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// State is the persisted failure-tracking document.
type State struct {
	ConsecutiveFailures int          `json:"consecutive_failures"`
	RecentErrors        []ErrorEntry `json:"recent_errors"`
	SuspendedUntil      *time.Time   `json:"suspended_until,omitempty"`
}

// IsSuspended reports whether a suspension window is open at now. A lapsed
// window stays recorded until the next success clears it.
func (s State) IsSuspended(now time.Time) bool {
	return s.SuspendedUntil != nil && s.SuspendedUntil.After(now)
}

// RecordFailure counts one failure. The suspension window opens on the
// failure that first brings the count to the threshold and is never
// extended by later failures.
func (s *State) RecordFailure(p Policy, now time.Time, kind, message string) {
	s.ConsecutiveFailures++

	s.RecentErrors = append(s.RecentErrors, ErrorEntry{Timestamp: now, Kind: kind, Message: message})
	if limit := p.RecentErrors; limit > 0 && len(s.RecentErrors) > limit {
		s.RecentErrors = append([]ErrorEntry(nil), s.RecentErrors[len(s.RecentErrors)-limit:]...)
	}

	if s.ConsecutiveFailures >= p.MaxConsecutiveErrors && s.SuspendedUntil == nil {
		until := now.Add(p.Suspension)
		s.SuspendedUntil = &until
	}
}

// RecordSuccess resets the count and clears any suspension.
func (s *State) RecordSuccess() {
	s.ConsecutiveFailures = 0
	s.SuspendedUntil = nil
}

// Status is a read-only summary for status output.
type Status struct {
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Suspended           bool         `json:"suspended"`
	SuspendedUntil      *time.Time   `json:"suspended_until,omitempty"`
	Remaining           string       `json:"remaining,omitempty"`
	RecentErrors        []ErrorEntry `json:"recent_errors"`
}

// Status summarizes the state at now.
func (s State) Status(now time.Time) Status {
	st := Status{
		ConsecutiveFailures: s.ConsecutiveFailures,
		Suspended:           s.IsSuspended(now),
		SuspendedUntil:      s.SuspendedUntil,
		RecentErrors:        s.RecentErrors,
	}
	if st.Suspended {
		st.Remaining = s.SuspendedUntil.Sub(now).Round(time.Minute).String()
	}
	if st.RecentErrors == nil {
		st.RecentErrors = []ErrorEntry{}
	}
	return st
}

// Tracker loads and saves the failure document.
type Tracker struct {
	store   store.DocumentStore
	policy  Policy
	nowFunc func() time.Time // for testing
}

// NewTracker creates a Tracker over s.
func NewTracker(s store.DocumentStore, p Policy) *Tracker {
	return &Tracker{store: s, policy: p, nowFunc: time.Now}
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) { t.nowFunc = fn }

// Policy returns the tracker's thresholds.
func (t *Tracker) Policy() Policy { return t.policy }

// Load returns the persisted state; an absent document is the zero state.
func (t *Tracker) Load(ctx context.Context) (State, error) {
	var st State
	if _, err := store.LoadDocument(ctx, t.store, store.KeyFailures, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save overwrites the persisted state.
func (t *Tracker) Save(ctx context.Context, st State) error {
	return store.SaveDocument(ctx, t.store, store.KeyFailures, st)
}

// IsSuspended loads the state and checks it against the current time.
func (t *Tracker) IsSuspended(ctx context.Context) (bool, error) {
	st, err := t.Load(ctx)
	if err != nil {
		return false, err
	}
	return st.IsSuspended(t.nowFunc()), nil
}

// RecordFailure loads, updates and saves the state in one step.
func (t *Tracker) RecordFailure(ctx context.Context, kind, message string) (State, error) {
	st, err := t.Load(ctx)
	if err != nil {
		return State{}, err
	}
	st.RecordFailure(t.policy, t.nowFunc(), kind, message)
	return st, t.Save(ctx, st)
}

// RecordSuccess loads, clears and saves the state in one step.
func (t *Tracker) RecordSuccess(ctx context.Context) (State, error) {
	st, err := t.Load(ctx)
	if err != nil {
		return State{}, err
	}
	st.RecordSuccess()
	return st, t.Save(ctx, st)
}

// Reset clears the counter and suspension while keeping the error history.
func (t *Tracker) Reset(ctx context.Context) error {
	_, err := t.RecordSuccess(ctx)
	return err
}
