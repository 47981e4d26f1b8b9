// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package alert_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/alert"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

type recordingSink struct {
	mu     sync.Mutex
	titles []string
	err    error
	block  chan struct{}
}

func (r *recordingSink) Raise(ctx context.Context, title, _ string, _ []string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func suspendedSnapshot() health.Snapshot {
	until := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	return health.Snapshot{
		Status:         health.StatusSuspended,
		SuspendedUntil: &until,
		Alerts: []health.Alert{
			{Type: health.AlertConsecutiveErrorsCritical, Message: "3 consecutive failures", Severity: health.SeverityHigh},
			{Type: health.AlertSystemSuspended, Message: "suspended", Severity: health.SeverityHigh},
		},
	}
}

func TestDispatcher_NotifiesOnlyNewAlerts(t *testing.T) {
	sink := &recordingSink{}
	d := alert.NewDispatcher(sink, []string{"postgate"}, time.Second)

	cur := suspendedSnapshot()
	assert.Equal(t, 2, d.Notify(cur, nil))

	prev := suspendedSnapshot()
	assert.Equal(t, 0, d.Notify(cur, &prev))

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("rate limited")}
	d := alert.NewDispatcher(sink, nil, time.Second)

	assert.Equal(t, 2, d.Notify(suspendedSnapshot(), nil))
	require.NoError(t, d.Wait(context.Background()))
}

func TestDispatcher_WaitHonorsContext(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := alert.NewDispatcher(sink, nil, time.Minute)
	d.Notify(suspendedSnapshot(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(sink.block)
	require.NoError(t, d.Wait(context.Background()))
}

func TestDispatcher_IgnoresMediumSeverity(t *testing.T) {
	sink := &recordingSink{}
	d := alert.NewDispatcher(sink, nil, time.Second)
	snap := health.Snapshot{
		Status:   health.StatusWarning,
		Warnings: []health.Alert{{Type: health.AlertConsecutiveErrorsWarning, Severity: health.SeverityMedium}},
	}
	assert.Zero(t, d.Notify(snap, nil))
}

func TestGitHubSink_BuildsCommand(t *testing.T) {
	g := alert.NewGitHubSink("acme/bot", "")
	var gotName string
	var gotArgs []string
	g.SetRunFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("https://github.com/acme/bot/issues/7\n"), nil
	})

	require.NoError(t, g.Raise(context.Background(), "t", "b", []string{"postgate", "alert"}))
	assert.Equal(t, "gh", gotName)
	assert.Equal(t, []string{
		"issue", "create", "--title", "t", "--body", "b",
		"--repo", "acme/bot", "--label", "postgate", "--label", "alert",
	}, gotArgs)
}

func TestGitHubSink_Failure(t *testing.T) {
	g := alert.NewGitHubSink("", "gh")
	g.SetRunFunc(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("HTTP 401"), errors.New("exit status 1")
	})

	err := g.Raise(context.Background(), "t", "b", nil)
	require.Error(t, err)
	assert.True(t, pgerr.HasCode(err, pgerr.CodeAlertDispatchFailure))
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestNewSink(t *testing.T) {
	for _, kind := range []string{"", "log", "none", "github"} {
		s, err := alert.NewSink(kind, "", "")
		require.NoError(t, err, kind)
		assert.NotNil(t, s)
	}
	_, err := alert.NewSink("pagerduty", "", "")
	assert.True(t, pgerr.HasCode(err, pgerr.CodeAlertSinkUnsupported))
}

func TestFormat(t *testing.T) {
	snap := suspendedSnapshot()
	title, body := alert.Format(snap.Alerts[1], snap)
	assert.Equal(t, "[postgate] system_suspended: suspended", title)
	assert.Contains(t, body, "Suspended until:** 2026-08-02T09:00:00Z")
}
