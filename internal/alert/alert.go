// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package alert hands high-severity health alerts to an external sink.
// Delivery is best-effort: failures are logged and never returned to the
// caller's decision path.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/postgate-dev/postgate/internal/monitor"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
)

// DefaultTimeout bounds one sink call.
const DefaultTimeout = 15 * time.Second

// Sink raises an issue or notification.
type Sink interface {
	Raise(ctx context.Context, title, body string, labels []string) error
}

// LogSink writes alerts to the structured log.
type LogSink struct{}

func (LogSink) Raise(_ context.Context, title, body string, labels []string) error {
	slog.Warn("health alert", "title", title, "labels", labels, "body", body)
	return nil
}

// NopSink drops alerts.
type NopSink struct{}

func (NopSink) Raise(context.Context, string, string, []string) error { return nil }

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// GitHubSink opens an issue with the GitHub CLI.
type GitHubSink struct {
	Repo   string
	GHPath string
	run    runFunc
}

// NewGitHubSink returns a sink that shells out to gh. An empty repo lets
// gh infer it from the working directory.
func NewGitHubSink(repo, ghPath string) *GitHubSink {
	if ghPath == "" {
		ghPath = "gh"
	}
	return &GitHubSink{Repo: repo, GHPath: ghPath, run: execRun}
}

func (g *GitHubSink) Raise(ctx context.Context, title, body string, labels []string) error {
	args := []string{"issue", "create", "--title", title, "--body", body}
	if g.Repo != "" {
		args = append(args, "--repo", g.Repo)
	}
	for _, l := range labels {
		args = append(args, "--label", l)
	}

	out, err := g.run(ctx, g.GHPath, args...)
	if err != nil {
		return pgerr.Wrap(err, pgerr.CodeAlertDispatchFailure,
			"gh issue create failed: "+strings.TrimSpace(string(out)),
			pgerr.Field("repo", g.Repo))
	}
	slog.Info("alert issue created", "repo", g.Repo, "url", strings.TrimSpace(string(out)))
	return nil
}

// NewSink builds the configured sink.
func NewSink(kind, repo, ghPath string) (Sink, error) {
	switch kind {
	case "", "log":
		return LogSink{}, nil
	case "none":
		return NopSink{}, nil
	case "github":
		return NewGitHubSink(repo, ghPath), nil
	default:
		return nil, pgerr.New(pgerr.CodeAlertSinkUnsupported, "unsupported alert sink: "+kind)
	}
}

// Dispatcher fans alerts out to a sink without blocking the caller.
type Dispatcher struct {
	sink    Sink
	labels  []string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A non-positive timeout uses
// DefaultTimeout.
func NewDispatcher(sink Sink, labels []string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sink: sink, labels: labels, timeout: timeout}
}

// Notify raises every high-severity alert in cur that prev did not already
// carry. It returns the number of alerts handed off.
func (d *Dispatcher) Notify(cur health.Snapshot, prev *health.Snapshot) int {
	fresh := monitor.NewAlerts(cur, prev)
	for _, a := range fresh {
		title, body := Format(a, cur)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.sink.Raise(ctx, title, body, d.labels); err != nil {
				slog.Error("alert dispatch failed", "type", a.Type, "error", err)
			}
		}()
	}
	return len(fresh)
}

// Wait blocks until in-flight alerts finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Format renders an alert as an issue title and markdown body.
func Format(a health.Alert, snap health.Snapshot) (title, body string) {
	title = fmt.Sprintf("[postgate] %s: %s", a.Type, a.Message)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", a.Message)
	fmt.Fprintf(&b, "- **Threshold:** %s\n", a.ThresholdDescription)
	fmt.Fprintf(&b, "- **Severity:** %s\n", a.Severity)
	fmt.Fprintf(&b, "- **Status:** %s\n", snap.Status)
	fmt.Fprintf(&b, "- **Consecutive failures:** %d\n", snap.ConsecutiveFailures)
	fmt.Fprintf(&b, "- **Current success rate:** %.1f%%\n", snap.CurrentSuccessRate*100)
	fmt.Fprintf(&b, "- **Weekly success rate:** %.1f%%\n", snap.WeeklySuccessRate*100)
	fmt.Fprintf(&b, "- **Trend:** %s\n", snap.Trend)
	if snap.SuspendedUntil != nil {
		fmt.Fprintf(&b, "- **Suspended until:** %s\n", snap.SuspendedUntil.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nEvaluated at %s.\n", snap.EvaluatedAt.Format(time.RFC3339))
	return title, b.String()
}
