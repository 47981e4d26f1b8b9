// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package schedule runs invocations on cron specs inside a long-lived
// process. Every tick is an independent invocation over the store.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// parser accepts standard 5-field specs and descriptors like @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate parses spec without scheduling anything.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return pgerr.Wrap(err, pgerr.CodeScheduleInvalid, "invalid cron spec", pgerr.Field("spec", spec))
	}
	return nil
}

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// slogAdapter routes cron's internal logging to slog.
type slogAdapter struct{}

func (slogAdapter) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

// Scheduler wraps a cron instance. Overlapping ticks of the same job are
// skipped, and a panicking job does not take the process down.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a Scheduler evaluating specs in loc. A nil loc means
// time.Local.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := slogAdapter{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. An empty spec disables the job.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		slog.Info("schedule disabled", "job", job.Name)
		return nil
	}
	if err := Validate(job.Spec); err != nil {
		return pgerr.With(err, pgerr.Field("job", job.Name))
	}

	id, err := s.cron.AddFunc(job.Spec, func() {
		started := time.Now()
		slog.Info("scheduled job starting", "job", job.Name)
		if err := job.Run(s.ctx); err != nil {
			slog.Error("scheduled job failed", "job", job.Name, "error", err, "duration", time.Since(started))
			return
		}
		slog.Info("scheduled job finished", "job", job.Name, "duration", time.Since(started))
	})
	if err != nil {
		return pgerr.Wrap(err, pgerr.CodeScheduleInvalid, "adding job", pgerr.Field("job", job.Name))
	}

	s.mu.Lock()
	s.entries[job.Name] = id
	s.mu.Unlock()
	return nil
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	return e.Next, e.Valid()
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for name := range s.entries {
		if next, ok := s.Next(name); ok {
			slog.Info("job scheduled", "job", name, "next", next)
		}
	}
}

// Stop cancels running jobs' context and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}
