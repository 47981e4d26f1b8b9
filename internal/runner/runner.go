// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package runner drives one invocation: it loads persisted state, asks the
// admission controller for a verdict, performs or simulates the admitted
// actions and writes the outcome back.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/postgate-dev/postgate/internal/action"
	"github.com/postgate-dev/postgate/internal/admission"
	"github.com/postgate-dev/postgate/internal/alert"
	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/monitor"
	"github.com/postgate-dev/postgate/internal/quota"
	"github.com/postgate-dev/postgate/internal/redact"
	"github.com/postgate-dev/postgate/internal/source"
	"github.com/postgate-dev/postgate/internal/store"
	"github.com/postgate-dev/postgate/internal/telemetry"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/health"
	"github.com/postgate-dev/postgate/pkg/types"
)

// DefaultLockTTL bounds how long a crashed invocation can block the next.
const DefaultLockTTL = 2 * time.Hour

// Failure kind recorded when candidates cannot be fetched.
const KindItemSource = "item_source"

// Options are the tunables of a Runner.
type Options struct {
	Admission      admission.Policy
	Failure        failure.Policy
	Metrics        metrics.Options
	Thresholds     monitor.Thresholds
	Location       *time.Location
	LockTTL        time.Duration
	ActionInterval time.Duration
	ActionJitter   time.Duration
	PushgatewayURL string
	PushJob        string
}

// DefaultOptions returns options with every default applied and no pacing.
func DefaultOptions() Options {
	return Options{
		Admission:  admission.DefaultPolicy(),
		Failure:    failure.DefaultPolicy(),
		Metrics:    metrics.DefaultOptions(),
		Thresholds: monitor.DefaultThresholds(),
		Location:   time.Local,
		LockTTL:    DefaultLockTTL,
	}
}

// Deps are the collaborators of a Runner. Source and Performer are only
// needed by Run.
type Deps struct {
	Store     store.DocumentStore
	Source    source.Source
	Performer action.Performer
	Alerts    *alert.Dispatcher
	Telemetry *telemetry.Metrics
	// Redactor masks credentials in error text before it is persisted.
	// Nil uses redact.Default().
	Redactor *redact.Redactor
}

// RunOptions adjust a single invocation.
type RunOptions struct {
	DryRun   bool // force DRY_RUN_ONLY
	MaxPosts int  // replaces the configured daily limit, still capped
}

// Result describes what an invocation did.
type Result struct {
	InvocationID string             `json:"invocation_id"`
	Decision     admission.Decision `json:"decision"`
	Mode         types.Mode         `json:"mode"`
	Performed    int                `json:"performed"`
	Simulated    int                `json:"simulated"`
	Targeted     int                `json:"targeted"`
	Success      bool               `json:"success"`
	Health       health.Snapshot    `json:"health"`
	Errors       []string           `json:"errors"`
	Duration     time.Duration      `json:"duration"`
}

// Runner orchestrates invocations over a DocumentStore.
type Runner struct {
	store     store.DocumentStore
	quota     *quota.Tracker
	failures  *failure.Tracker
	recorder  *metrics.Recorder
	source    source.Source
	performer action.Performer
	simulator action.Performer
	alerts    *alert.Dispatcher
	telemetry *telemetry.Metrics
	redactor  *redact.Redactor
	opts      Options

	nowFunc func() time.Time                                 // for testing
	sleep   func(ctx context.Context, d time.Duration) error // for testing
}

// New wires a Runner. Missing alert and telemetry collaborators are replaced
// with inert ones.
func New(deps Deps, opts Options) (*Runner, error) {
	if deps.Store == nil {
		return nil, pgerr.New(pgerr.CodeConfigRequiredMissing, "runner requires a store")
	}
	for _, v := range []interface{ Validate() error }{opts.Admission, opts.Failure, opts.Metrics, opts.Thresholds} {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.NewDispatcher(alert.NopSink{}, nil, 0)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.New()
	}
	if deps.Redactor == nil {
		deps.Redactor = redact.Default()
	}

	return &Runner{
		store:     deps.Store,
		quota:     quota.NewTracker(deps.Store, opts.Location),
		failures:  failure.NewTracker(deps.Store, opts.Failure),
		recorder:  metrics.NewRecorder(deps.Store, opts.Metrics),
		source:    deps.Source,
		performer: deps.Performer,
		simulator: action.Simulator{},
		alerts:    deps.Alerts,
		telemetry: deps.Telemetry,
		redactor:  deps.Redactor,
		opts:      opts,
		nowFunc:   time.Now,
		sleep:     sleepContext,
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (r *Runner) SetNowFunc(fn func() time.Time) {
	r.nowFunc = fn
	r.quota.SetNowFunc(fn)
	r.failures.SetNowFunc(fn)
}

// Quota returns the quota tracker.
func (r *Runner) Quota() *quota.Tracker { return r.quota }

// Failures returns the failure tracker.
func (r *Runner) Failures() *failure.Tracker { return r.failures }

// Recorder returns the metrics recorder.
func (r *Runner) Recorder() *metrics.Recorder { return r.recorder }

// Telemetry returns the metrics collectors.
func (r *Runner) Telemetry() *telemetry.Metrics { return r.telemetry }

// Options returns the runner's options.
func (r *Runner) Options() Options { return r.opts }

// invocation carries the state loaded for one Run.
type invocation struct {
	id       string
	logger   *slog.Logger
	start    time.Time
	failures failure.State
	log      metrics.Log
	previous *health.Snapshot
	limit    int
	result   *Result

	// performedToday is the quota count read before admission.
	performedToday int
	// recorded is set once the outcome record has been persisted.
	recorded bool
}

// Run performs one invocation. The returned Result is never nil; an error
// means a top-level fault, after which a best-effort error record has been
// appended to the execution log.
func (r *Runner) Run(ctx context.Context, ro RunOptions) (*Result, error) {
	inv := &invocation{
		id:    uuid.NewString(),
		start: r.nowFunc(),
	}
	inv.logger = slog.With("invocation_id", inv.id)
	inv.result = &Result{InvocationID: inv.id, Errors: []string{}}

	release, err := store.AcquireLock(ctx, r.store, store.InvocationLock, r.opts.LockTTL)
	if err != nil {
		inv.result.Mode = types.ModeError
		if errors.Is(err, store.ErrLocked) {
			err = pgerr.Wrap(err, pgerr.CodeRunnerInvocationLocked,
				"another invocation is running", pgerr.FieldInvocationID(inv.id))
		} else {
			err = pgerr.Wrap(err, pgerr.CodeStoreDatabaseFailure, "acquiring invocation lock",
				pgerr.FieldInvocationID(inv.id))
		}
		inv.result.Errors = append(inv.result.Errors, r.scrub(err))
		inv.logger.Error("invocation not started", "error", r.scrub(err))
		return inv.result, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			inv.logger.Warn("releasing invocation lock", "error", err)
		}
	}()

	if err := r.run(ctx, inv, ro); err != nil {
		r.recordFault(ctx, inv, err)
		return inv.result, pgerr.With(err, pgerr.FieldInvocationID(inv.id))
	}
	return inv.result, nil
}

func (r *Runner) run(ctx context.Context, inv *invocation, ro RunOptions) error {
	var err error
	if inv.failures, err = r.failures.Load(ctx); err != nil {
		return err
	}
	if inv.log, err = r.recorder.Load(ctx); err != nil {
		return err
	}
	var prev health.Snapshot
	found, err := store.LoadDocument(ctx, r.store, store.KeyHealth, &prev)
	if err != nil {
		return err
	}
	if found {
		inv.previous = &prev
	}
	today, err := r.quota.Today(ctx)
	if err != nil {
		return err
	}
	inv.performedToday = today.ActionsPerformed

	inv.limit = r.opts.Admission.Limit(ro.MaxPosts)
	d := admission.Decide(r.opts.Admission, admission.Input{
		Now:            inv.start,
		Failures:       inv.failures,
		Limit:          inv.limit,
		PerformedToday: today.ActionsPerformed,
		ForceDryRun:    ro.DryRun,
	})
	res := inv.result
	res.Decision = d
	res.Mode = d.Mode
	inv.logger.Info("admission decided",
		"verdict", d.Verdict, "mode", d.Mode, "allowed", d.Allowed,
		"remaining", d.Remaining, "limit", d.Limit, "current_rate", d.CurrentRate, "reason", d.Reason)

	rec := metrics.NewRecord(inv.id, inv.start, d.Mode)
	record := true

	switch {
	case d.Verdict == admission.VerdictSuspended:
		res.Errors = append(res.Errors, d.Reason)
	case d.QuotaExhausted:
		res.Success = true
		record = false
	case d.Verdict == admission.VerdictDryRunOnly:
		r.simulate(ctx, inv, d.Allowed)
		// Operator previews stay out of the execution log.
		record = !d.Forced
	default:
		if err := r.performLive(ctx, inv, d.Allowed); err != nil {
			return err
		}
	}

	if record {
		rec.Success = res.Success
		rec.PostedCount = res.Performed + res.Simulated
		rec.TargetCount = res.Targeted
		rec.Errors = append(rec.Errors, res.Errors...)
		rec.ExecutionTimeSeconds = r.nowFunc().Sub(inv.start).Seconds()
		inv.log.Append(rec, r.opts.Metrics.MaxRecords)
	}

	return r.finish(ctx, inv)
}

// fetch asks the source for up to n items. When track is set a source
// failure is recorded against the failure tracker; either way it yields no
// items.
func (r *Runner) fetch(ctx context.Context, inv *invocation, n int, track bool) ([]types.Item, bool) {
	items, err := r.candidates(ctx, n)
	if err != nil {
		msg := r.scrub(err)
		if track {
			inv.failures.RecordFailure(r.opts.Failure, r.nowFunc(), KindItemSource, msg)
		}
		inv.result.Errors = append(inv.result.Errors, "item source: "+msg)
		inv.logger.Error("fetching candidates failed", "error", msg)
		return nil, false
	}
	inv.result.Targeted = len(items)
	if len(items) == 0 {
		inv.logger.Info("no candidate items")
	}
	return items, true
}

func (r *Runner) candidates(ctx context.Context, n int) ([]types.Item, error) {
	if r.source == nil {
		return nil, pgerr.New(pgerr.CodeConfigRequiredMissing, "no item source configured")
	}
	items, err := r.source.FetchCandidates(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// simulate validates up to n items without side effects. Quota is never
// touched. Under the gradual gate a clean simulation counts as a success;
// a forced preview leaves the failure state alone.
func (r *Runner) simulate(ctx context.Context, inv *invocation, n int) {
	res := inv.result
	track := !res.Decision.Forced
	items, ok := r.fetch(ctx, inv, n, track)
	if !ok {
		return
	}
	for _, item := range items {
		if err := r.simulator.Perform(ctx, item); err != nil {
			msg := r.scrub(err)
			if track {
				inv.failures.RecordFailure(r.opts.Failure, r.nowFunc(), action.Kind(err), msg)
			}
			res.Errors = append(res.Errors, msg)
			r.telemetry.RecordAction(types.ModeDryRun, false)
			continue
		}
		res.Simulated++
		r.telemetry.RecordAction(types.ModeDryRun, true)
		inv.logger.Info("simulated action", "url", item.URL, "title", item.Title)
	}
	res.Success = len(res.Errors) == 0
	if track && res.Success && len(items) > 0 {
		inv.failures.RecordSuccess()
	}
}

// performLive runs up to n real actions. Quota is re-read before and
// written after every action so that a crash never over-reports.
func (r *Runner) performLive(ctx context.Context, inv *invocation, n int) error {
	if r.performer == nil {
		return pgerr.New(pgerr.CodeConfigRequiredMissing, "no action performer configured")
	}
	items, ok := r.fetch(ctx, inv, n, true)
	if !ok {
		return nil
	}

	res := inv.result
	limiter := rate.NewLimiter(rate.Every(r.opts.ActionInterval), 1)

	for i, item := range items {
		if i > 0 {
			if err := r.pace(ctx, limiter); err != nil {
				res.Errors = append(res.Errors, "interrupted: "+err.Error())
				inv.logger.Warn("live batch interrupted", "error", err)
				break
			}
		}

		if inv.failures.IsSuspended(r.nowFunc()) {
			inv.logger.Warn("suspension opened mid-batch; stopping", "until", inv.failures.SuspendedUntil)
			break
		}

		today, err := r.quota.Today(ctx)
		if err != nil {
			return err
		}
		if quota.Remaining(inv.limit, today.ActionsPerformed) <= 0 {
			inv.logger.Info("daily quota consumed elsewhere; stopping", "performed_today", today.ActionsPerformed)
			break
		}

		if err := r.performer.Perform(ctx, item); err != nil {
			kind := action.Kind(err)
			msg := r.scrub(err)
			inv.failures.RecordFailure(r.opts.Failure, r.nowFunc(), kind, msg)
			res.Errors = append(res.Errors, msg)
			r.telemetry.RecordAction(res.Mode, false)
			inv.logger.Error("action failed", "url", item.URL, "kind", kind, "error", msg)
			continue
		}

		total, err := r.quota.Increment(ctx)
		if err != nil {
			return err
		}
		inv.failures.RecordSuccess()
		res.Performed++
		r.telemetry.RecordAction(res.Mode, true)
		inv.logger.Info("action performed", "url", item.URL, "performed_today", total)
	}

	res.Success = len(res.Errors) == 0
	return nil
}

// pace waits for the limiter and then a random jitter.
func (r *Runner) pace(ctx context.Context, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if r.opts.ActionJitter > 0 {
		return r.sleep(ctx, rand.N(r.opts.ActionJitter))
	}
	return nil
}

// finish evaluates health and persists failures, metrics and the snapshot.
// Persistence ignores cancellation of ctx so that a completed batch is
// never lost. Once the execution log is saved the outcome is final: the
// snapshot and telemetry that follow are best effort.
func (r *Runner) finish(ctx context.Context, inv *invocation) error {
	ctx = context.WithoutCancel(ctx)
	now := r.nowFunc()
	res := inv.result

	snap := monitor.Evaluate(inv.failures, inv.log, r.opts.Metrics, r.opts.Thresholds, now)
	res.Health = snap
	res.Duration = now.Sub(inv.start)

	if err := r.failures.Save(ctx, inv.failures); err != nil {
		return err
	}
	if err := r.recorder.Save(ctx, inv.log); err != nil {
		return err
	}
	inv.recorded = true

	if err := store.SaveDocument(ctx, r.store, store.KeyHealth, snap); err != nil {
		inv.logger.Warn("saving health snapshot failed", "error", r.scrub(err))
	}

	if n := r.alerts.Notify(snap, inv.previous); n > 0 {
		inv.logger.Warn("health alerts raised", "count", n, "status", snap.Status)
	}

	used := inv.performedToday + res.Performed
	if today, err := r.quota.Today(ctx); err != nil {
		inv.logger.Warn("reading quota for telemetry failed", "error", r.scrub(err))
	} else {
		used = today.ActionsPerformed
	}
	r.observe(ctx, inv, snap, used, now)

	inv.logger.Info("invocation finished",
		"mode", res.Mode, "performed", res.Performed, "simulated", res.Simulated,
		"targeted", res.Targeted, "success", res.Success, "health", snap.Status,
		"duration", res.Duration)
	return nil
}

func (r *Runner) observe(ctx context.Context, inv *invocation, snap health.Snapshot, used int, now time.Time) {
	r.telemetry.ObserveHealth(snap, inv.log.RollingRate(now, r.opts.Metrics.LongWindowDays).Rate)
	r.telemetry.ObserveQuota(used, inv.limit)
	r.telemetry.MarkRun(now)

	if r.opts.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.telemetry.Push(pushCtx, r.opts.PushgatewayURL, r.opts.PushJob); err != nil {
		inv.logger.Warn("pushing metrics failed", "error", err)
	}
}

// recordFault appends a mode=error record on a best-effort basis. Nothing
// is appended when the invocation's outcome record is already persisted.
func (r *Runner) recordFault(ctx context.Context, inv *invocation, cause error) {
	res := inv.result
	res.Mode = types.ModeError
	res.Success = false
	res.Errors = append(res.Errors, r.scrub(cause))

	if inv.recorded {
		inv.logger.Error("invocation failed after recording", "error", r.scrub(cause), "performed", res.Performed)
		return
	}

	rec := metrics.NewRecord(inv.id, inv.start, types.ModeError)
	rec.PostedCount = res.Performed
	rec.TargetCount = res.Targeted
	rec.Errors = append(rec.Errors, res.Errors...)
	rec.ExecutionTimeSeconds = r.nowFunc().Sub(inv.start).Seconds()

	if _, err := r.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
		inv.logger.Error("recording fault failed", "error", err, "cause", r.scrub(cause))
		return
	}
	inv.logger.Error("invocation failed", "error", r.scrub(cause), "performed", res.Performed)
}

// scrub renders err with credentials masked.
func (r *Runner) scrub(err error) string {
	return r.redactor.String(err.Error())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verdict is the one-line summary printed after every invocation.
func (res *Result) Verdict() string {
	if res.Decision.QuotaExhausted {
		return fmt.Sprintf("verdict=nothing-to-do mode=%s performed=0 health=%s reason=%q",
			res.Mode, res.Health.Status, res.Decision.Reason)
	}
	return fmt.Sprintf("verdict=%s mode=%s performed=%d simulated=%d targeted=%d success=%t health=%s",
		verdictLabel(res), res.Mode, res.Performed, res.Simulated, res.Targeted, res.Success, res.Health.Status)
}

func verdictLabel(res *Result) string {
	switch {
	case res.Mode == types.ModeError:
		return "failed"
	case res.Decision.Verdict == admission.VerdictSuspended:
		return "blocked"
	default:
		return string(res.Decision.Verdict)
	}
}
