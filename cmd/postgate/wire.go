// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/postgate-dev/postgate/internal/action"
	"github.com/postgate-dev/postgate/internal/alert"
	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/runner"
	"github.com/postgate-dev/postgate/internal/source"
	"github.com/postgate-dev/postgate/internal/source/sheets"
	"github.com/postgate-dev/postgate/internal/status"
	"github.com/postgate-dev/postgate/internal/store"
	_ "github.com/postgate-dev/postgate/internal/store/redis"  // register redis backend
	_ "github.com/postgate-dev/postgate/internal/store/sqlite" // register sqlite backend
	"github.com/postgate-dev/postgate/internal/telemetry"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// openStore opens the configured backend, creating data_dir first.
func openStore(cfg *config.Config) (store.DocumentStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, pgerr.Errorf(pgerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}
	return store.Open(cfg.StoreConfig())
}

// openReader opens the store behind a status reader. The caller closes the
// returned store.
func openReader(cfg *config.Config) (*status.Reader, store.DocumentStore, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.RunnerOptions()
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return status.NewReader(s, opts), s, nil
}

func newSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Type {
	case "sheets":
		return sheets.New(ctx, sheets.Config{
			SpreadsheetID:  cfg.Source.Sheets.SpreadsheetID,
			CredentialsB64: cfg.Source.Sheets.CredentialsB64,
			Endpoint:       cfg.Source.Sheets.Endpoint,
		})
	default:
		// Relative paths are tried against the working directory first.
		path := cfg.Source.File
		if _, err := os.Stat(path); err != nil && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		return source.NewFile(path), nil
	}
}

func newDispatcher(cfg *config.Config) (*alert.Dispatcher, alert.Sink, error) {
	sink, err := alert.NewSink(cfg.Alerts.Sink, cfg.Alerts.GitHub.Repo, cfg.Alerts.GitHub.GHPath)
	if err != nil {
		return nil, nil, err
	}
	return alert.NewDispatcher(sink, cfg.Alerts.GitHub.Labels, cfg.Alerts.Timeout), sink, nil
}

// invoker bundles a runner and what must be released after it.
type invoker struct {
	runner *runner.Runner
	alerts *alert.Dispatcher
	store  store.DocumentStore
}

func (i *invoker) Close(ctx context.Context) error {
	if err := i.alerts.Wait(ctx); err != nil {
		return err
	}
	return i.store.Close()
}

// checkRunnable reports every setting missing for an invocation at once.
func checkRunnable(cfg *config.Config) error {
	if errs := cfg.ValidateForRun(); len(errs) > 0 {
		return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue, "config is incomplete for run: %w", errors.Join(errs...))
	}
	return nil
}

// wireRunner is the composition root of an invocation.
func wireRunner(ctx context.Context, cfg *config.Config) (*invoker, error) {
	if err := checkRunnable(cfg); err != nil {
		return nil, err
	}

	opts, err := cfg.RunnerOptions()
	if err != nil {
		return nil, err
	}
	src, err := newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	performer, err := action.NewExec(cfg.Action.Command, cfg.Action.Timeout)
	if err != nil {
		return nil, err
	}
	dispatcher, _, err := newDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	redactor, err := cfg.Redactor()
	if err != nil {
		return nil, err
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	r, err := runner.New(runner.Deps{
		Store:     s,
		Source:    src,
		Performer: performer,
		Alerts:    dispatcher,
		Telemetry: telemetry.New(),
		Redactor:  redactor,
	}, opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &invoker{runner: r, alerts: dispatcher, store: s}, nil
}
