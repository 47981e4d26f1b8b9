// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func TestDaemon_RejectsInvalidSchedule(t *testing.T) {
	env := newTestEnv(t, "schedule:\n  run: \"every morning\"\n")
	_, err := env.execute(t, "daemon")
	require.Error(t, err)
	assert.True(t, pgerr.IsConfigError(err))
}

func TestRunJob_PerformsInvocation(t *testing.T) {
	env := newTestEnv(t, "")
	a := &app{v: newViperForTest(t, env)}
	cfg, err := a.config()
	require.NoError(t, err)

	require.NoError(t, runJob(cfg)(context.Background()))
	require.NoError(t, reportJob(cfg)(context.Background()))

	out, err := env.execute(t, "quota")
	require.NoError(t, err)
	assert.Contains(t, out, "2/3 used")
}

func TestServeStatus_ServesUntilCancelled(t *testing.T) {
	env := newTestEnv(t, "")
	a := &app{v: newViperForTest(t, env)}
	cfg, err := a.config()
	require.NoError(t, err)
	cfg.Server.Listen = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serveStatus(ctx, cfg) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.Listen + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
