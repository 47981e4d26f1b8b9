// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name       string
		perm       os.FileMode
		expectWarn bool
	}{
		{name: "owner only 0600", perm: 0o600},
		{name: "read only 0400", perm: 0o400},
		{name: "group and other 0644", perm: 0o644, expectWarn: true},
		{name: "other 0604", perm: 0o604, expectWarn: true},
		{name: "group 0640", perm: 0o640, expectWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "postgate.yaml")
			require.NoError(t, os.WriteFile(path, []byte("log_format: text\n"), 0o600))
			require.NoError(t, os.Chmod(path, tt.perm))

			buf := captureLogs(t)
			assert.Equal(t, tt.expectWarn, WarnInsecurePermissions(path))

			if tt.expectWarn {
				assert.Contains(t, buf.String(), "readable by other users")
				assert.Contains(t, buf.String(), path)
				assert.Contains(t, buf.String(), "0600")
			} else {
				assert.NotContains(t, buf.String(), "readable by other users")
			}
		})
	}
}

func TestWarnInsecurePermissions_NoFile(t *testing.T) {
	buf := captureLogs(t)
	assert.False(t, WarnInsecurePermissions(""))
	assert.Empty(t, buf.String())

	assert.False(t, WarnInsecurePermissions("/nonexistent/postgate.yaml"))
	assert.NotContains(t, buf.String(), "readable by other users")
}
