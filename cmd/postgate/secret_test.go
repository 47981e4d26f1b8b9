// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/secrets"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store keyed by service/key.
type mockSecretStore struct {
	data map[string]string
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[secrets.DefaultService+"/"+k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Set(service, key, value string) error {
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Get(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", pgerr.Errorf(pgerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return pgerr.Errorf(pgerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func (m *mockSecretStore) List(service string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if name, ok := strings.CutPrefix(k, service+"/"); ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func useMockSecrets(t *testing.T, mock *mockSecretStore) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return mock }
	t.Cleanup(func() { secretStoreFactory = orig })
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{name: "empty store", want: "No secrets stored.\n"},
		{name: "single key", keys: []string{"sheets-credentials"}, want: "sheets-credentials\n"},
		{name: "sorted keys", keys: []string{"redis-password", "gh-token"}, want: "gh-token\nredis-password\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			useMockSecrets(t, newMockSecretStore(tt.keys...))

			out, err := env.execute(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretSet(t *testing.T) {
	t.Run("value from argument", func(t *testing.T) {
		env := newTestEnv(t, "")
		mock := newMockSecretStore()
		useMockSecrets(t, mock)

		out, err := env.execute(t, "secret", "set", "redis-password", "hunter2")
		require.NoError(t, err)
		assert.Contains(t, out, "Stored secret: redis-password")
		assert.Contains(t, out, "keyring://postgate/redis-password")
		assert.Equal(t, "hunter2", mock.data["postgate/redis-password"])
	})

	t.Run("value from stdin", func(t *testing.T) {
		env := newTestEnv(t, "")
		mock := newMockSecretStore()
		useMockSecrets(t, mock)

		_, err := executeWithInput(t, strings.NewReader("s3cret\n"),
			"--config", env.cfgPath, "secret", "set", "gh-token")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", mock.data["postgate/gh-token"])
	})

	t.Run("empty value rejected", func(t *testing.T) {
		env := newTestEnv(t, "")
		useMockSecrets(t, newMockSecretStore())

		_, err := executeWithInput(t, strings.NewReader("\n"),
			"--config", env.cfgPath, "secret", "set", "gh-token")
		require.Error(t, err)
		assert.True(t, pgerr.HasCode(err, pgerr.CodeSecretInvalidInput))
	})
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		key      string
		wantOut  string
		wantCode pgerr.Code
	}{
		{name: "existing key", keys: []string{"gh-token"}, key: "gh-token", wantOut: "Deleted secret: gh-token\n"},
		{name: "missing key", key: "missing", wantCode: pgerr.CodeSecretNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			useMockSecrets(t, newMockSecretStore(tt.keys...))

			out, err := env.execute(t, "secret", "delete", tt.key)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, pgerr.HasCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestConfigResolvesKeyringReference(t *testing.T) {
	env := newTestEnv(t, "telemetry:\n  job: keyring://postgate/push-job\n")
	mock := newMockSecretStore()
	require.NoError(t, mock.Set(secrets.DefaultService, "push-job", "resolved-job"))
	useMockSecrets(t, mock)

	a := &app{v: newViperForTest(t, env)}
	cfg, err := a.config()
	require.NoError(t, err)
	assert.Equal(t, "resolved-job", cfg.Telemetry.Job)
}
