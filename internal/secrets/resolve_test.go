// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/secrets"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{name: "valid", uri: "keyring://postgate/redis-password", wantService: "postgate", wantKey: "redis-password"},
		{name: "slashes in key", uri: "keyring://postgate/sheets/prod", wantService: "postgate", wantKey: "sheets/prod"},
		{name: "other scheme", uri: "vault://postgate/key", wantErr: true},
		{name: "missing key", uri: "keyring://postgate/", wantErr: true},
		{name: "missing service", uri: "keyring:///key", wantErr: true},
		{name: "no path", uri: "keyring://postgate", wantErr: true},
		{name: "bare scheme", uri: "keyring://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pgerr.HasCode(err, pgerr.CodeSecretInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, svc)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.uri, secrets.URI(svc, key))
		})
	}
}

func TestResolve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("test-resolve", "token", "s3cret"))

	val, err := secrets.Resolve(ks, "keyring://test-resolve/token")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", val)

	val, err = secrets.Resolve(ks, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", val)

	_, err = secrets.Resolve(ks, "keyring://test-resolve/absent")
	require.Error(t, err)
	assert.True(t, pgerr.HasCode(err, pgerr.CodeSecretNotFound), "innermost code is kept: %v", err)
}

func TestResolveViper(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("test-viper", "redis", "pw"))

	v := viper.New()
	v.Set("storage.redis.password", "keyring://test-viper/redis")
	v.Set("source.sheets.credentials_b64", "keyring://test-viper/missing")
	v.Set("server.listen", "127.0.0.1:18790")
	v.Set("admission.daily_limit", 3)

	errs := secrets.ResolveViper(v, ks)
	require.Len(t, errs, 1)
	assert.Equal(t, "source.sheets.credentials_b64", pgerr.FieldsOf(errs[0])["key"])

	assert.Equal(t, "pw", v.GetString("storage.redis.password"))
	assert.Equal(t, "keyring://test-viper/missing", v.GetString("source.sheets.credentials_b64"))
	assert.Equal(t, "127.0.0.1:18790", v.GetString("server.listen"))
}
