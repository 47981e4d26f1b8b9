// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/config"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "postgate:", cfg.Storage.Redis.Prefix)
	assert.Equal(t, 3, cfg.Admission.DailyLimit)
	assert.Equal(t, 3, cfg.Admission.MaxDailyLimit)
	assert.True(t, cfg.Admission.Gradual)
	assert.InDelta(t, 0.8, cfg.Admission.SuccessThreshold, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Admission.ActionInterval)
	assert.Equal(t, 2*time.Hour, cfg.Admission.LockTTL)
	assert.Equal(t, 3, cfg.Failure.MaxConsecutiveErrors)
	assert.Equal(t, 24*time.Hour, cfg.Failure.Suspension)
	assert.Equal(t, 10, cfg.Failure.RecentErrors)
	assert.Equal(t, 100, cfg.Metrics.MaxRecords)
	assert.Equal(t, 7, cfg.Metrics.ShortWindowDays)
	assert.Equal(t, 30, cfg.Metrics.LongWindowDays)
	assert.InDelta(t, 0.5, cfg.Health.CriticalRate, 1e-9)
	assert.Equal(t, "log", cfg.Alerts.Sink)
	assert.Equal(t, []string{"postgate", "alert"}, cfg.Alerts.GitHub.Labels)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, "0 9 * * *", cfg.Schedule.Run)
	assert.Equal(t, "0 10 * * 1", cfg.Schedule.Report)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/postgate-test
storage:
  backend: redis
  redis:
    address: redis:6379
admission:
  daily_limit: 2
  action_interval: 30s
  timezone: UTC
action:
  command: ["/bin/post", "--live"]
  timeout: 90s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/postgate-test", cfg.DataDir)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Address)
	assert.Equal(t, 2, cfg.Admission.DailyLimit)
	assert.Equal(t, 30*time.Second, cfg.Admission.ActionInterval)
	assert.Equal(t, []string{"/bin/post", "--live"}, cfg.Action.Command)
	assert.Equal(t, 90*time.Second, cfg.Action.Timeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("POSTGATE_ADMISSION_DAILY_LIMIT", "1")
	t.Setenv("POSTGATE_SERVER_LISTEN", "0.0.0.0:9000")

	cfg := validConfig(t)
	assert.Equal(t, 1, cfg.Admission.DailyLimit)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, pgerr.HasCode(err, pgerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: postgres
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.True(t, pgerr.IsConfigError(err))
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.LogFormat = "xml"
	cfg.Storage.Backend = "mongo"
	cfg.Admission.DailyLimit = -1
	cfg.Failure.Suspension = 0
	cfg.Metrics.LongWindowDays = 0
	cfg.Alerts.Sink = "pager"
	cfg.Server.Listen = "nope"
	cfg.Schedule.Run = "sometimes"

	errs := cfg.Validate()
	assert.Len(t, errs, 8)
	for _, err := range errs {
		assert.True(t, pgerr.IsConfigError(err) || pgerr.IsInvalidInput(err), "unexpected error %v", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "memory backend", mutate: func(c *config.Config) { c.Storage.Backend = "memory" }},
		{name: "empty data dir", mutate: func(c *config.Config) { c.DataDir = "" }, wantErr: "data_dir"},
		{name: "redis without address", mutate: func(c *config.Config) {
			c.Storage.Backend = "redis"
			c.Storage.Redis.Address = ""
		}, wantErr: "storage.redis.address"},
		{name: "negative interval", mutate: func(c *config.Config) { c.Admission.ActionInterval = -time.Second }, wantErr: "action_interval"},
		{name: "daily limit above hard cap", mutate: func(c *config.Config) { c.Admission.DailyLimit = 10 }, wantErr: "admission.daily_limit"},
		{name: "zero lock ttl", mutate: func(c *config.Config) { c.Admission.LockTTL = 0 }, wantErr: "lock_ttl"},
		{name: "unknown timezone", mutate: func(c *config.Config) { c.Admission.Timezone = "Mars/Olympus" }, wantErr: "admission.timezone"},
		{name: "port out of range", mutate: func(c *config.Config) { c.Server.Listen = "127.0.0.1:70000" }, wantErr: "between 1 and 65535"},
		{name: "port not a number", mutate: func(c *config.Config) { c.Server.Listen = "127.0.0.1:http" }, wantErr: "must be a number"},
		{name: "bad report spec", mutate: func(c *config.Config) { c.Schedule.Report = "weekly-ish" }, wantErr: "schedule.report"},
		{name: "empty schedule disables", mutate: func(c *config.Config) { c.Schedule.Run = "" }},
		{name: "github without gh", mutate: func(c *config.Config) {
			c.Alerts.Sink = "github"
			c.Alerts.GitHub.GHPath = ""
		}, wantErr: "gh_path"},
		{name: "zero alert timeout", mutate: func(c *config.Config) { c.Alerts.Timeout = 0 }, wantErr: "alerts.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}

func TestValidateForRun(t *testing.T) {
	cfg := validConfig(t)
	errs := cfg.ValidateForRun()
	require.Len(t, errs, 2, "default config has neither a source file nor a command")
	assert.True(t, pgerr.HasCode(errs[0], pgerr.CodeConfigRequiredMissing))

	cfg.Source.File = "items.yaml"
	cfg.Action.Command = []string{"post"}
	assert.Empty(t, cfg.ValidateForRun())

	cfg.Source.Type = "sheets"
	errs = cfg.ValidateForRun()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "spreadsheet_id")

	cfg.Source.Type = "rss"
	errs = cfg.ValidateForRun()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "source.type")

	cfg.Source.Type = "file"
	cfg.Action.Redact = []string{"("}
	errs = cfg.ValidateForRun()
	require.Len(t, errs, 1)
	assert.True(t, pgerr.HasCode(errs[0], pgerr.CodeRedactRuleInvalid))
}

func TestRedactor(t *testing.T) {
	cfg := validConfig(t)
	cfg.Action.Redact = []string{`acct-\d{6}`}

	r, err := cfg.Redactor()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED] locked", r.String("acct-123456 locked"))
	assert.NotContains(t, r.String("password=hunter22"), "hunter22")
}

func TestRunnerOptions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Admission.Timezone = "UTC"
	cfg.Admission.DailyLimit = 2
	cfg.Telemetry.PushgatewayURL = "http://push:9091"

	opts, err := cfg.RunnerOptions()
	require.NoError(t, err)
	assert.Equal(t, 2, opts.Admission.DailyLimit)
	assert.Equal(t, time.UTC, opts.Location)
	assert.Equal(t, 2*time.Hour, opts.LockTTL)
	assert.Equal(t, "http://push:9091", opts.PushgatewayURL)
	assert.Equal(t, "postgate", opts.PushJob)
	assert.Equal(t, 3, opts.Failure.MaxConsecutiveErrors)
	assert.Equal(t, 100, opts.Metrics.MaxRecords)
	assert.Equal(t, 3, opts.Thresholds.CriticalErrors)
}

func TestStoreConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.DataDir = "/var/lib/postgate"
	cfg.Storage.Redis.DB = 4

	sc := cfg.StoreConfig()
	assert.Equal(t, "sqlite", sc.Backend)
	assert.Equal(t, "/var/lib/postgate", sc.DataDir)
	assert.Equal(t, 4, sc.Redis.DB)
	assert.Equal(t, "localhost:6379", sc.Redis.Address)
}

func TestDefaultConfigYAML_Loads(t *testing.T) {
	path := writeConfig(t, string(config.DefaultConfigYAML))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Admission.DailyLimit)
}

func TestBootstrapConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "postgate.yaml")

	assert.Equal(t, path, config.BootstrapConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Empty(t, config.BootstrapConfig(path), "existing file is left alone")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(".env", []byte("POSTGATE_TEST_FROM_ENV=base\nPOSTGATE_TEST_SHARED=base\n"), 0o600))
	require.NoError(t, os.WriteFile(".env.local", []byte("POSTGATE_TEST_SHARED=local\n"), 0o600))
	t.Setenv("ENV_FILE", "")
	t.Setenv("POSTGATE_TEST_FROM_ENV", "")
	t.Setenv("POSTGATE_TEST_SHARED", "")
	os.Unsetenv("POSTGATE_TEST_FROM_ENV")
	os.Unsetenv("POSTGATE_TEST_SHARED")
	os.Unsetenv("ENV_FILE")

	require.NoError(t, config.LoadEnvFiles())
	assert.Equal(t, "base", os.Getenv("POSTGATE_TEST_FROM_ENV"))
	assert.Equal(t, "local", os.Getenv("POSTGATE_TEST_SHARED"), ".env.local is loaded first and wins")
}

func TestLoadEnvFiles_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("POSTGATE_TEST_CUSTOM=yes\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("POSTGATE_TEST_CUSTOM", "")
	os.Unsetenv("POSTGATE_TEST_CUSTOM")

	require.NoError(t, config.LoadEnvFiles())
	assert.Equal(t, "yes", os.Getenv("POSTGATE_TEST_CUSTOM"))

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	assert.NoError(t, config.LoadEnvFiles())
}
