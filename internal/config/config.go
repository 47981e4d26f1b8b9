// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/postgate-dev/postgate/internal/admission"
	"github.com/postgate-dev/postgate/internal/failure"
	"github.com/postgate-dev/postgate/internal/metrics"
	"github.com/postgate-dev/postgate/internal/monitor"
	"github.com/postgate-dev/postgate/internal/redact"
	"github.com/postgate-dev/postgate/internal/runner"
	"github.com/postgate-dev/postgate/internal/schedule"
	"github.com/postgate-dev/postgate/internal/store"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "POSTGATE"

// Backends lists the storage backends the binary links in.
var Backends = []string{"memory", "redis", "sqlite"}

// Config is the top-level Postgate configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Verbose   bool            `mapstructure:"verbose"`
	LogFormat string          `mapstructure:"log_format"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Failure   FailureConfig   `mapstructure:"failure"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Source    SourceConfig    `mapstructure:"source"`
	Action    ActionConfig    `mapstructure:"action"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// StorageConfig selects the persisted store backend.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// AdmissionConfig controls the daily budget and mode selection.
type AdmissionConfig struct {
	DailyLimit       int           `mapstructure:"daily_limit"`
	MaxDailyLimit    int           `mapstructure:"max_daily_limit"`
	Gradual          bool          `mapstructure:"gradual"`
	SuccessThreshold float64       `mapstructure:"success_threshold"`
	ActionInterval   time.Duration `mapstructure:"action_interval"`
	ActionJitter     time.Duration `mapstructure:"action_jitter"`
	Timezone         string        `mapstructure:"timezone"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// FailureConfig controls the consecutive-failure breaker.
type FailureConfig struct {
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	Suspension           time.Duration `mapstructure:"suspension"`
	RecentErrors         int           `mapstructure:"recent_errors"`
}

// MetricsConfig controls execution-log retention and windows.
type MetricsConfig struct {
	MaxRecords      int     `mapstructure:"max_records"`
	ShortWindowDays int     `mapstructure:"short_window_days"`
	LongWindowDays  int     `mapstructure:"long_window_days"`
	TrendDelta      float64 `mapstructure:"trend_delta"`
}

// HealthConfig holds the health evaluation cut-offs.
type HealthConfig struct {
	CriticalRate   float64 `mapstructure:"critical_rate"`
	WarningRate    float64 `mapstructure:"warning_rate"`
	CriticalErrors int     `mapstructure:"critical_errors"`
	WarningErrors  int     `mapstructure:"warning_errors"`
}

// AlertsConfig selects where high-severity alerts are raised.
type AlertsConfig struct {
	Sink    string        `mapstructure:"sink"`
	Timeout time.Duration `mapstructure:"timeout"`
	GitHub  GitHubConfig  `mapstructure:"github"`
}

// GitHubConfig configures the gh issue sink.
type GitHubConfig struct {
	Repo   string   `mapstructure:"repo"`
	Labels []string `mapstructure:"labels"`
	GHPath string   `mapstructure:"gh_path"`
}

// SourceConfig selects the item source.
type SourceConfig struct {
	Type   string       `mapstructure:"type"`
	File   string       `mapstructure:"file"`
	Sheets SheetsConfig `mapstructure:"sheets"`
}

// SheetsConfig points at a Google spreadsheet.
type SheetsConfig struct {
	SpreadsheetID  string `mapstructure:"spreadsheet_id"`
	CredentialsB64 string `mapstructure:"credentials_b64"`
	Endpoint       string `mapstructure:"endpoint"`
}

// ActionConfig describes the external command that performs an action.
type ActionConfig struct {
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Redact lists extra regular expressions masked in recorded errors,
	// on top of the built-in credential patterns.
	Redact []string `mapstructure:"redact"`
}

// TelemetryConfig controls Pushgateway export.
type TelemetryConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ServerConfig controls the read-only status API.
type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits requests per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ScheduleConfig holds the cron specs used by the daemon.
type ScheduleConfig struct {
	Run    string `mapstructure:"run"`
	Report string `mapstructure:"report"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("verbose", false)
	v.SetDefault("log_format", "text")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "postgate:")

	v.SetDefault("admission.daily_limit", admission.DefaultDailyLimit)
	v.SetDefault("admission.max_daily_limit", admission.DefaultDailyLimit)
	v.SetDefault("admission.gradual", true)
	v.SetDefault("admission.success_threshold", admission.DefaultSuccessThreshold)
	v.SetDefault("admission.action_interval", 5*time.Minute)
	v.SetDefault("admission.action_jitter", 5*time.Minute)
	v.SetDefault("admission.timezone", "Local")
	v.SetDefault("admission.lock_ttl", runner.DefaultLockTTL)

	v.SetDefault("failure.max_consecutive_errors", failure.DefaultMaxConsecutiveErrors)
	v.SetDefault("failure.suspension", failure.DefaultSuspension)
	v.SetDefault("failure.recent_errors", failure.DefaultRecentErrors)

	defMetrics := metrics.DefaultOptions()
	v.SetDefault("metrics.max_records", defMetrics.MaxRecords)
	v.SetDefault("metrics.short_window_days", defMetrics.ShortWindowDays)
	v.SetDefault("metrics.long_window_days", defMetrics.LongWindowDays)
	v.SetDefault("metrics.trend_delta", defMetrics.TrendDelta)

	defHealth := monitor.DefaultThresholds()
	v.SetDefault("health.critical_rate", defHealth.CriticalRate)
	v.SetDefault("health.warning_rate", defHealth.WarningRate)
	v.SetDefault("health.critical_errors", defHealth.CriticalErrors)
	v.SetDefault("health.warning_errors", defHealth.WarningErrors)

	v.SetDefault("alerts.sink", "log")
	v.SetDefault("alerts.timeout", 15*time.Second)
	v.SetDefault("alerts.github.repo", "")
	v.SetDefault("alerts.github.labels", []string{"postgate", "alert"})
	v.SetDefault("alerts.github.gh_path", "gh")

	v.SetDefault("source.type", "file")
	v.SetDefault("source.file", "")
	v.SetDefault("source.sheets.spreadsheet_id", "")
	v.SetDefault("source.sheets.credentials_b64", "")
	v.SetDefault("source.sheets.endpoint", "")

	v.SetDefault("action.command", []string{})
	v.SetDefault("action.timeout", 5*time.Minute)
	v.SetDefault("action.redact", []string{})

	v.SetDefault("telemetry.pushgateway_url", "")
	v.SetDefault("telemetry.job", "postgate")

	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests_per_second", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("schedule.run", "0 9 * * *")
	v.SetDefault("schedule.report", "0 10 * * 1")
}

// SetupEnv enables POSTGATE_* environment overrides on v. Keys map with
// dots replaced by underscores, e.g. POSTGATE_ADMISSION_DAILY_LIMIT.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (or defaults only when empty) with
// environment overrides and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pgerr.Errorf(pgerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It collects every
// problem rather than stopping at the first one. Requirements that only
// matter to `run` are checked by ValidateForRun.
func (c *Config) Validate() []error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, invalid("data_dir must not be empty"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, invalid("log_format must be one of [text, json], got %q", c.LogFormat))
	}

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validatePolicies()...)
	errs = append(errs, c.validateAlerts()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateSchedule()...)

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// ValidateForRun checks what an invocation needs beyond Validate: an item
// source and an action command.
func (c *Config) ValidateForRun() []error {
	var errs []error

	switch c.Source.Type {
	case "file":
		if c.Source.File == "" {
			errs = append(errs, missing("source.file must be set when source.type is file"))
		}
	case "sheets":
		if c.Source.Sheets.SpreadsheetID == "" {
			errs = append(errs, missing("source.sheets.spreadsheet_id must be set when source.type is sheets"))
		}
	default:
		errs = append(errs, invalid("source.type must be one of [file, sheets], got %q", c.Source.Type))
	}

	if len(c.Action.Command) == 0 {
		errs = append(errs, missing("action.command must not be empty"))
	}
	if c.Action.Timeout <= 0 {
		errs = append(errs, invalid("action.timeout must be positive, got %s", c.Action.Timeout))
	}
	if _, err := redact.Compile(c.Action.Redact); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !slices.Contains(Backends, c.Storage.Backend) {
		errs = append(errs, invalid("storage.backend must be one of [%s], got %q",
			strings.Join(Backends, ", "), c.Storage.Backend))
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Address == "" {
		errs = append(errs, missing("storage.redis.address must be set for the redis backend"))
	}

	return errs
}

func (c *Config) validatePolicies() []error {
	var errs []error

	checks := []interface{ Validate() error }{
		c.AdmissionPolicy(),
		c.FailurePolicy(),
		c.MetricsOptions(),
		c.Thresholds(),
	}
	for _, check := range checks {
		if err := check.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Admission.ActionInterval < 0 {
		errs = append(errs, invalid("admission.action_interval must not be negative, got %s", c.Admission.ActionInterval))
	}
	if c.Admission.ActionJitter < 0 {
		errs = append(errs, invalid("admission.action_jitter must not be negative, got %s", c.Admission.ActionJitter))
	}
	if c.Admission.LockTTL <= 0 {
		errs = append(errs, invalid("admission.lock_ttl must be positive, got %s", c.Admission.LockTTL))
	}

	return errs
}

func (c *Config) validateAlerts() []error {
	var errs []error

	switch c.Alerts.Sink {
	case "", "log", "none":
	case "github":
		if c.Alerts.GitHub.GHPath == "" {
			errs = append(errs, missing("alerts.github.gh_path must not be empty"))
		}
	default:
		errs = append(errs, invalid("alerts.sink must be one of [log, github, none], got %q", c.Alerts.Sink))
	}
	if c.Alerts.Timeout <= 0 {
		errs = append(errs, invalid("alerts.timeout must be positive, got %s", c.Alerts.Timeout))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, invalid("server.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, invalid("server.listen must be a valid host:port address, got %q: %v", c.Server.Listen, err))
	}
	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 || (rl.RequestsPerSecond > 0 && rl.Burst <= 0) {
		errs = append(errs, invalid("server.rate_limit needs a non-negative rate and a positive burst, got %g/%d",
			rl.RequestsPerSecond, rl.Burst))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateSchedule() []error {
	var errs []error
	for key, spec := range map[string]string{"schedule.run": c.Schedule.Run, "schedule.report": c.Schedule.Report} {
		if spec == "" {
			continue
		}
		if err := schedule.Validate(spec); err != nil {
			errs = append(errs, invalid("%s: %v", key, err))
		}
	}
	return errs
}

// Location resolves admission.timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Admission.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Admission.Timezone)
	if err != nil {
		return nil, invalid("admission.timezone %q: %v", c.Admission.Timezone, err)
	}
	return loc, nil
}

// StoreConfig converts the storage section for store.Open.
func (c *Config) StoreConfig() store.StorageConfig {
	return store.StorageConfig{
		Backend: c.Storage.Backend,
		DataDir: c.DataDir,
		Redis: store.RedisConfig{
			Address:  c.Storage.Redis.Address,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
			Prefix:   c.Storage.Redis.Prefix,
		},
	}
}

func (c *Config) AdmissionPolicy() admission.Policy {
	return admission.Policy{
		DailyLimit:       c.Admission.DailyLimit,
		MaxDailyLimit:    c.Admission.MaxDailyLimit,
		Gradual:          c.Admission.Gradual,
		SuccessThreshold: c.Admission.SuccessThreshold,
	}
}

func (c *Config) FailurePolicy() failure.Policy {
	return failure.Policy{
		MaxConsecutiveErrors: c.Failure.MaxConsecutiveErrors,
		Suspension:           c.Failure.Suspension,
		RecentErrors:         c.Failure.RecentErrors,
	}
}

func (c *Config) MetricsOptions() metrics.Options {
	return metrics.Options{
		MaxRecords:      c.Metrics.MaxRecords,
		ShortWindowDays: c.Metrics.ShortWindowDays,
		LongWindowDays:  c.Metrics.LongWindowDays,
		TrendDelta:      c.Metrics.TrendDelta,
	}
}

func (c *Config) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		CriticalRate:   c.Health.CriticalRate,
		WarningRate:    c.Health.WarningRate,
		CriticalErrors: c.Health.CriticalErrors,
		WarningErrors:  c.Health.WarningErrors,
	}
}

// Redactor builds the error-text redactor from the built-in rules and
// action.redact.
func (c *Config) Redactor() (*redact.Redactor, error) {
	return redact.WithDefaults(c.Action.Redact)
}

// RunnerOptions assembles the runner tunables. The config must already be
// valid.
func (c *Config) RunnerOptions() (runner.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		Admission:      c.AdmissionPolicy(),
		Failure:        c.FailurePolicy(),
		Metrics:        c.MetricsOptions(),
		Thresholds:     c.Thresholds(),
		Location:       loc,
		LockTTL:        c.Admission.LockTTL,
		ActionInterval: c.Admission.ActionInterval,
		ActionJitter:   c.Admission.ActionJitter,
		PushgatewayURL: c.Telemetry.PushgatewayURL,
		PushJob:        c.Telemetry.Job,
	}, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".postgate"
	}
	return filepath.Join(home, ".postgate")
}

func invalid(format string, args ...any) error {
	return pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func missing(msg string) error {
	return pgerr.New(pgerr.CodeConfigRequiredMissing, "config: "+msg)
}
