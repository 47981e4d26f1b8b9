// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/postgate-dev/postgate/internal/config"
	"github.com/postgate-dev/postgate/internal/secrets"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// secretStoreFactory is swapped in tests.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// app carries per-process CLI state. Every root command gets its own viper
// instance so tests can run commands side by side.
type app struct {
	v       *viper.Viper
	logOut  io.Writer
	cfg     *config.Config
	cfgFile string
}

// NewRootCmd creates the root postgate command with all subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logOut: os.Stderr}

	root := &cobra.Command{
		Use:   "postgate",
		Short: "Postgate, admission and health control for a posting bot",
		Long: "Postgate decides whether a scheduled invocation may act live, only simulate, or must stay idle,\n" +
			"based on the persisted daily quota, failure streak and recent success rate.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	root.AddCommand(
		newRunCmd(a),
		newStatusCmd(a),
		newReportCmd(a),
		newQuotaCmd(a),
		newResetCmd(a),
		newServeCmd(a),
		newDaemonCmd(a),
		newSecretCmd(),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}

// init applies precedence flag > env > file > defaults on a.v and installs
// the slog handler.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	v := a.v
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset so a ./postgate binary is never
		// mistaken for an extensionless config file.
		v.SetConfigName("postgate")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/postgate")
		v.AddConfigPath("/etc/postgate")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path, err := config.DefaultConfigPath(); err == nil && config.BootstrapConfig(path) != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}
	a.cfgFile = v.ConfigFileUsed()

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"data_dir":   "data-dir",
		"verbose":    "verbose",
		"log_format": "log-format",
	} {
		f := flags.Lookup(flag)
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return pgerr.Errorf(pgerr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}

	setupLogging(a.logOut, v.GetBool("verbose"), v.GetString("log_format"))
	config.WarnInsecurePermissions(a.cfgFile)
	return nil
}

// config resolves keyring references, decodes and validates the merged
// configuration. The result is cached for the command's lifetime.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	for _, err := range secrets.ResolveViper(a.v, secretStoreFactory()) {
		slog.Warn("unresolved keyring reference, keeping original value", "error", err)
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func setupLogging(w io.Writer, verbose bool, format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
