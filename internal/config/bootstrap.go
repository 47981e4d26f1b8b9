// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

//go:embed postgate.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/postgate/postgate.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "postgate", "postgate.yaml"), nil
}

// BootstrapConfig writes the commented default config to path unless a file
// is already there. It returns path when a file was written and "" otherwise.
// Failures are logged at debug level and never fatal.
func BootstrapConfig(path string) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}
