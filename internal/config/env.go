// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// LoadEnvFiles loads dotenv files into the process environment before viper
// reads it. When ENV_FILE is set only that file is loaded; otherwise
// .env.local then .env. Missing files are ignored. Variables already present
// in the environment are never overwritten.
func LoadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return loadEnvFile(envFile)
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := loadEnvFile(name); err != nil {
			return err
		}
	}
	return nil
}

func loadEnvFile(name string) error {
	if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return pgerr.Errorf(pgerr.CodeConfigLoadReadFailure, "loading env file %s: %w", name, err)
	}
	return nil
}
