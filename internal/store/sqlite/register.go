// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/postgate-dev/postgate/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newDocumentStore)
}

func newDocumentStore(cfg store.StorageConfig) (store.DocumentStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("sqlite backend requires a data directory: %w", store.ErrInvalidInput)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}
	return NewDocumentStore(filepath.Join(cfg.DataDir, "state.db"))
}
