// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// Factory opens a DocumentStore for a backend.
type Factory func(cfg StorageConfig) (DocumentStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open creates the DocumentStore for the configured backend.
func Open(cfg StorageConfig) (DocumentStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, pgerr.New(pgerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: "+backend, pgerr.FieldBackend(backend))
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CodeStoreDatabaseFailure, "opening store", pgerr.FieldBackend(backend))
	}
	return s, nil
}

// LoadDocument decodes the document for key into dst. It reports found=false
// with a nil error when the document does not exist yet.
func LoadDocument(ctx context.Context, s DocumentStore, key string, dst any) (found bool, err error) {
	raw, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pgerr.Wrap(err, pgerr.CodeStoreDocumentLoadFailure, "loading document", pgerr.FieldKey(key))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, pgerr.Wrap(err, pgerr.CodeStoreDocumentInvalid, "decoding document", pgerr.FieldKey(key))
	}
	return true, nil
}

// SaveDocument encodes v as JSON and overwrites the document for key.
func SaveDocument(ctx context.Context, s DocumentStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return pgerr.Wrap(err, pgerr.CodeStoreDocumentInvalid, "encoding document", pgerr.FieldKey(key))
	}
	if err := s.Save(ctx, key, raw); err != nil {
		return pgerr.Wrap(err, pgerr.CodeStoreDocumentSaveFailure, "saving document", pgerr.FieldKey(key))
	}
	return nil
}

// AcquireLock takes the named lock when the backend supports locking. Stores
// without a Locker get a no-op release.
func AcquireLock(ctx context.Context, s DocumentStore, name string, ttl time.Duration) (func(context.Context) error, error) {
	l, ok := s.(Locker)
	if !ok {
		return func(context.Context) error { return nil }, nil
	}
	return l.Acquire(ctx, name, ttl)
}
