// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

func init() {
	RegisterBackend("memory", func(StorageConfig) (DocumentStore, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is an in-process DocumentStore. It keeps nothing across
// restarts and is used for dry experiments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	locks map[string]time.Time

	nowFunc func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string][]byte),
		locks:   make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("load: empty key: %w", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("load %q: %w", key, ErrNotFound)
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("save: empty key: %w", ErrInvalidInput)
	}
	buf := make([]byte, len(doc))
	copy(buf, doc)
	m.mu.Lock()
	m.docs[key] = buf
	m.mu.Unlock()
	return nil
}

// Acquire implements Locker. An expired lock is taken over.
func (m *MemoryStore) Acquire(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	if exp, held := m.locks[name]; held && now.Before(exp) {
		return nil, fmt.Errorf("acquire %q: %w", name, ErrLocked)
	}
	expires := now.Add(ttl)
	m.locks[name] = expires

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			if m.locks[name].Equal(expires) {
				delete(m.locks, name)
			}
			m.mu.Unlock()
		})
		return nil
	}, nil
}

func (m *MemoryStore) Close() error { return nil }
