// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package store

import (
	"context"
	"time"
)

// Document keys. Each key is owned by exactly one component for the
// duration of an invocation.
const (
	KeyQuota    = "quota"
	KeyFailures = "failures"
	KeyMetrics  = "metrics"
	KeyHealth   = "health"
)

// InvocationLock is the lock name held for the duration of one run.
const InvocationLock = "invocation"

// DocumentStore persists key-addressed JSON documents. Every mutation is a
// full overwrite of the document; there are no transactions across keys.
type DocumentStore interface {
	// Load returns the raw document for key, or ErrNotFound when absent.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save overwrites the document for key.
	Save(ctx context.Context, key string, doc []byte) error
	Close() error
}

// Locker is implemented by backends that can serialize invocations across
// processes. The returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}
