// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package redis provides a store.DocumentStore backed by Redis. It lets
// several hosts share one quota ledger and one failure tracker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/postgate-dev/postgate/internal/store"
)

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Compile-time interface checks.
var (
	_ store.DocumentStore = (*DocumentStore)(nil)
	_ store.Locker        = (*DocumentStore)(nil)
)

func init() {
	store.RegisterBackend("redis", func(cfg store.StorageConfig) (store.DocumentStore, error) {
		return New(cfg.Redis)
	})
}

// releaseScript deletes the lock only while it is still owned by holder.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DocumentStore keeps each document under prefix+key as a plain string.
type DocumentStore struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(cfg store.RedisConfig) (*DocumentStore, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &DocumentStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *DocumentStore) docKey(key string) string  { return s.prefix + "doc:" + key }
func (s *DocumentStore) lockKey(name string) string { return s.prefix + "lock:" + name }

func (s *DocumentStore) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("loading document: empty key: %w", store.ErrInvalidInput)
	}
	raw, err := s.client.Get(ctx, s.docKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("document %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w: %w", key, store.ErrDatabase, err)
	}
	return raw, nil
}

func (s *DocumentStore) Save(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("saving document: empty key: %w", store.ErrInvalidInput)
	}
	if err := s.client.Set(ctx, s.docKey(key), doc, 0).Err(); err != nil {
		return fmt.Errorf("saving document %s: %w: %w", key, store.ErrDatabase, err)
	}
	return nil
}

// Acquire takes the named lock with SET NX and a TTL, so a crashed holder
// frees the lock once the TTL passes.
func (s *DocumentStore) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if name == "" {
		return nil, fmt.Errorf("acquiring lock: empty name: %w", store.ErrInvalidInput)
	}

	holder := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.lockKey(name), holder, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w: %w", name, store.ErrDatabase, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", name, store.ErrLocked)
	}

	var once sync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			err := releaseScript.Run(ctx, s.client, []string{s.lockKey(name)}, holder).Err()
			if err != nil && !errors.Is(err, goredis.Nil) {
				releaseErr = fmt.Errorf("releasing lock %s: %w: %w", name, store.ErrDatabase, err)
			}
		})
		return releaseErr
	}, nil
}

// Close closes the Redis client.
func (s *DocumentStore) Close() error {
	return s.client.Close()
}
