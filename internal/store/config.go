// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" (default), "redis" or "memory".
	DataDir string // Directory for file-backed backends.
	Redis   RedisConfig
}

// RedisConfig holds Redis connection settings for the redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string // Prepended to every document and lock key.
}
