// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package store

import "errors"

// Sentinel errors for store operations.
// These errors can be checked using errors.Is() for classification.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLocked indicates another holder owns an unexpired lock.
	ErrLocked = errors.New("locked")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatabase indicates a general backend failure.
	ErrDatabase = errors.New("database error")
)
