// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store provides the key-value storage used for organization-context
// mappings. It defines a small TTL-aware interface with a Redis backend for
// production and an in-memory backend for development and testing.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable is returned when the backing store cannot be reached
	// after the single transparent reconnect attempt.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is a durable, TTL-capable key-value store.
//
// All values are short strings (organization identifiers); implementations
// must treat keys and values as opaque. A zero TTL means no expiration.
type Store interface {
	// SetWithTTL writes a value under key, replacing any existing value and
	// resetting the TTL.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get reads the value for key without touching its TTL.
	// Returns ErrNotFound if the key is missing or expired.
	Get(ctx context.Context, key string) (string, error)

	// GetAndRefreshTTL reads the value for key and resets its remaining TTL
	// to the full window (sliding expiration). Returns ErrNotFound if the
	// key is missing or expired.
	GetAndRefreshTTL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks connectivity to the backing store (health check).
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
