// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"
)

// entry wraps a value with its expiration for TTL tracking.
type entry struct {
	value     string
	expiresAt time.Time // zero means no expiration
}

// MemoryStore implements Store with an in-process map.
// It is thread-safe and intended for development and testing; expired
// entries are reaped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetWithTTL writes a value under key, replacing any existing value.
func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Get reads the value for key without touching its TTL.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// GetAndRefreshTTL reads the value for key and resets its TTL to the full
// window (sliding expiration).
func (s *MemoryStore) GetAndRefreshTTL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
		s.entries[key] = e
	}
	return e.value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Ping always succeeds for the in-memory store.
func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (*MemoryStore) Close() error {
	return nil
}

// Compile-time interface compliance check.
var _ Store = (*MemoryStore)(nil)
