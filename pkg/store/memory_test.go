// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "client:abc", "org-1", time.Minute))

	v, err := s.Get(ctx, "client:abc")
	require.NoError(t, err)
	assert.Equal(t, "org-1", v)

	_, err = s.Get(ctx, "client:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "client:abc", "org-1", time.Minute))

	// Still valid just before expiry.
	now = now.Add(59 * time.Second)
	v, err := s.Get(ctx, "client:abc")
	require.NoError(t, err)
	assert.Equal(t, "org-1", v)

	// Gone after expiry.
	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "client:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SlidingTTL(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "refresh:h1", "org-2", time.Minute))

	// Each sliding read resets the window; interleave reads so the entry
	// outlives its original TTL.
	for i := 0; i < 3; i++ {
		now = now.Add(45 * time.Second)
		v, err := s.GetAndRefreshTTL(ctx, "refresh:h1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "org-2", v)
	}

	// A plain Get does not refresh; the entry now expires on schedule.
	now = now.Add(61 * time.Second)
	_, err := s.Get(ctx, "refresh:h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "issued:h2", "org-3", time.Hour))
	require.NoError(t, s.Delete(ctx, "issued:h2"))

	_, err := s.Get(ctx, "issued:h2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, s.Delete(ctx, "issued:h2"))
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "k", "v", 0))

	now = now.Add(24 * time.Hour * 365)
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
