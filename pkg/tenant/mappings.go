// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/orgproxy/pkg/store"
)

// Key prefixes for the three independent mapping families.
const (
	// keyPrefixClient maps an ephemeral client id to its chosen org.
	// Short-lived: covers only the code-exchange window, consumed at
	// token exchange.
	keyPrefixClient = "client:"

	// keyPrefixRefresh maps a hashed refresh token to its org.
	// Long-lived with sliding TTL, rotated together with the token.
	keyPrefixRefresh = "refresh:"

	// keyPrefixIssued maps a hashed issued bearer token to its org.
	// Fixed TTL equal to the token lifetime, read by the verifier.
	keyPrefixIssued = "issued:"
)

// Default mapping TTLs; deployments override these through configuration.
const (
	DefaultClientMappingTTL  = 10 * time.Minute
	DefaultRefreshMappingTTL = 14 * 24 * time.Hour
)

// Mappings persists and resolves the organization-context mapping families
// over a key-value store. Token-keyed families hash the token first so raw
// token values never reach the store.
type Mappings struct {
	store      store.Store
	hasher     *SecretHasher
	clientTTL  time.Duration
	refreshTTL time.Duration
}

// NewMappings creates a Mappings layer. Zero TTLs fall back to the package
// defaults.
func NewMappings(s store.Store, h *SecretHasher, clientTTL, refreshTTL time.Duration) *Mappings {
	if clientTTL == 0 {
		clientTTL = DefaultClientMappingTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshMappingTTL
	}
	return &Mappings{store: s, hasher: h, clientTTL: clientTTL, refreshTTL: refreshTTL}
}

// SaveClientOrg records the org choice for an ephemeral client id. The TTL
// covers only the code-exchange window; shared clients never take this path.
func (m *Mappings) SaveClientOrg(ctx context.Context, clientID, orgID string) error {
	if err := m.store.SetWithTTL(ctx, keyPrefixClient+clientID, orgID, m.clientTTL); err != nil {
		return fmt.Errorf("failed to save client mapping: %w", err)
	}
	return nil
}

// ResolveClientOrg returns the org recorded for an ephemeral client id.
// Returns store.ErrNotFound if the mapping is absent or expired.
func (m *Mappings) ResolveClientOrg(ctx context.Context, clientID string) (string, error) {
	return m.store.Get(ctx, keyPrefixClient+clientID)
}

// DeleteClientOrg consumes the client mapping after a successful code
// exchange, preventing replay.
func (m *Mappings) DeleteClientOrg(ctx context.Context, clientID string) error {
	return m.store.Delete(ctx, keyPrefixClient+clientID)
}

// SaveRefreshOrg records the org for a refresh token under its keyed hash.
func (m *Mappings) SaveRefreshOrg(ctx context.Context, refreshToken, orgID string) error {
	key := keyPrefixRefresh + m.hasher.Hash(refreshToken)
	if err := m.store.SetWithTTL(ctx, key, orgID, m.refreshTTL); err != nil {
		return fmt.Errorf("failed to save refresh mapping: %w", err)
	}
	return nil
}

// ResolveRefreshOrg resolves the org for a refresh token with sliding-TTL
// semantics: a successful read resets the mapping's TTL to the full window.
func (m *Mappings) ResolveRefreshOrg(ctx context.Context, refreshToken string) (string, error) {
	key := keyPrefixRefresh + m.hasher.Hash(refreshToken)
	return m.store.GetAndRefreshTTL(ctx, key, m.refreshTTL)
}

// RotateRefreshOrg installs the mapping for a newly issued refresh token
// and, if the upstream rotated the token, removes the old mapping.
//
// The new mapping is always written before the old one is deleted so there
// is never a window in which neither token resolves. A brief window where
// both resolve to the same org is acceptable.
func (m *Mappings) RotateRefreshOrg(ctx context.Context, oldToken, newToken, orgID string) error {
	if err := m.SaveRefreshOrg(ctx, newToken, orgID); err != nil {
		return err
	}
	if oldToken != "" && oldToken != newToken {
		if err := m.store.Delete(ctx, keyPrefixRefresh+m.hasher.Hash(oldToken)); err != nil {
			return fmt.Errorf("failed to delete rotated refresh mapping: %w", err)
		}
	}
	return nil
}

// SaveIssuedOrg records the org for an issued bearer token. The TTL must
// equal the token lifetime so the mapping expires with the token.
func (m *Mappings) SaveIssuedOrg(ctx context.Context, token, orgID string, ttl time.Duration) error {
	key := keyPrefixIssued + m.hasher.Hash(token)
	if err := m.store.SetWithTTL(ctx, key, orgID, ttl); err != nil {
		return fmt.Errorf("failed to save issued-token mapping: %w", err)
	}
	return nil
}

// ResolveIssuedOrg resolves the org for an issued bearer token, for use by
// the downstream verifier.
func (m *Mappings) ResolveIssuedOrg(ctx context.Context, token string) (string, error) {
	return m.store.Get(ctx, keyPrefixIssued+m.hasher.Hash(token))
}

// Ping checks connectivity to the backing store.
func (m *Mappings) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
