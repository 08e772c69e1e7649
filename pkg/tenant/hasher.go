// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenant provides organization-context resolution for the proxy:
// client classification, state encoding, token digests, and the key-value
// mapping families that carry an organization choice across the OAuth flow.
package tenant

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SecretHasher computes deterministic keyed digests of sensitive tokens.
//
// Refresh tokens and issued bearer tokens are hashed with HMAC-SHA256
// before they become store keys, so the raw token values are never
// persisted. The digest is base64url-encoded without padding.
type SecretHasher struct {
	key []byte
}

// NewSecretHasher creates a hasher keyed with the given signing secret.
func NewSecretHasher(secret string) (*SecretHasher, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &SecretHasher{key: []byte(secret)}, nil
}

// Hash returns the keyed digest of token, suitable for use as a store key.
func (h *SecretHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
