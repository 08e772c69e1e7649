// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package minter produces the tokens the proxy hands back to downstream
// clients after a successful upstream exchange.
package minter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Minter turns an upstream identity token into the token returned to the
// downstream client, with its validity window.
type Minter interface {
	Mint(ctx context.Context, identityToken string) (token string, expiresIn time.Duration, err error)
}

// Identity passes the upstream identity token through untouched. The
// expiry window is whatever the upstream granted, so Mint reports zero and
// callers keep the upstream expires_in.
type Identity struct{}

// Mint returns identityToken as-is.
func (Identity) Mint(_ context.Context, identityToken string) (string, time.Duration, error) {
	if identityToken == "" {
		return "", 0, errors.New("empty identity token")
	}
	return identityToken, 0, nil
}

// Session mints short-lived HS256 session JWTs bound to the subject of the
// upstream identity token. It decouples downstream session lifetime from
// upstream token lifetime.
type Session struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSession creates a session minter. TTL must be positive.
func NewSession(key []byte, issuer string, ttl time.Duration) (*Session, error) {
	if len(key) == 0 {
		return nil, errors.New("session signing key must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	return &Session{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Mint signs a session JWT whose subject is taken from the identity token's
// sub claim when it is a parseable JWT, otherwise left empty.
func (s *Session) Mint(_ context.Context, identityToken string) (string, time.Duration, error) {
	if identityToken == "" {
		return "", 0, errors.New("empty identity token")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": subjectOf(identityToken),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"jti": uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, s.ttl, nil
}

// subjectOf extracts the sub claim from a JWT identity token without
// verifying it; the upstream already vouched for the token in the exchange.
func subjectOf(identityToken string) string {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(identityToken, &claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
