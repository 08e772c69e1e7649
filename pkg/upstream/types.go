// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream implements the client side of the upstream identity
// provider: building authorize redirects and exchanging grants at the
// token endpoint. The proxy forwards the caller's form untouched, so this
// package never interprets grant semantics beyond parsing the response.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// maxResponseSize bounds upstream token responses (1 MB).
const maxResponseSize = 1 << 20

// ErrUpstream marks a non-2xx response from the upstream token endpoint.
var ErrUpstream = errors.New("upstream token endpoint error")

// Config holds the upstream identity-provider endpoints.
type Config struct {
	// Domain is the provider host, e.g. "auth.example.com". Used to derive
	// endpoints when they are not set explicitly.
	Domain string

	// AuthorizeEndpoint and TokenEndpoint override the derived URLs.
	AuthorizeEndpoint string
	TokenEndpoint     string

	// Timeout bounds each upstream HTTP call. Defaults to 10s.
	Timeout time.Duration
}

// Validate checks that the config can produce both endpoints.
func (c *Config) Validate() error {
	if c.Domain == "" && (c.AuthorizeEndpoint == "" || c.TokenEndpoint == "") {
		return errors.New("upstream domain or explicit endpoints are required")
	}
	return nil
}

// authorizeEndpoint returns the effective authorize URL.
func (c *Config) authorizeEndpoint() string {
	if c.AuthorizeEndpoint != "" {
		return c.AuthorizeEndpoint
	}
	return "https://" + c.Domain + "/oauth/authorize"
}

// tokenEndpoint returns the effective token URL.
func (c *Config) tokenEndpoint() string {
	if c.TokenEndpoint != "" {
		return c.TokenEndpoint
	}
	return "https://" + c.Domain + "/oauth/token"
}

// TokenResponse is a successful upstream token response. Typed fields cover
// what the proxy inspects; Raw preserves every field the upstream returned
// so unknown fields pass through to the caller unchanged.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
	IDToken      string
	Scope        string

	// Raw is the decoded response body, including fields this proxy does
	// not model.
	Raw map[string]any
}

// IdentityToken returns the upstream identity token: the ID token when the
// provider issued one, otherwise the access token.
func (t *TokenResponse) IdentityToken() string {
	if t.IDToken != "" {
		return t.IDToken
	}
	return t.AccessToken
}

// parseTokenResponse decodes an upstream token-endpoint response body.
// Non-2xx statuses produce an error wrapping ErrUpstream.
func parseTokenResponse(body []byte, statusCode int) (*TokenResponse, error) {
	if statusCode < 200 || statusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, statusCode, truncate(body, 256))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	resp := &TokenResponse{Raw: raw}
	resp.AccessToken, _ = raw["access_token"].(string)
	resp.TokenType, _ = raw["token_type"].(string)
	resp.RefreshToken, _ = raw["refresh_token"].(string)
	resp.IDToken, _ = raw["id_token"].(string)
	resp.Scope, _ = raw["scope"].(string)

	// JSON numbers decode as float64.
	if v, ok := raw["expires_in"].(float64); ok {
		resp.ExpiresIn = int64(v)
	}

	return resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
