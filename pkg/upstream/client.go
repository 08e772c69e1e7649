// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/orgproxy/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the upstream identity provider.
type Client struct {
	authorizeEndpoint string
	tokenEndpoint     string
	httpClient        *http.Client
}

// New creates an upstream client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		authorizeEndpoint: cfg.authorizeEndpoint(),
		tokenEndpoint:     cfg.tokenEndpoint(),
		httpClient:        &http.Client{Timeout: timeout},
	}, nil
}

// AuthorizeURL builds the upstream authorize redirect carrying params.
func (c *Client) AuthorizeURL(params url.Values) (string, error) {
	u, err := url.Parse(c.authorizeEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorize endpoint: %w", err)
	}
	// Merge onto any query baked into the configured endpoint.
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange posts form to the upstream token endpoint exactly as received
// from the caller and returns the parsed response.
func (c *Client) Exchange(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debugw("upstream token endpoint rejected exchange",
			"status", resp.StatusCode,
			"grant_type", form.Get("grant_type"))
	}

	return parseTokenResponse(body, resp.StatusCode)
}
