// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/orgproxy/pkg/minter"
	"github.com/stacklok/orgproxy/pkg/store"
	"github.com/stacklok/orgproxy/pkg/tenant"
	"github.com/stacklok/orgproxy/pkg/upstream"
)

func authorizeRequest(params url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/authorize?"+params.Encode(), nil)
}

func TestAuthorizeMissingClientID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(authorizeRequest(url.Values{"org_id": {"org-1"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", oauthErrorCode(t, rec))
}

func TestAuthorizeRedirectsToOrgSelector(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	params := url.Values{
		"client_id":     {"ephemeral-1"},
		"redirect_uri":  {"https://app.example.com/cb"},
		"response_type": {"code"},
		"state":         {"csrf-123"},
	}
	rec := env.do(authorizeRequest(params))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	assert.Equal(t, "selector.example.com", loc.Host)
	assert.Equal(t, "/pick", loc.Path)
	// The selector gets the full original query so it can return control.
	assert.Equal(t, "ephemeral-1", loc.Query().Get("client_id"))
	assert.Equal(t, "https://app.example.com/cb", loc.Query().Get("redirect_uri"))
	assert.Equal(t, "csrf-123", loc.Query().Get("state"))
}

func TestAuthorizeEphemeralClient(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	params := url.Values{
		"client_id":             {"ephemeral-1"},
		"redirect_uri":          {"https://app.example.com/cb"},
		"response_type":         {"code"},
		"state":                 {"csrf-123"},
		"code_challenge":        {"challenge"},
		"code_challenge_method": {"S256"},
		"org_id":                {"org-1"},
	}
	rec := env.do(authorizeRequest(params))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	assert.Equal(t, "/oauth/authorize", loc.Path)
	// State passes through untouched and our org parameter stays home.
	assert.Equal(t, "csrf-123", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("org_id"))
	assert.Equal(t, "challenge", loc.Query().Get("code_challenge"))

	orgID, err := env.mappings.ResolveClientOrg(context.Background(), "ephemeral-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgID)
}

func TestAuthorizeSharedClient(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	params := url.Values{
		"client_id": {testSharedClientID},
		"state":     {"original-csrf"},
		"org_id":    {"org-2"},
	}
	rec := env.do(authorizeRequest(params))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	decoded := tenant.DecodeState(loc.Query().Get("state"))
	assert.Equal(t, "original-csrf", decoded.CSRF)
	assert.Equal(t, "org-2", decoded.OrgID)

	// Shared client IDs never key tenant state in the store.
	_, err = env.store.Get(context.Background(), "client:"+testSharedClientID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizeSharedClientReencodedState(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// A second pass through /authorize must not nest the encoding.
	encoded := tenant.EncodeState("original-csrf", "org-old")
	params := url.Values{
		"client_id": {testSharedClientID},
		"state":     {encoded},
		"org_id":    {"org-new"},
	}
	rec := env.do(authorizeRequest(params))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	decoded := tenant.DecodeState(loc.Query().Get("state"))
	assert.Equal(t, "original-csrf", decoded.CSRF)
	assert.Equal(t, "org-new", decoded.OrgID)
}

func TestAuthorizeStoreFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	hasher, err := tenant.NewSecretHasher(testHMACSecret)
	require.NoError(t, err)
	upstreamClient, err := upstream.New(upstream.Config{
		AuthorizeEndpoint: env.upstream.srv.URL + "/oauth/authorize",
		TokenEndpoint:     env.upstream.srv.URL + "/oauth/token",
	})
	require.NoError(t, err)
	broken := NewHandler(
		tenant.NewMappings(failingStore{}, hasher, time.Minute, time.Hour),
		tenant.NewClassifier(nil),
		upstreamClient, minter.Identity{}, testOrgSelectorURL, time.Hour)

	params := url.Values{
		"client_id": {"ephemeral-1"},
		"org_id":    {"org-1"},
	}
	rec := httptest.NewRecorder()
	broken.Routes().ServeHTTP(rec, authorizeRequest(params))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", oauthErrorCode(t, rec))
}

func TestAuthorizeCORSPreflight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/authorize", nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
