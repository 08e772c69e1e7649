// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/orgproxy/pkg/store"
	"github.com/stacklok/orgproxy/pkg/tenant"
)

func newTestMappings(t *testing.T) *tenant.Mappings {
	t.Helper()
	hasher, err := tenant.NewSecretHasher("test-secret")
	require.NoError(t, err)
	return tenant.NewMappings(store.NewMemoryStore(), hasher, time.Minute, time.Hour)
}

func TestBearerMiddlewareResolvesOrg(t *testing.T) {
	t.Parallel()

	mappings := newTestMappings(t)
	require.NoError(t, mappings.SaveIssuedOrg(context.Background(), "issued-token", "org-1", time.Minute))

	var gotOrg string
	var gotOK bool
	handler := BearerMiddleware(mappings)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg, gotOK = OrgFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
	req.Header.Set("Authorization", "Bearer issued-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotOK)
	assert.Equal(t, "org-1", gotOrg)
}

func TestBearerMiddlewareRejects(t *testing.T) {
	t.Parallel()

	mappings := newTestMappings(t)
	handler := BearerMiddleware(mappings)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "unknown token", header: "Bearer never-issued"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		})
	}
}

func TestOrgFromContextAbsent(t *testing.T) {
	t.Parallel()

	_, ok := OrgFromContext(context.Background())
	assert.False(t, ok)
}
