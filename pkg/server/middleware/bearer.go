// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/tenant"
)

// orgContextKey keys the resolved organization ID in the request context.
type orgContextKey struct{}

// OrgFromContext returns the organization ID attached by BearerMiddleware.
func OrgFromContext(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgContextKey{}).(string)
	return orgID, ok
}

// BearerMiddleware creates middleware that resolves the organization
// context for a bearer token via the issued-token mapping. Requests whose
// token does not resolve are rejected with 401; the mapping expires with
// the token, so an expired token and an unknown one look the same.
func BearerMiddleware(mappings *tenant.Mappings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w, "Invalid Authorization header format")
				return
			}

			orgID, err := mappings.ResolveIssuedOrg(r.Context(), tokenString)
			if err != nil {
				logger.Debugw("bearer token did not resolve to an organization", "error", err)
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), orgContextKey{}, orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
