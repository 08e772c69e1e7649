// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/store"
	"github.com/stacklok/orgproxy/pkg/upstream"
)

// oauthError is the RFC 6749 error response body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeOAuthError renders err as an RFC 6749 error response. Unrecognized
// errors become server_error so internals never leak to callers.
func writeOAuthError(w http.ResponseWriter, err error) {
	rfcErr := fosite.ErrorToRFC6749Error(err)

	if rfcErr.CodeField >= http.StatusInternalServerError {
		logger.Errorw("request failed", "error", err)
	} else {
		logger.Debugw("request rejected", "error", rfcErr.ErrorField, "hint", rfcErr.HintField)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(rfcErr.CodeField)
	_ = json.NewEncoder(w).Encode(oauthError{
		Error:            rfcErr.ErrorField,
		ErrorDescription: rfcErr.GetDescription(),
	})
}

// mapStoreError converts storage failures into the OAuth taxonomy: a
// missing mapping means the grant can no longer be honored and the client
// must restart authorization, while store unavailability is a server fault.
func mapStoreError(err error, hint string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fosite.ErrInvalidGrant.WithHint(hint)
	}
	return fosite.ErrServerError.WithHint("Storage is unavailable.").WithWrap(err)
}

// mapUpstreamError converts upstream exchange failures: a rejection from
// the upstream token endpoint invalidates the grant, anything else (network
// failure, undecodable response) is a server fault.
func mapUpstreamError(err error) error {
	if errors.Is(err, upstream.ErrUpstream) {
		return fosite.ErrInvalidGrant.WithHint("The upstream provider rejected the grant.").WithWrap(err)
	}
	return fosite.ErrServerError.WithHint("Upstream token exchange failed.").WithWrap(err)
}
