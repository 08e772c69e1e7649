// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/tenant"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// TokenHandler handles POST /token for the authorization_code and
// refresh_token grants. The grant itself is validated by the upstream
// provider; this handler resolves the organization context around the
// exchange, rotates the refresh mapping, and records the issued-token
// mapping for the downstream verifier.
func (h *Handler) TokenHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("Content type must be application/x-www-form-urlencoded."))
		return
	}
	if err := req.ParseForm(); err != nil {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("Malformed form body.").WithWrap(err))
		return
	}
	form := req.PostForm

	clientID := form.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The client_id parameter is required."))
		return
	}

	grantType := form.Get("grant_type")
	switch grantType {
	case grantAuthorizationCode, grantRefreshToken:
	default:
		writeOAuthError(w, fosite.ErrUnsupportedGrantType.WithHintf("Grant type %q is not supported.", grantType))
		return
	}

	// For refresh grants the org context must resolve before the upstream
	// call: a dead mapping means the client has to restart authorization,
	// and there is no point spending an upstream round trip to learn that.
	presentedRefresh := form.Get("refresh_token")
	var orgID string
	if grantType == grantRefreshToken {
		if presentedRefresh == "" {
			writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The refresh_token parameter is required."))
			return
		}
		orgID, err = h.mappings.ResolveRefreshOrg(ctx, presentedRefresh)
		if err != nil {
			writeOAuthError(w, mapStoreError(err, "Unknown or expired refresh token."))
			return
		}
	}

	resp, err := h.upstream.Exchange(ctx, form)
	if err != nil {
		writeOAuthError(w, mapUpstreamError(err))
		return
	}

	kind := h.classifier.Classify(clientID)
	if grantType == grantAuthorizationCode {
		orgID, err = h.resolveCodeGrantOrg(req, kind, clientID)
		if err != nil {
			writeOAuthError(w, err)
			return
		}
	}
	if orgID == "" {
		writeOAuthError(w, fosite.ErrInvalidGrant.WithHint("Organization context could not be resolved."))
		return
	}

	identityToken := resp.IdentityToken()
	if identityToken == "" {
		writeOAuthError(w, fosite.ErrInvalidGrant.WithHint("Upstream response did not include a token."))
		return
	}

	accessToken, expiresIn, err := h.minter.Mint(ctx, identityToken)
	if err != nil {
		writeOAuthError(w, fosite.ErrServerError.WithHint("Failed to mint access token.").WithWrap(err))
		return
	}
	if expiresIn == 0 {
		expiresIn = time.Duration(resp.ExpiresIn) * time.Second
	}
	if expiresIn <= 0 {
		expiresIn = h.issuedTTL
	}

	if err := h.mappings.SaveIssuedOrg(ctx, accessToken, orgID, expiresIn); err != nil {
		writeOAuthError(w, fosite.ErrServerError.WithHint("Failed to record issued token.").WithWrap(err))
		return
	}

	// Rotate before the response goes out so the new refresh token is
	// resolvable the moment the client sees it.
	if resp.RefreshToken != "" {
		oldToken := ""
		if grantType == grantRefreshToken {
			oldToken = presentedRefresh
		}
		if err := h.mappings.RotateRefreshOrg(ctx, oldToken, resp.RefreshToken, orgID); err != nil {
			writeOAuthError(w, fosite.ErrServerError.WithHint("Failed to record refresh token.").WithWrap(err))
			return
		}
	}

	// The code is spent, so the short-lived client mapping goes with it.
	// Best effort: the exchange already succeeded and the mapping expires
	// on its own.
	if grantType == grantAuthorizationCode && kind == tenant.KindEphemeral {
		if err := h.mappings.DeleteClientOrg(ctx, clientID); err != nil {
			logger.Warnw("failed to delete consumed client mapping",
				"client_id", clientID,
				"error", err)
		}
	}

	writeTokenResponse(w, resp.Raw, accessToken, expiresIn)
}

// resolveCodeGrantOrg resolves the organization for an authorization_code
// exchange: ephemeral clients carry it in the client mapping written at
// authorize time, shared clients pass it explicitly after decoding state.
func (h *Handler) resolveCodeGrantOrg(req *http.Request, kind tenant.ClientKind, clientID string) (string, error) {
	if kind == tenant.KindShared {
		orgID := req.PostForm.Get("org_id")
		if orgID == "" {
			return "", fosite.ErrInvalidGrant.WithHint("The org_id parameter is required for this client.")
		}
		return orgID, nil
	}

	orgID, err := h.mappings.ResolveClientOrg(req.Context(), clientID)
	if err != nil {
		return "", mapStoreError(err, "Organization context has expired; restart authorization.")
	}
	return orgID, nil
}

// writeTokenResponse renders the upstream response with the access token
// and expiry replaced; every other upstream field passes through.
func writeTokenResponse(w http.ResponseWriter, raw map[string]any, accessToken string, expiresIn time.Duration) {
	body := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		body[k] = v
	}
	body["access_token"] = accessToken
	body["expires_in"] = int64(expiresIn.Seconds())
	if _, ok := body["token_type"]; !ok {
		body["token_type"] = "Bearer"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
