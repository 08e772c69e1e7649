// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"

	"github.com/ory/fosite"

	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/tenant"
)

// AuthorizeHandler handles GET /authorize.
//
// Requests without an organization are redirected to the org selector with
// the original query preserved, so the selector can send the user back with
// org_id appended. Once an organization is chosen, the request is forwarded
// to the upstream authorize endpoint with the org context recorded either
// in storage (ephemeral clients) or in the state parameter (shared clients).
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	query := req.URL.Query()

	clientID := query.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The client_id parameter is required."))
		return
	}

	orgID := query.Get("org_id")
	if orgID == "" {
		h.redirectToOrgSelector(w, req)
		return
	}

	if h.upstream == nil {
		writeOAuthError(w, fosite.ErrServerError.WithHint("Upstream provider is not configured."))
		return
	}

	state := query.Get("state")
	switch h.classifier.Classify(clientID) {
	case tenant.KindEphemeral:
		if err := h.mappings.SaveClientOrg(ctx, clientID, orgID); err != nil {
			writeOAuthError(w, fosite.ErrServerError.WithHint("Failed to record organization context.").WithWrap(err))
			return
		}
	case tenant.KindShared:
		// Shared client IDs are reused across users, so the org context
		// rides in the state parameter instead of storage.
		decoded := tenant.DecodeState(state)
		state = tenant.EncodeState(decoded.CSRF, orgID)
	}

	// Forward every original parameter except org_id, which is ours.
	upstreamParams := url.Values{}
	for k, vs := range query {
		if k == "org_id" {
			continue
		}
		for _, v := range vs {
			upstreamParams.Set(k, v)
		}
	}
	upstreamParams.Set("state", state)

	redirectURL, err := h.upstream.AuthorizeURL(upstreamParams)
	if err != nil {
		writeOAuthError(w, fosite.ErrServerError.WithHint("Failed to build upstream authorize URL.").WithWrap(err))
		return
	}

	logger.Debugw("redirecting to upstream authorize endpoint",
		"client_id", clientID,
		"org_id", orgID)
	http.Redirect(w, req, redirectURL, http.StatusFound)
}

// redirectToOrgSelector sends the user to the org selector, carrying the
// full original query so the selector can return control to /authorize.
func (h *Handler) redirectToOrgSelector(w http.ResponseWriter, req *http.Request) {
	selector, err := url.Parse(h.orgSelectorURL)
	if err != nil {
		writeOAuthError(w, fosite.ErrServerError.WithHint("Org selector is not configured.").WithWrap(err))
		return
	}

	q := selector.Query()
	for k, vs := range req.URL.Query() {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	selector.RawQuery = q.Encode()

	http.Redirect(w, req, selector.String(), http.StatusFound)
}
