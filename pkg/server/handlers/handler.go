// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the HTTP handlers for the organization-aware
// authorization proxy endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/orgproxy/pkg/minter"
	"github.com/stacklok/orgproxy/pkg/server/middleware"
	"github.com/stacklok/orgproxy/pkg/tenant"
	"github.com/stacklok/orgproxy/pkg/upstream"
)

// defaultIssuedTTL bounds issued-token mappings when neither the minter nor
// the upstream reports an expiry.
const defaultIssuedTTL = time.Hour

// Handler provides HTTP handlers for the proxy's OAuth endpoints.
type Handler struct {
	mappings       *tenant.Mappings
	classifier     *tenant.Classifier
	upstream       *upstream.Client
	minter         minter.Minter
	orgSelectorURL string
	issuedTTL      time.Duration
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	mappings *tenant.Mappings,
	classifier *tenant.Classifier,
	upstreamIDP *upstream.Client,
	tokenMinter minter.Minter,
	orgSelectorURL string,
	issuedTTL time.Duration,
) *Handler {
	if tokenMinter == nil {
		tokenMinter = minter.Identity{}
	}
	if issuedTTL <= 0 {
		issuedTTL = defaultIssuedTTL
	}
	return &Handler{
		mappings:       mappings,
		classifier:     classifier,
		upstream:       upstreamIDP,
		minter:         tokenMinter,
		orgSelectorURL: orgSelectorURL,
		issuedTTL:      issuedTTL,
	}
}

// Routes returns a router with all proxy endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS)
	r.Get("/authorize", h.AuthorizeHandler)
	r.Post("/token", h.TokenHandler)
	r.Get("/health", h.HealthHandler)
	return r
}

// HealthHandler reports liveness, including store connectivity.
func (h *Handler) HealthHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.mappings.Ping(req.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
