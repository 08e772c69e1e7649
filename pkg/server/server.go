// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the organization-aware authorization proxy from
// its configuration and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/orgproxy/pkg/config"
	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/minter"
	"github.com/stacklok/orgproxy/pkg/server/handlers"
	"github.com/stacklok/orgproxy/pkg/store"
	"github.com/stacklok/orgproxy/pkg/tenant"
	"github.com/stacklok/orgproxy/pkg/upstream"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled proxy.
type Server struct {
	cfg     *config.Config
	store   store.Store
	handler http.Handler
}

// New builds a Server from cfg, wiring storage, hashing, classification,
// the upstream client and the token minter.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var st store.Store
	if cfg.RedisAddr != "" {
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, err
		}
		st = rs
		logger.Infow("using redis storage", "addr", cfg.RedisAddr)
	} else {
		st = store.NewMemoryStore()
		logger.Infow("using in-memory storage; mappings will not survive restarts")
	}

	hasher, err := tenant.NewSecretHasher(cfg.HMACSecret)
	if err != nil {
		return nil, err
	}

	mappings := tenant.NewMappings(st, hasher, cfg.ClientMappingTTL, cfg.RefreshMappingTTL)
	classifier := tenant.NewClassifier(cfg.SharedClients)

	upstreamClient, err := upstream.New(upstream.Config{
		Domain:            cfg.UpstreamDomain,
		AuthorizeEndpoint: cfg.UpstreamAuthorizeEndpoint,
		TokenEndpoint:     cfg.UpstreamTokenEndpoint,
		Timeout:           cfg.UpstreamTimeout,
	})
	if err != nil {
		return nil, err
	}

	var tokenMinter minter.Minter = minter.Identity{}
	if cfg.SessionMinting {
		tokenMinter, err = minter.NewSession([]byte(cfg.SessionSigningKey), cfg.SessionIssuer, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
	}

	h := handlers.NewHandler(mappings, classifier, upstreamClient, tokenMinter,
		cfg.OrgSelectorURL, cfg.IssuedMappingTTL)

	return &Server{
		cfg:     cfg,
		store:   st,
		handler: h.Routes(),
	}, nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs the HTTP listener until ctx is cancelled, then drains
// in-flight requests and closes the store.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting authorization proxy", "address", s.cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := s.store.Close(); err != nil {
		logger.Warnw("failed to close store", "error", err)
	}
	return nil
}
