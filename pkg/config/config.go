// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads orgproxy configuration from flags, environment
// variables and an optional config file, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variables use this prefix, e.g. ORGPROXY_UPSTREAM_DOMAIN.
const envPrefix = "ORGPROXY"

// Config is the full orgproxy runtime configuration.
type Config struct {
	// Address is the listen address for the HTTP server.
	Address string `mapstructure:"address"`

	// UpstreamDomain is the upstream identity-provider host. Authorize and
	// token endpoints are derived from it unless overridden.
	UpstreamDomain            string        `mapstructure:"upstream_domain"`
	UpstreamAuthorizeEndpoint string        `mapstructure:"upstream_authorize_endpoint"`
	UpstreamTokenEndpoint     string        `mapstructure:"upstream_token_endpoint"`
	UpstreamTimeout           time.Duration `mapstructure:"upstream_timeout"`

	// OrgSelectorURL is where clients without an organization in their
	// authorization state are sent to pick one.
	OrgSelectorURL string `mapstructure:"org_selector_url"`

	// HMACSecret keys the hashing of token-derived storage keys.
	HMACSecret string `mapstructure:"hmac_secret"`

	// SharedClients lists client IDs whose organization context travels in
	// the authorization state rather than in per-client storage.
	SharedClients []string `mapstructure:"shared_clients"`

	// RedisAddr selects the Redis backend; empty means in-memory storage.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisUsername string `mapstructure:"redis_username"`
	RedisPassword string `mapstructure:"redis_password"`

	// Mapping lifetimes.
	ClientMappingTTL  time.Duration `mapstructure:"client_mapping_ttl"`
	RefreshMappingTTL time.Duration `mapstructure:"refresh_mapping_ttl"`
	IssuedMappingTTL  time.Duration `mapstructure:"issued_mapping_ttl"`

	// Session minting. When disabled the upstream identity token passes
	// through as the access token.
	SessionMinting    bool          `mapstructure:"session_minting"`
	SessionSigningKey string        `mapstructure:"session_signing_key"`
	SessionIssuer     string        `mapstructure:"session_issuer"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`

	// Debug enables verbose logging.
	Debug bool `mapstructure:"debug"`
}

// setDefaults registers defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("address", ":8080")
	v.SetDefault("upstream_timeout", 10*time.Second)
	v.SetDefault("client_mapping_ttl", 10*time.Minute)
	v.SetDefault("refresh_mapping_ttl", 14*24*time.Hour)
	v.SetDefault("issued_mapping_ttl", time.Hour)
	v.SetDefault("session_minting", false)
	v.SetDefault("session_issuer", "orgproxy")
	v.SetDefault("session_ttl", time.Hour)
}

// Load builds a Config from the given viper instance, wiring defaults and
// environment binding. Pass nil for a fresh instance.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.UpstreamDomain == "" && (c.UpstreamAuthorizeEndpoint == "" || c.UpstreamTokenEndpoint == "") {
		return errors.New("upstream_domain or explicit upstream endpoints are required")
	}
	if c.OrgSelectorURL == "" {
		return errors.New("org_selector_url is required")
	}
	if c.HMACSecret == "" {
		return errors.New("hmac_secret is required")
	}
	if c.SessionMinting && c.SessionSigningKey == "" {
		return errors.New("session_signing_key is required when session_minting is enabled")
	}
	return nil
}
