// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("upstream_domain", "auth.example.com")
	v.Set("org_selector_url", "https://selector.example.com")
	v.Set("hmac_secret", "test-secret")
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(validViper())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 10*time.Minute, cfg.ClientMappingTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshMappingTTL)
	assert.Equal(t, time.Hour, cfg.IssuedMappingTTL)
	assert.False(t, cfg.SessionMinting)
	assert.Equal(t, "orgproxy", cfg.SessionIssuer)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORGPROXY_REDIS_ADDR", "localhost:6379")
	t.Setenv("ORGPROXY_CLIENT_MAPPING_TTL", "5m")

	cfg, err := Load(validViper())
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Minute, cfg.ClientMappingTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "missing upstream",
			mutate:  func(v *viper.Viper) { v.Set("upstream_domain", "") },
			wantErr: "upstream_domain",
		},
		{
			name: "explicit endpoints without domain",
			mutate: func(v *viper.Viper) {
				v.Set("upstream_domain", "")
				v.Set("upstream_authorize_endpoint", "https://a/authorize")
				v.Set("upstream_token_endpoint", "https://a/token")
			},
		},
		{
			name:    "missing org selector",
			mutate:  func(v *viper.Viper) { v.Set("org_selector_url", "") },
			wantErr: "org_selector_url",
		},
		{
			name:    "missing hmac secret",
			mutate:  func(v *viper.Viper) { v.Set("hmac_secret", "") },
			wantErr: "hmac_secret",
		},
		{
			name:    "session minting without key",
			mutate:  func(v *viper.Viper) { v.Set("session_minting", true) },
			wantErr: "session_signing_key",
		},
		{
			name: "session minting with key",
			mutate: func(v *viper.Viper) {
				v.Set("session_minting", true)
				v.Set("session_signing_key", "sign-key")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validViper()
			tt.mutate(v)
			_, err := Load(v)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
