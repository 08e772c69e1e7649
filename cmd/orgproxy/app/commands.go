// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the orgproxy command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/orgproxy/pkg/config"
	"github.com/stacklok/orgproxy/pkg/logger"
	"github.com/stacklok/orgproxy/pkg/server"
)

var rootCmd = &cobra.Command{
	Use:               "orgproxy",
	DisableAutoGenTag: true,
	Short:             "Multi-tenant authorization proxy for an upstream OAuth 2.1 provider",
	Long: `orgproxy fronts an upstream OAuth 2.1 identity provider and makes a
client's organization (tenant) choice survive the full token lifecycle:
authorization, code exchange, token refresh, and downstream verification.

It classifies clients as shared or ephemeral, carries the organization
context either in the OAuth state parameter or in short-lived storage
mappings, and maintains the refresh-token and issued-token mappings a
downstream verifier uses to scope API calls.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the orgproxy CLI.
func NewRootCmd() *cobra.Command {
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug mode")
	flags.String("address", ":8080", "Listen address for the HTTP server")
	flags.String("upstream-domain", "", "Upstream identity provider host")
	flags.String("org-selector-url", "", "URL of the organization selector")
	flags.String("redis-addr", "", "Redis address (empty uses in-memory storage)")
	flags.StringSlice("shared-clients", nil, "Client IDs treated as shared")

	// Flag names use dashes, config keys use underscores.
	bindings := map[string]string{
		"debug":            "debug",
		"address":          "address",
		"upstream_domain":  "upstream-domain",
		"org_selector_url": "org-selector-url",
		"redis_addr":       "redis-addr",
		"shared_clients":   "shared-clients",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logger.Errorf("Error binding %s flag: %v", flag, err)
		}
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// newServeCmd creates the serve command for starting the proxy
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization proxy",
		Long: `Start the authorization proxy and serve the /authorize and /token
endpoints until interrupted. Configuration comes from flags and
ORGPROXY_* environment variables.`,
		RunE: runServe,
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			// Version information will be injected at build time
			logger.Infof("orgproxy version: %s", getVersion())
		},
	}
}

// getVersion returns the version string (will be set at build time)
func getVersion() string {
	// This will be replaced with actual version info using ldflags
	return "dev"
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble server: %w", err)
	}

	return srv.Serve(ctx)
}
