// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"

	"github.com/ManuGH/nestctl/internal/app/bootstrap"
	"github.com/ManuGH/nestctl/internal/daemon"
	"github.com/ManuGH/nestctl/internal/version"
	"github.com/spf13/cobra"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the control daemon",
		Long: `Connects to the paired player and serves the control API.

The device identity is reloaded from the config file while running; SIGHUP
forces a reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), bootstrap.Options{ConfigPath: opts.configPath, Version: version.Version})
		},
	}
}

func newHubCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hub",
		Short: "Run a standalone relay hub",
		Long: `Serves the relay endpoints /ws/player/{device_id} and
/ws/control/{device_id} next to the health and metrics endpoints, without
connecting to a player itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), bootstrap.Options{ConfigPath: opts.configPath, Version: version.Version, HubOnly: true})
		},
	}
}

func runDaemon(parent context.Context, opts bootstrap.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := daemon.WaitForShutdown(parent)
	defer stop()

	container, err := bootstrap.WireServices(ctx, opts)
	if err != nil {
		return err
	}
	return container.Run(ctx)
}
