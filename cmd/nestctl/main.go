// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command nestctl runs the player control daemon and relay hub, and drives a
// running daemon from the shell.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/version"
	"github.com/spf13/cobra"
)

const (
	envServer     = "NESTCTL_SERVER"
	defaultServer = "http://127.0.0.1:8089"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	server     string
	timeout    time.Duration
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "nestctl",
		Short:         "Control a remote TV player",
		Long:          "nestctl keeps a JSON-RPC connection to a TV player, either directly or through a relay hub, and exposes it over a local HTTP API.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// The daemon reconfigures logging from its config file.
			log.Configure(log.Config{Level: config.ParseString("LOG_LEVEL", "warn"), Output: cmd.ErrOrStderr(), Version: version.Version})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file (YAML); defaults to $NESTCTL_CONFIG or the user config dir")
	flags.StringVar(&opts.server, "server", config.ParseString(envServer, defaultServer), "base URL of a running daemon")
	flags.DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout for daemon commands")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print raw JSON responses")

	root.AddCommand(
		newDaemonCmd(opts),
		newHubCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newPlayPauseCmd(opts),
		newStopCmd(opts),
		newSeekCmd(opts),
		newVolumeCmd(opts),
		newPlayCmd(opts),
		newPairCmd(opts),
		newUnpairCmd(opts),
		newDiscoverCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
