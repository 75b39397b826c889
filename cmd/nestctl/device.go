// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/api"
	"github.com/ManuGH/nestctl/internal/app/bootstrap"
	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/discovery"
	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/spf13/cobra"
)

func newPairCmd(opts *rootOptions) *cobra.Command {
	var (
		mode      string
		viaDaemon bool
	)
	cmd := &cobra.Command{
		Use:   "pair <device-id>",
		Short: "Pair a player by storing its identity",
		Long: `Stores the device identity in the config file. A running daemon that
loaded the same file applies it within a second. With --via-daemon the
running daemon is paired directly and persists the identity itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := endpoint.ParseIdentity(args[0])
			if err != nil {
				return fmt.Errorf("device id %q: %w", args[0], err)
			}
			if mode != "" {
				if err := checkMode(mode); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if viaDaemon {
				if mode != "" {
					return errors.New("--mode cannot be changed through a running daemon")
				}
				var res api.DeviceResult
				if _, err := newAPIClient(opts).do(commandContext(cmd), http.MethodPut, "/api/v1/device", api.DeviceRequest{DeviceID: id.String()}, &res); err != nil {
					return err
				}
				if !res.Persisted {
					_, err = fmt.Fprintf(out, "paired %s (not persisted by the daemon)\n", res.DeviceID)
					return err
				}
				_, err = fmt.Fprintf(out, "paired %s\n", res.DeviceID)
				return err
			}

			path, err := bootstrap.PersistPath(opts.configPath)
			if err != nil {
				return err
			}
			if err := config.NewManager(config.NewLoader(path)).SaveDevice(id.String(), mode); err != nil {
				return fmt.Errorf("save pairing: %w", err)
			}
			_, err = fmt.Fprintf(out, "paired %s (saved to %s)\n", id, path)
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "addressing mode to store with the id: hub, direct or kodi")
	cmd.Flags().BoolVar(&viaDaemon, "via-daemon", false, "pair through the running daemon's API")
	return cmd
}

func newUnpairCmd(opts *rootOptions) *cobra.Command {
	var viaDaemon bool
	cmd := &cobra.Command{
		Use:   "unpair",
		Short: "Forget the paired player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if viaDaemon {
				if _, err := newAPIClient(opts).do(commandContext(cmd), http.MethodDelete, "/api/v1/device", nil, nil); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out, "unpaired")
				return err
			}

			path, err := bootstrap.PersistPath(opts.configPath)
			if err != nil {
				return err
			}
			if err := config.NewManager(config.NewLoader(path)).ClearDevice(); err != nil {
				return fmt.Errorf("clear pairing: %w", err)
			}
			_, err = fmt.Fprintf(out, "unpaired (saved to %s)\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&viaDaemon, "via-daemon", false, "unpair through the running daemon's API")
	return cmd
}

func checkMode(mode string) error {
	switch endpoint.Mode(mode) {
	case endpoint.ModeHub, endpoint.ModeDirect, endpoint.ModeKodi:
		return nil
	}
	return fmt.Errorf("unknown mode %q (want hub, direct or kodi)", mode)
}

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var (
		subnets      []string
		probeTimeout time.Duration
		pair         bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find a player on the local network",
		Long: `Probes the player settings endpoint across the local /24 subnets (or
the given ones) and prints the first player that answers. With --pair the
player is stored as a direct-mode device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := discoverySettings(opts.configPath)
			if len(subnets) > 0 {
				cfg.Subnets = subnets
			}
			if probeTimeout > 0 {
				cfg.ProbeTimeout = probeTimeout
			}
			cfg.Logger = log.Base()

			res, err := discovery.New(cfg).Discover(commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else if _, err := fmt.Fprintf(out, "found player at %s (%s)\n", res.Host, res.BaseURL); err != nil {
				return err
			}

			if !pair {
				return nil
			}
			path, err := bootstrap.PersistPath(opts.configPath)
			if err != nil {
				return err
			}
			if err := config.NewManager(config.NewLoader(path)).SaveDevice(res.Host, string(endpoint.ModeDirect)); err != nil {
				return fmt.Errorf("save pairing: %w", err)
			}
			_, err = fmt.Fprintf(out, "paired %s in direct mode (saved to %s)\n", res.Host, path)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&subnets, "subnet", nil, "/24 prefix to scan, such as 192.168.1 (repeatable)")
	flags.DurationVar(&probeTimeout, "probe-timeout", 0, "timeout of one probe (default from config, 600ms)")
	flags.BoolVar(&pair, "pair", false, "store the found player as the paired device")
	return cmd
}

// discoverySettings takes the discovery section of the config when one
// loads, else the built-in defaults.
func discoverySettings(configPath string) discovery.Config {
	cfg := config.Defaults()
	path, _, err := bootstrap.ResolveConfigPath(configPath)
	if err == nil {
		if loaded, loadErr := config.NewLoader(path).Load(); loadErr == nil {
			cfg = loaded
		}
	}
	return discovery.Config{
		Subnets:      cfg.Discovery.Subnets,
		ProbeTimeout: cfg.Discovery.ProbeTimeout,
	}
}
