// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving. configPath may be empty when running from ENV only.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig, configPath string) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks_begin").Msg("running startup checks")

	if err := checkConfigDir(logger, configPath); err != nil {
		return fmt.Errorf("config directory check failed: %w", err)
	}
	if err := checkListenAddrs(ctx, logger, cfg.Server); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.Device.ID == "" {
		logger.Warn().
			Str("event", "startup.unpaired").
			Msg("no device configured; pair one with PUT /api/v1/device or `nestctl pair`")
	}

	logger.Info().Str("event", "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

// checkConfigDir ensures pairing changes can be persisted next to the file.
func checkConfigDir(logger zerolog.Logger, configPath string) error {
	if configPath == "" {
		logger.Info().Msg("no config file; pairing changes will not persist")
		return nil
	}
	dir := filepath.Dir(configPath)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	probe, err := os.CreateTemp(dir, ".nestctl-write-test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	logger.Info().Str("path", dir).Msg("config directory is writable")
	return nil
}

// checkListenAddrs binds and releases each listener address so port clashes
// surface before any component starts.
func checkListenAddrs(ctx context.Context, logger zerolog.Logger, srv config.ServerConfig) error {
	var lc net.ListenConfig
	for _, addr := range []string{srv.Listen, srv.MetricsListen} {
		if addr == "" {
			continue
		}
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("cannot listen on %s: %w", addr, err)
		}
		_ = ln.Close()
		logger.Info().Str(log.FieldAddr, addr).Msg("listen address available")
	}
	return nil
}
