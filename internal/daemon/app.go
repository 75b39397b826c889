// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ConfigApplier receives every successfully reloaded configuration.
type ConfigApplier func(cfg config.AppConfig)

// App owns the long-lived runtime lifecycle (config watcher, reload wiring)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	apply        ConfigApplier
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder and apply may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, apply ConfigApplier) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		apply:        apply,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run blocks until ctx is cancelled or the manager fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		// Best-effort: a missing watcher only disables hot reload.
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()
	}

	if a.cfgHolder != nil && a.apply != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
