// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDebounce coalesces bursts of file events into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// ConfigHolder holds the current configuration and swaps it atomically on
// reload. A reload that fails to load or validate keeps the old config.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	debounce time.Duration

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}

	listenMu  sync.RWMutex
	listeners []chan<- AppConfig
}

// NewConfigHolder returns a holder seeded with initial.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: DefaultReloadDebounce,
	}
}

// Get returns the current configuration.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration again and notifies listeners
// when it succeeds.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		var invalid *ValidationError
		metrics.RecordConfigReload(false, errors.As(err, &invalid))
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	metrics.RecordConfigReload(true, false)
	h.logChanges(prev, next)
	h.notifyListeners(next)

	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// StartWatcher reloads whenever the config file changes. The parent
// directory is watched so atomic replacements are seen too. Without a
// config file this is a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("no config file, watcher disabled")
		return nil
	}

	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if h.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().Str("event", "config.watcher_started").Str("path", path).Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, filepath.Clean(path), h.done)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, w *fsnotify.Watcher, path string, done chan struct{}) {
	defer close(done)

	debounce := time.NewTimer(h.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			_ = w.Close()
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				h.logger.Debug().Str("event", "config.file_changed").Str("op", ev.Op.String()).Msg("config file changed")
				debounce.Reset(h.debounce)
			}

		case <-debounce.C:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher and waits for its goroutine.
func (h *ConfigHolder) Stop() {
	h.watchMu.Lock()
	w, done := h.watcher, h.done
	h.watcher, h.done = nil, nil
	h.watchMu.Unlock()

	if w == nil {
		return
	}
	_ = w.Close()
	<-done
}

// RegisterListener registers ch to receive every successfully reloaded
// config. Sends never block; a full channel misses that update.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notifyListeners(cfg AppConfig) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.listener_full").Msg("config listener channel full, skipping notification")
		}
	}
}

func (h *ConfigHolder) logChanges(prev, next AppConfig) {
	if prev.Device != next.Device {
		h.logger.Info().
			Str("event", "config.device_changed").
			Str(xglog.FieldDeviceID, next.Device.ID).
			Str("mode", next.Device.Mode).
			Msg("device configuration changed")
	}
	if prev.LogLevel != next.LogLevel {
		h.logger.Info().Str("event", "config.log_level_changed").Str("old", prev.LogLevel).Str("new", next.LogLevel).Msg("log level changed")
	}
	if prev.Server != next.Server {
		h.logger.Warn().Str("event", "config.restart_required").Msg("server settings changed; restart to apply")
	}
}
