// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon runs the nestctl HTTP listeners and owns the long-lived
// runtime: config watching, reload wiring and graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/rs/zerolog"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start binds all listeners and blocks until ctx is done or a server fails.
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers and runs the hooks.
	Shutdown(ctx context.Context) error

	RegisterShutdownHook(name string, hook ShutdownHook)

	// Addr is the bound API address, or nil before Start.
	Addr() net.Addr
}

type manager struct {
	settings ServerSettings
	deps     Deps

	apiServer     *http.Server
	metricsServer *http.Server
	apiAddr       net.Addr

	// baseCtx parents every request context and is cancelled when shutdown
	// begins, ending long-lived event streams.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager.
func NewManager(settings ServerSettings, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = 10 * time.Second
	}
	return &manager{
		settings: settings,
		deps:     deps,
		logger:   deps.Logger.With().Str(log.FieldComponent, "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("event", "daemon.starting").
		Str("listen", m.settings.Listen).
		Str("metrics_listen", m.settings.MetricsListen).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)

	var lc net.ListenConfig
	apiLn, err := lc.Listen(ctx, "tcp", m.settings.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.settings.Listen, err)
	}

	var metricsLn net.Listener
	if m.settings.MetricsListen != "" && m.deps.MetricsHandler != nil {
		metricsLn, err = lc.Listen(ctx, "tcp", m.settings.MetricsListen)
		if err != nil {
			_ = apiLn.Close()
			return fmt.Errorf("listen metrics %s: %w", m.settings.MetricsListen, err)
		}
	}

	m.mu.Lock()
	m.baseCtx, m.cancelBase = context.WithCancel(context.WithoutCancel(ctx))
	m.apiAddr = apiLn.Addr()
	m.apiServer = m.newServer(m.deps.APIHandler)
	if metricsLn != nil {
		m.metricsServer = m.newServer(m.deps.MetricsHandler)
	}
	apiServer, metricsServer := m.apiServer, m.metricsServer
	m.mu.Unlock()

	m.serve(apiServer, apiLn, "api", errChan)
	if metricsServer != nil {
		m.serve(metricsServer, metricsLn, "metrics", errChan)
	}

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.settings.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Str("event", "daemon.server_failed").Msg("server error, initiating shutdown")
		if shutdownErr := shutdown(); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.shutdown_signal").Msg("shutdown signal received")
		return shutdown()
	}
}

func (m *manager) newServer(h http.Handler) *http.Server {
	base := m.baseCtx
	return &http.Server{
		Handler:           h,
		BaseContext:       func(net.Listener) context.Context { return base },
		ReadHeaderTimeout: m.settings.ReadHeaderTimeout,
		IdleTimeout:       m.settings.IdleTimeout,
		MaxHeaderBytes:    m.settings.MaxHeaderBytes,
	}
}

func (m *manager) serve(srv *http.Server, ln net.Listener, name string, errChan chan<- error) {
	go func() {
		m.logger.Info().
			Str("event", name+".listening").
			Str(log.FieldAddr, ln.Addr().String()).
			Msgf("%s server listening", name)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", name+".server_failed").Msgf("%s server failed", name)
			errChan <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func (m *manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiAddr
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	apiServer, metricsServer := m.apiServer, m.metricsServer
	if m.cancelBase != nil {
		m.cancelBase()
	}
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.stopping").Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.settings.ShutdownTimeout)
	defer cancel()

	var errs []error

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			_ = apiServer.Close()
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			_ = metricsServer.Close()
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("event", "daemon.hook_failed").
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().
			Str("event", "daemon.stopped_with_errors").
			Int("error_count", len(errs)).
			Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
