// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bootstrap is the composition root of the daemon. It loads the
// configuration and builds the remote client, relay hub, control API and
// daemon runtime that share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/nestctl/internal/api"
	"github.com/ManuGH/nestctl/internal/api/middleware"
	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/daemon"
	"github.com/ManuGH/nestctl/internal/health"
	"github.com/ManuGH/nestctl/internal/hub"
	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/transport"
	"github.com/ManuGH/nestctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const serviceName = "nestctl"

// Options select how the daemon is wired.
type Options struct {
	// ConfigPath is the --config flag; empty falls back to NESTCTL_CONFIG
	// and the default path.
	ConfigPath string
	Version    string

	// HubOnly enables the relay hub and never connects to a device.
	HubOnly bool

	// Dialer replaces the websocket dialer of the remote client.
	Dialer    transport.Dialer
	LogOutput io.Writer
}

// Container is the production composition root output.
type Container struct {
	Config        config.AppConfig
	ConfigPath    string
	ConfigHolder  *config.ConfigHolder
	ConfigManager *config.Manager
	Logger        zerolog.Logger

	Client  *remote.Client
	Hub     *hub.Hub
	Health  *health.Manager
	Server  *api.Server
	Manager daemon.Manager
	App     *daemon.App

	opts      Options
	startOnce sync.Once

	applyMu sync.Mutex
	applied config.AppConfig
}

// WireServices builds the production dependency graph and returns a runnable
// container. Nothing connects or listens until Run.
func WireServices(ctx context.Context, opts Options) (*Container, error) {
	if ctx == nil {
		return nil, errors.New("wire services context is nil")
	}

	log.Configure(log.Config{Level: "info", Output: opts.LogOutput, Service: serviceName, Version: opts.Version})
	logger := log.WithComponent("bootstrap")

	configPath, explicit, err := ResolveConfigPath(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.HubOnly {
		cfg.Server.HubEnabled = true
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Output: opts.LogOutput, Service: serviceName, Version: opts.Version})
	logger = log.WithComponent("bootstrap")
	logConfigSource(logger, configPath, explicit)
	metrics.SetBuildInfo(opts.Version)

	if err := health.PerformStartupChecks(ctx, cfg, configPath); err != nil {
		return nil, fmt.Errorf("startup checks failed: %w", err)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: opts.Version,
		Environment:    config.ParseString("NESTCTL_ENVIRONMENT", "production"),
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	client, err := newClient(cfg, opts.Dialer)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	var relay *hub.Hub
	if cfg.Server.HubEnabled {
		relay = hub.New(hub.Config{Logger: log.Base()})
	}

	healthMgr := health.NewManager(opts.Version)
	if !opts.HubOnly {
		healthMgr.RegisterChecker(health.NewDeviceChecker(client))
	}

	persistPath := configPath
	if persistPath == "" {
		if persistPath, err = PersistPath(opts.ConfigPath); err != nil {
			logger.Warn().Err(err).Str("event", "config.persist_disabled").Msg("pairing changes will not persist")
			persistPath = ""
		}
	}
	configMgr := config.NewManager(config.NewLoader(persistPath))

	// /metrics moves to its own listener when one is configured.
	var apiMetrics http.Handler = promhttp.Handler()
	if cfg.Server.MetricsListen != "" {
		apiMetrics = nil
	}

	tracingService := ""
	if cfg.Tracing.Enabled {
		tracingService = serviceName
	}
	server, err := api.New(api.Config{
		Player:    client,
		Persister: configMgr,
		Health:    healthMgr,
		Hub:       relay,
		Metrics:   apiMetrics,
		Stack: middleware.StackConfig{
			EnableMetrics:  true,
			TracingService: tracingService,
			EnableLogging:  true,
			RateLimit:      cfg.Server.RateLimit,
			RateWindow:     time.Minute,
		},
		Logger: log.Base(),
	})
	if err != nil {
		_ = client.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("initialize api server: %w", err)
	}

	mgr, err := daemon.NewManager(daemon.SettingsFrom(cfg.Server), daemon.Deps{
		Logger:         logger,
		APIHandler:     server.Handler(),
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		_ = client.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("create daemon manager: %w", err)
	}

	// Hooks run LIFO: the hub and client close before spans are flushed.
	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	mgr.RegisterShutdownHook("remote_client", func(context.Context) error { return client.Close() })
	if relay != nil {
		mgr.RegisterShutdownHook("hub", func(context.Context) error {
			relay.Close()
			return nil
		})
	}

	c := &Container{
		Config:        cfg,
		ConfigPath:    configPath,
		ConfigManager: configMgr,
		Logger:        logger,
		Client:        client,
		Hub:           relay,
		Health:        healthMgr,
		Server:        server,
		Manager:       mgr,
		opts:          opts,
		applied:       cfg,
	}
	c.ConfigHolder = config.NewConfigHolder(cfg, loader)
	c.App = daemon.NewApp(logger, mgr, c.ConfigHolder, c.applyConfig)

	logger.Info().
		Str("event", "startup").
		Str("version", opts.Version).
		Str("listen", cfg.Server.Listen).
		Str("mode", cfg.Device.Mode).
		Str(log.FieldDeviceID, cfg.Device.ID).
		Bool("hub", relay != nil).
		Msg("starting nestctl")
	return c, nil
}

func newClient(cfg config.AppConfig, dialer transport.Dialer) (*remote.Client, error) {
	resolver, err := endpoint.New(endpoint.Mode(cfg.Device.Mode), cfg.Device.HubURL, cfg.Device.PlayerWSPort)
	if err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = transport.NewWebSocketDialer(transport.WebSocketConfig{HandshakeTimeout: cfg.Reconnect.DialTimeout})
	}
	return remote.New(remote.Options{
		Resolver:        resolver,
		Dialer:          dialer,
		ReconnectDelay:  cfg.Reconnect.Delay,
		ReconnectJitter: cfg.Reconnect.Jitter,
		DialTimeout:     cfg.Reconnect.DialTimeout,
		Logger:          log.Base(),
	})
}

func logConfigSource(logger zerolog.Logger, path string, explicit bool) {
	switch {
	case explicit:
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", path).Msg("loaded configuration from file")
	case path != "":
		logger.Info().Str("event", "config.loaded").Str("source", "file(auto)").Str("path", path).Msg("loaded configuration from file")
	default:
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}
}

// Start connects to the configured device. It is a no-op in hub-only mode
// and when no device is paired.
func (c *Container) Start() error {
	if c == nil || c.Client == nil {
		return errors.New("container is not initialized")
	}
	var err error
	c.startOnce.Do(func() {
		if c.opts.HubOnly || c.Config.Device.ID == "" {
			return
		}
		err = c.Client.SetDeviceIdentity(c.Config.Device.ID)
	})
	return err
}

// Run connects the client and blocks in the daemon runtime until ctx ends.
// The manager's shutdown hooks close every component on the way out.
func (c *Container) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("run context is nil")
	}
	if c == nil || c.App == nil || c.Manager == nil {
		return errors.New("container is not fully initialized")
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("connect device: %w", err)
	}
	return c.App.Run(ctx)
}

// applyConfig reacts to a reloaded configuration. Only the device identity
// and log level apply live; other changes need a restart.
func (c *Container) applyConfig(next config.AppConfig) {
	c.applyMu.Lock()
	prev := c.applied
	c.applied = next
	c.applyMu.Unlock()

	if next.LogLevel != prev.LogLevel {
		log.Configure(log.Config{Level: next.LogLevel, Output: c.opts.LogOutput, Service: serviceName, Version: c.opts.Version})
		c.Logger.Info().
			Str("event", "config.log_level_applied").
			Str("old", prev.LogLevel).
			Str("new", next.LogLevel).
			Msg("log level changed")
	}

	if next.Device.Mode != prev.Device.Mode ||
		next.Device.HubURL != prev.Device.HubURL ||
		next.Device.PlayerWSPort != prev.Device.PlayerWSPort ||
		next.Server != prev.Server {
		c.Logger.Warn().
			Str("event", "config.restart_required").
			Msg("endpoint or listener settings changed; restart to apply")
	}

	if c.opts.HubOnly || next.Device.ID == prev.Device.ID {
		return
	}
	if next.Device.ID == "" {
		c.Client.Disconnect()
		return
	}
	if err := c.Client.SetDeviceIdentity(next.Device.ID); err != nil {
		c.Logger.Warn().
			Err(err).
			Str("event", "config.device_apply_failed").
			Str(log.FieldDeviceID, next.Device.ID).
			Msg("reloaded device identity rejected")
	}
}
