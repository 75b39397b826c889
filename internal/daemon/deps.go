// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/rs/zerolog"
)

// ServerSettings are the listener settings of a Manager.
type ServerSettings struct {
	Listen string
	// MetricsListen serves MetricsHandler on its own listener when set.
	MetricsListen     string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
}

// SettingsFrom derives listener settings from the server config. There is
// no write timeout: the event stream holds responses open.
func SettingsFrom(cfg config.ServerConfig) ServerSettings {
	return ServerSettings{
		Listen:            cfg.Listen,
		MetricsListen:     cfg.MetricsListen,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	Logger zerolog.Logger

	// APIHandler serves the control API (and the relay hub when enabled).
	APIHandler http.Handler

	// MetricsHandler is served on ServerSettings.MetricsListen, if set.
	MetricsHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
