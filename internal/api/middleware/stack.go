// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package middleware provides the HTTP ingress stack shared by the control
// API and the relay hub.
package middleware

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// Recoverer is outermost so every panic becomes a 500.
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(Logging)
	}
	if cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(RateLimit(RateLimitConfig{RequestLimit: cfg.RateLimit, WindowSize: window}))
	}
}
