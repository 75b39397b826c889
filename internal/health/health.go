// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package health provides liveness and readiness checks for the daemon.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{
		version: version,
		started: time.Now(),
	}
}

// RegisterChecker adds a checker. Not safe for use after serving starts.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health is the liveness view: always healthy unless verbose, in which case
// component results are folded into the overall status.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready reports not-ready only when a component is unhealthy.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// DeviceView is the part of the remote client a DeviceChecker reads.
type DeviceView interface {
	Identity() endpoint.Identity
	State() remote.State
	DeviceOnline() (online, known bool)
}

// DeviceChecker reports the connection to the remote player. A missing or
// unreachable player degrades the daemon but never makes it unready; the
// control API stays useful for pairing.
type DeviceChecker struct {
	device DeviceView
}

func NewDeviceChecker(device DeviceView) *DeviceChecker {
	return &DeviceChecker{device: device}
}

func (c *DeviceChecker) Name() string { return "device" }

func (c *DeviceChecker) Check(context.Context) CheckResult {
	if c.device.Identity().IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no device paired"}
	}
	switch state := c.device.State(); state {
	case remote.StateConnected:
		if online, known := c.device.DeviceOnline(); known && !online {
			return CheckResult{Status: StatusDegraded, Message: "connected to hub, player offline"}
		}
		return CheckResult{Status: StatusHealthy, Message: "connected"}
	default:
		return CheckResult{Status: StatusDegraded, Message: state.String()}
	}
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (f CheckFunc) Name() string { return f.CheckName }

func (f CheckFunc) Check(ctx context.Context) CheckResult {
	if err := f.Fn(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
