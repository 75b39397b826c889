// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the daemon's HTTP control API over the remote player
// client.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/api/middleware"
	"github.com/ManuGH/nestctl/internal/health"
	"github.com/ManuGH/nestctl/internal/hub"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/status"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Player is the remote client surface the API drives.
type Player interface {
	health.DeviceView
	remote.Subscriber

	Connected() bool
	Status() (status.Snapshot, bool)
	RefreshStatus(ctx context.Context) (status.Snapshot, error)

	PlayPause(ctx context.Context) bool
	Stop(ctx context.Context) bool
	SeekMS(ctx context.Context, positionMS int64) bool
	SeekBySeconds(ctx context.Context, deltaSeconds float64) bool
	SetVolume(ctx context.Context, volume int) bool
	PlayMedia(ctx context.Context, req remote.MediaRequest) error

	SetDeviceIdentity(raw string) error
	Disconnect()
}

// DevicePersister stores pairing changes; config.Manager implements it.
type DevicePersister interface {
	SaveDevice(id, mode string) error
	ClearDevice() error
}

// Config wires a Server. Player is required; the rest are optional.
type Config struct {
	Player    Player
	Persister DevicePersister
	Health    *health.Manager
	// Hub, when set, is mounted at /ws.
	Hub *hub.Hub
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Stack   middleware.StackConfig

	// CommandTimeout bounds each device call made for a request.
	CommandTimeout time.Duration
	// Heartbeat is the idle interval between event stream keep-alives.
	Heartbeat time.Duration
	Logger    zerolog.Logger
}

const (
	defaultCommandTimeout = 10 * time.Second
	defaultHeartbeat      = 15 * time.Second
)

var errMissingPlayer = errors.New("api: player is required")

// Server is the control API.
type Server struct {
	player    Player
	persister DevicePersister
	health    *health.Manager
	hub       *hub.Hub
	metrics   http.Handler
	stack     middleware.StackConfig

	commandTimeout time.Duration
	heartbeat      time.Duration
	logger         zerolog.Logger
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Player == nil {
		return nil, errMissingPlayer
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Health == nil {
		cfg.Health = health.NewManager("")
	}
	return &Server{
		player:         cfg.Player,
		persister:      cfg.Persister,
		health:         cfg.Health,
		hub:            cfg.Hub,
		metrics:        cfg.Metrics,
		stack:          cfg.Stack,
		commandTimeout: cfg.CommandTimeout,
		heartbeat:      cfg.Heartbeat,
		logger:         cfg.Logger.With().Str("component", "api").Logger(),
	}, nil
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(s.stack)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/player", func(r chi.Router) {
			r.Get("/", s.handleGetPlayer)
			r.Get("/events", s.handleEvents)
			r.Post("/play-pause", s.handlePlayPause)
			r.Post("/stop", s.handleStop)
			r.Post("/seek", s.handleSeek)
			r.Post("/volume", s.handleVolume)
			r.Post("/play", s.handlePlay)
		})
		r.Put("/device", s.handlePutDevice)
		r.Delete("/device", s.handleDeleteDevice)
	})

	if s.hub != nil {
		s.hub.Routes(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})
	return r
}

func (s *Server) commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.commandTimeout)
}
