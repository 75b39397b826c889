// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hub relays JSON-RPC frames between TV players and the controllers
// that drive them. Each device id has at most one player and any number of
// controllers. Frames are forwarded raw; the hub only answers on behalf of an
// offline player and announces player presence.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/transport"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// CloseReplaced is sent to a player superseded by a newer connection for
	// the same device id.
	CloseReplaced = 4000

	// CodePlayerOffline is the JSON-RPC error code returned for requests sent
	// while no player is registered.
	CodePlayerOffline = -32001
	// MessagePlayerOffline accompanies CodePlayerOffline.
	MessagePlayerOffline = "Player is offline"

	// MethodDeviceStatus announces player presence to controllers.
	MethodDeviceStatus = "PlayerHub.DeviceStatus"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultSendBuffer   = 256
)

// Config tunes the hub.
type Config struct {
	Logger       zerolog.Logger
	WriteTimeout time.Duration
	// PongWait is how long a silent peer is kept. Pings go out at 9/10 of it.
	PongWait   time.Duration
	SendBuffer int
	// CheckOrigin overrides the upgrader origin check; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// Hub tracks players and controllers per device id.
type Hub struct {
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pongWait     time.Duration
	sendBuffer   int

	mu          sync.Mutex
	players     map[string]*peer
	controllers map[string]map[*peer]struct{}
	closed      bool
	wg          sync.WaitGroup
}

// New returns an empty hub.
func New(cfg Config) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: cfg.Logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		sendBuffer:   cfg.SendBuffer,
		players:      make(map[string]*peer),
		controllers:  make(map[string]map[*peer]struct{}),
	}
}

// Routes mounts the player and controller endpoints on r.
func (h *Hub) Routes(r chi.Router) {
	r.Get("/ws/player/{device_id}", h.ServePlayer)
	r.Get("/ws/control/{device_id}", h.ServeControl)
}

// ServePlayer upgrades a TV player connection.
func (h *Hub) ServePlayer(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, rolePlayer)
}

// ServeControl upgrades a controller connection.
func (h *Hub) ServeControl(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, roleController)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, role role) {
	id, err := endpoint.ParseIdentity(chi.URLParam(r, "device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().
			Str("event", "hub.upgrade_failed").
			Str("device_id", id.String()).
			Err(err).
			Msg("websocket upgrade failed")
		return
	}

	p := &peer{
		id:       uuid.NewString(),
		deviceID: id.String(),
		role:     role,
		conn:     transport.NewWebSocketConn(ws, h.writeTimeout),
		send:     make(chan []byte, h.sendBuffer),
		done:     make(chan struct{}),
	}
	if err := p.conn.KeepAlive(h.pongWait); err != nil {
		_ = p.conn.Close()
		return
	}

	if !h.register(p) {
		_ = p.conn.CloseWithCode(websocket.CloseGoingAway, "hub is shutting down")
		return
	}

	go h.writePump(p)
	go h.readPump(p)
}

// register adds p and accounts for its two pumps under the same lock Close
// takes, so Close always waits for them.
func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(2)

	log := h.logger.With().
		Str("device_id", p.deviceID).
		Str("peer_id", p.id).
		Logger()

	switch p.role {
	case rolePlayer:
		if old := h.players[p.deviceID]; old != nil {
			old.shutdown(CloseReplaced, "replaced by newer player")
			log.Info().
				Str("event", "hub.player_replaced").
				Str("old_peer_id", old.id).
				Msg("closing previous player")
		}
		h.players[p.deviceID] = p
		h.announceLocked(p.deviceID, true)
		log.Info().Str("event", "hub.player_registered").Msg("player connected")

	case roleController:
		set := h.controllers[p.deviceID]
		if set == nil {
			set = make(map[*peer]struct{})
			h.controllers[p.deviceID] = set
		}
		set[p] = struct{}{}
		_, online := h.players[p.deviceID]
		p.enqueue(presenceFrame(p.deviceID, online))
		log.Info().
			Str("event", "hub.controller_registered").
			Int("controllers", len(set)).
			Msg("controller connected")
	}
	h.updateGaugesLocked()
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch p.role {
	case rolePlayer:
		if h.players[p.deviceID] != p {
			return
		}
		delete(h.players, p.deviceID)
		h.announceLocked(p.deviceID, false)
		h.logger.Info().
			Str("event", "hub.player_unregistered").
			Str("device_id", p.deviceID).
			Str("peer_id", p.id).
			Msg("player disconnected")

	case roleController:
		set := h.controllers[p.deviceID]
		if _, ok := set[p]; !ok {
			return
		}
		delete(set, p)
		if len(set) == 0 {
			delete(h.controllers, p.deviceID)
		}
		h.logger.Info().
			Str("event", "hub.controller_unregistered").
			Str("device_id", p.deviceID).
			Str("peer_id", p.id).
			Msg("controller disconnected")
	}
	h.updateGaugesLocked()
}

// fromPlayer broadcasts a player frame to every controller of its device.
func (h *Hub) fromPlayer(p *peer, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.players[p.deviceID] != p {
		return
	}
	for c := range h.controllers[p.deviceID] {
		if c.enqueue(frame) {
			metrics.RecordHubFrame("to_controller", "relayed")
		} else {
			metrics.RecordHubFrame("to_controller", "dropped")
		}
	}
}

// fromController forwards a controller frame to the player, or answers
// requests itself while the player is offline.
func (h *Hub) fromController(c *peer, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if player := h.players[c.deviceID]; player != nil {
		if player.enqueue(frame) {
			metrics.RecordHubFrame("to_player", "relayed")
		} else {
			metrics.RecordHubFrame("to_player", "dropped")
		}
		return
	}

	reply, ok := offlineReply(frame)
	if !ok {
		return
	}
	c.enqueue(reply)
	metrics.RecordHubFrame("to_player", "offline_error")
}

// announceLocked tells every controller of deviceID whether its player is online.
func (h *Hub) announceLocked(deviceID string, online bool) {
	frame := presenceFrame(deviceID, online)
	for c := range h.controllers[deviceID] {
		c.enqueue(frame)
	}
}

func (h *Hub) updateGaugesLocked() {
	controllers := 0
	for _, set := range h.controllers {
		controllers += len(set)
	}
	metrics.SetHubPeers(len(h.players), controllers)
}

// Online reports whether a player is registered for deviceID.
func (h *Hub) Online(deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.players[deviceID]
	return ok
}

// Stats returns the number of registered players and controllers.
func (h *Hub) Stats() (players, controllers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.controllers {
		controllers += len(set)
	}
	return len(h.players), controllers
}

// Close disconnects every peer and waits for their goroutines to exit.
// Further upgrades are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, p := range h.players {
		p.shutdown(websocket.CloseGoingAway, "hub is shutting down")
	}
	for _, set := range h.controllers {
		for c := range set {
			c.shutdown(websocket.CloseGoingAway, "hub is shutting down")
		}
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) readPump(p *peer) {
	defer h.wg.Done()
	defer h.unregister(p)
	defer p.shutdown(websocket.CloseNormalClosure, "")

	for {
		frame, err := p.conn.ReadMessage()
		if err != nil {
			h.logger.Debug().
				Str("event", "hub.read_ended").
				Str("role", p.role.String()).
				Str("device_id", p.deviceID).
				Str("peer_id", p.id).
				Err(err).
				Msg("peer read loop ended")
			return
		}
		switch p.role {
		case rolePlayer:
			h.fromPlayer(p, frame)
		case roleController:
			h.fromController(p, frame)
		}
	}
}

func (h *Hub) writePump(p *peer) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case frame := <-p.send:
			if err := p.conn.WriteMessage(frame); err != nil {
				h.logger.Debug().
					Str("event", "hub.write_failed").
					Str("device_id", p.deviceID).
					Str("peer_id", p.id).
					Err(err).
					Msg("dropping peer after write failure")
				p.shutdown(websocket.CloseAbnormalClosure, "")
				_ = p.conn.CloseWithCode(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := p.conn.Ping(); err != nil {
				p.shutdown(websocket.CloseAbnormalClosure, "")
				_ = p.conn.CloseWithCode(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		case <-p.done:
			code, reason := p.closeReason()
			_ = p.conn.CloseWithCode(code, reason)
			return
		}
	}
}

type offlineEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   offlineError    `json:"error"`
}

type offlineError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// offlineReply builds the error answer for a request frame. Frames that are
// not JSON objects or carry no id get no answer.
func offlineReply(frame []byte) ([]byte, bool) {
	var msg struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, false
	}
	if len(msg.ID) == 0 || string(msg.ID) == "null" {
		return nil, false
	}
	reply, err := json.Marshal(offlineEnvelope{
		JSONRPC: "2.0",
		ID:      msg.ID,
		Error:   offlineError{Code: CodePlayerOffline, Message: MessagePlayerOffline},
	})
	if err != nil {
		return nil, false
	}
	return reply, true
}

func presenceFrame(deviceID string, online bool) []byte {
	frame, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodDeviceStatus,
		"params":  map[string]any{"device_id": deviceID, "online": online},
	})
	return frame
}
