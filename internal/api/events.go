// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
)

// Event stream names.
const (
	EventState        = "state"
	EventConnectivity = "connectivity"
	EventStatus       = "status"
	EventNotification = "notification"
	EventError        = "error"
)

const eventBuffer = 64

type sseEvent struct {
	name string
	data any
}

type connectivityData struct {
	Connected bool `json:"connected"`
}

type notificationData struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

// handleEvents streams client events as server-sent events, starting with
// the current state. A slow reader loses events rather than stalling the
// client's dispatcher.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	events := make(chan sseEvent, eventBuffer)
	logger := log.WithComponentFromContext(r.Context(), "api")
	send := func(ev sseEvent) {
		select {
		case events <- ev:
		default:
			logger.Debug().Str("event", "sse.dropped").Str("name", ev.name).Msg("event stream buffer full")
		}
	}

	unsubscribe := s.player.Subscribe(remote.ObserverFuncs{
		OnConnectivity: func(connected bool) {
			send(sseEvent{EventConnectivity, connectivityData{Connected: connected}})
		},
		OnStatus: func(snap status.Snapshot) {
			send(sseEvent{EventStatus, snap})
		},
		OnNotification: func(n rpc.Notification) {
			send(sseEvent{EventNotification, notificationData{Method: n.Method, Payload: n.Payload}})
		},
		OnError: func(err error) {
			send(sseEvent{EventError, errorData{Message: err.Error()}})
		},
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, sseEvent{EventState, s.currentState()}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Warn().Err(err).Str("event", "sse.flush_unsupported").Msg("response writer cannot flush")
		return
	}

	logger.Debug().Str("event", "sse.opened").Msg("event stream opened")
	defer logger.Debug().Str("event", "sse.closed").Msg("event stream closed")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev sseEvent) error {
	data, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
	return err
}
