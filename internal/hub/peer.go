// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"sync"

	"github.com/ManuGH/nestctl/internal/remote/transport"
	"github.com/gorilla/websocket"
)

type role int

const (
	rolePlayer role = iota
	roleController
)

func (r role) String() string {
	if r == rolePlayer {
		return "player"
	}
	return "controller"
}

// peer is one websocket attached to the hub. readPump owns reads, writePump
// owns writes; everything else talks to it through send and shutdown.
type peer struct {
	id       string
	deviceID string
	role     role
	conn     *transport.WebSocketConn
	send     chan []byte

	once   sync.Once
	done   chan struct{}
	code   int
	reason string
}

// enqueue queues frame without blocking. A peer that cannot keep up is shut
// down and false is returned.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		p.shutdown(websocket.ClosePolicyViolation, "send buffer full")
		return false
	}
}

// shutdown asks writePump to close the connection with code and reason.
// Only the first call has any effect.
func (p *peer) shutdown(code int, reason string) {
	p.once.Do(func() {
		p.code = code
		p.reason = reason
		close(p.done)
	})
}

func (p *peer) closeReason() (int, string) {
	<-p.done
	return p.code, p.reason
}
