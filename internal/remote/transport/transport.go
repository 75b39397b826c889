// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package transport abstracts the persistent bidirectional connection used to
// exchange JSON frames with a player.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Conn operations after Close.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one open connection. ReadMessage must only be called from a single
// goroutine; WriteMessage callers serialize among themselves.
type Conn interface {
	// ReadMessage blocks until the next text frame arrives or the connection fails.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error
	// Close tears the connection down; it is safe to call more than once.
	Close() error
}

// Dialer opens connections to an endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
