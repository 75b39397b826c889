// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import "errors"

var (
	// ErrNotConnected is returned by Call when no connection is open. Calls are never queued.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed fails requests still pending when their connection ends.
	ErrConnectionClosed = errors.New("connection closed before response")
	// ErrConnectionReset fails requests still pending when the device identity changes.
	ErrConnectionReset = errors.New("connection reset before response")
	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("remote client closed")
	// ErrWaitTimeout is returned when an awaited notification does not arrive in time.
	ErrWaitTimeout = errors.New("timed out waiting for notification")
)
