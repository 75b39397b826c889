// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
	maxMessageBytes         = 1 << 20
)

// WebSocketConfig tunes the websocket dialer.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// WebSocketDialer dials gorilla websocket connections.
type WebSocketDialer struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketDialer returns a dialer with defaults applied.
func NewWebSocketDialer(cfg WebSocketConfig) *WebSocketDialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &WebSocketDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial opens a websocket connection to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, d.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketConn(ws, d.cfg.WriteTimeout), nil
}

// WebSocketConn wraps a gorilla connection as a Conn.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an established gorilla connection. It is used by
// both the dialer and the hub.
func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	ws.SetReadLimit(maxMessageBytes)
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

// ReadMessage returns the next text or binary frame payload.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage sends data as a text frame.
func (c *WebSocketConn) WriteMessage(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// KeepAlive arms a read deadline of pongWait that every pong extends. The
// peer must be pinged with Ping more often than pongWait.
func (c *WebSocketConn) KeepAlive(pongWait time.Duration) error {
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return nil
}

// Ping sends a ping control frame.
func (c *WebSocketConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// CloseWithCode sends a close frame with code and reason, then closes.
func (c *WebSocketConn) CloseWithCode(code int, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Close sends a normal closure frame and closes the underlying connection.
func (c *WebSocketConn) Close() error {
	err := c.CloseWithCode(websocket.CloseNormalClosure, "")
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
