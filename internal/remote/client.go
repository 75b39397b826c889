// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package remote implements the controller side of the player remote-control
// protocol: one persistent connection bound to a mutable device identity,
// JSON-RPC calls correlated over it, and a coalesced playback status built
// from the notifications the player pushes.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
	"github.com/ManuGH/nestctl/internal/remote/transport"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of the connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client owns zero or one live connection to the player bound to the current
// device identity. It is safe for concurrent use.
type Client struct {
	resolver    endpoint.Resolver
	dialer      transport.Dialer
	dialTimeout time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
	events      *dispatcher
	refresh     singleflight.Group

	// mu guards everything below. No I/O happens while it is held.
	mu         sync.Mutex
	identity   endpoint.Identity
	suppressed bool
	state      State
	gen        uint64
	conn       transport.Conn
	pending    *rpc.Table
	snapshot   status.Snapshot
	hasStatus  bool
	online     *bool
	policy     *backoff.ExponentialBackOff
	retry      *time.Timer
	retrySeq   uint64
	cancelDial context.CancelFunc
	closed     bool
	stateCh    chan struct{}

	// writeMu serializes frames on the connection.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// New returns a disconnected client. Call SetDeviceIdentity or Connect to
// start connecting.
func New(opts Options) (*Client, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger.With().Str("component", "remote").Logger()
	c := &Client{
		resolver:    opts.Resolver,
		dialer:      opts.Dialer,
		dialTimeout: opts.DialTimeout,
		logger:      logger,
		tracer:      opts.Tracer,
		events:      newDispatcher(logger),
		policy:      reconnectPolicy(opts.ReconnectDelay, opts.ReconnectJitter),
		stateCh:     make(chan struct{}),
	}
	metrics.SetRemoteConnectionState(StateDisconnected.String())
	return c, nil
}

// Subscribe registers o for client events until the returned function is called.
func (c *Client) Subscribe(o Observer) (unsubscribe func()) {
	return c.events.subscribe(o)
}

// Identity returns the current device identity.
func (c *Client) Identity() endpoint.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Status returns the latest playback status. ok is false until the first
// status query or notification populated it.
func (c *Client) Status() (snapshot status.Snapshot, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.hasStatus
}

// DeviceOnline returns the player presence last reported by the relay hub.
// known is false when no presence notification has been received.
func (c *Client) DeviceOnline() (online, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online == nil {
		return false, false
	}
	return *c.online, true
}

// SetDeviceIdentity binds the client to a new device. An unchanged identity
// is a no-op. A changed identity resets the current connection and starts
// connecting. An empty or invalid identity tears down the connection and
// suppresses reconnection until a valid identity is set.
func (c *Client) SetDeviceIdentity(raw string) error {
	id, err := endpoint.ParseIdentity(raw)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if err != nil {
		c.identity = ""
		c.suppressed = true
		c.stopRetryLocked()
		conn := c.teardownLocked(ErrConnectionReset)
		c.mu.Unlock()
		closeConn(conn)

		c.logger.Warn().
			Str("event", "remote.identity_rejected").
			Err(err).
			Msg("device identity cleared")
		return err
	}
	if id == c.identity {
		c.mu.Unlock()
		return nil
	}

	old := c.identity
	c.identity = id
	c.suppressed = false
	c.stopRetryLocked()
	c.policy.Reset()
	conn := c.teardownLocked(ErrConnectionReset)
	c.connectLocked()
	c.mu.Unlock()
	closeConn(conn)

	c.logger.Info().
		Str("event", "remote.identity_changed").
		Str("old_device_id", old.String()).
		Str("device_id", id.String()).
		Msg("device identity changed")
	return nil
}

// Connect starts a connection attempt unless one is open or in progress.
// Failures are reported to observers and retried; they are never returned.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

// Disconnect forgets the device: the identity and playback status are
// cleared, the connection is closed and no reconnect is scheduled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.identity = ""
	c.suppressed = true
	c.snapshot = status.Snapshot{}
	c.hasStatus = false
	c.stopRetryLocked()
	conn := c.teardownLocked(ErrConnectionClosed)
	c.mu.Unlock()
	closeConn(conn)

	c.logger.Info().Str("event", "remote.disconnected_by_user").Msg("device disconnected")
}

// Close terminates the client. Pending calls fail with ErrConnectionClosed,
// observers receive the remaining queued events and no further work is done.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopRetryLocked()
	conn := c.teardownLocked(ErrConnectionClosed)
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	c.mu.Unlock()
	closeConn(conn)

	c.wg.Wait()
	c.events.close()
	c.logger.Debug().Str("event", "remote.closed").Msg("remote client closed")
	return nil
}

// WaitConnected blocks until a connection is open or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClientClosed
		}
		if c.state == StateConnected {
			c.mu.Unlock()
			return nil
		}
		changed := c.stateCh
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) connectLocked() {
	if c.closed || c.state != StateDisconnected {
		return
	}
	if c.identity.IsZero() {
		if c.suppressed {
			return
		}
		metrics.RecordRemoteConnectAttempt("identity_error")
		c.logger.Warn().Str("event", "remote.connect_skipped").Msg("device identity is not set")
		c.events.error(fmt.Errorf("connect: %w", endpoint.ErrEmptyIdentity))
		c.scheduleRetryLocked()
		return
	}

	url, err := c.resolver.Resolve(c.identity)
	if err != nil {
		metrics.RecordRemoteConnectAttempt("identity_error")
		c.logger.Warn().
			Str("event", "remote.connect_skipped").
			Str("device_id", c.identity.String()).
			Err(err).
			Msg("cannot resolve device endpoint")
		c.events.error(fmt.Errorf("connect: %w", err))
		c.scheduleRetryLocked()
		return
	}

	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	c.cancelDial = cancel
	c.wg.Add(1)
	go c.dial(ctx, cancel, gen, url)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, url string) {
	defer c.wg.Done()
	defer cancel()

	conn, err := c.dialer.Dial(ctx, url)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		closeConn(conn)
		metrics.RecordRemoteConnectAttempt("superseded")
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleRetryLocked()
		c.events.error(fmt.Errorf("connect: %w", err))
		c.mu.Unlock()

		metrics.RecordRemoteConnectAttempt("failure")
		c.logger.Warn().
			Str("event", "remote.connect_failed").
			Str("endpoint", url).
			Err(err).
			Msg("connection attempt failed")
		return
	}

	c.conn = conn
	c.pending = rpc.NewTable()
	c.policy.Reset()
	c.setStateLocked(StateConnected)
	c.wg.Add(2)
	c.mu.Unlock()

	metrics.RecordRemoteConnectAttempt("success")
	c.logger.Info().
		Str("event", "remote.connected").
		Str("endpoint", url).
		Msg("connected to player")

	go c.readLoop(gen, conn)
	go c.refreshAfterConnect(gen)
}

func (c *Client) readLoop(gen uint64, conn transport.Conn) {
	defer c.wg.Done()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
		c.handleFrame(gen, rpc.Decode(data))
	}
}

func (c *Client) refreshAfterConnect(gen uint64) {
	defer c.wg.Done()

	c.mu.Lock()
	current := gen == c.gen && c.state == StateConnected
	c.mu.Unlock()
	if !current {
		return
	}

	if _, err := c.refreshStatus(context.Background(), gen); err != nil {
		c.logger.Warn().
			Str("event", "remote.status_query_failed").
			Err(err).
			Msg("status query after connect failed")
	}
}

// handleDisconnect runs when the reader of generation gen observes a
// transport failure. Teardowns initiated locally have already bumped the
// generation and are ignored here.
func (c *Client) handleDisconnect(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.teardownLocked(ErrConnectionClosed)
	c.scheduleRetryLocked()
	if !errors.Is(cause, transport.ErrClosed) {
		c.events.error(fmt.Errorf("connection lost: %w", cause))
	}
	c.mu.Unlock()
	closeConn(conn)

	c.logger.Warn().
		Str("event", "remote.connection_lost").
		Err(cause).
		Msg("connection to player lost")
}

// teardownLocked invalidates the current generation, fails pending requests
// with reason and returns the connection for the caller to close after
// releasing the lock.
func (c *Client) teardownLocked(reason error) transport.Conn {
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	// Presence is announced per hub connection.
	c.online = nil
	if c.pending != nil {
		n := c.pending.FailAll(reason)
		c.pending = nil
		metrics.SetRemotePendingRequests(0)
		if errors.Is(reason, ErrConnectionReset) {
			metrics.RecordRemotePendingFailed("reset", n)
		} else {
			metrics.RecordRemotePendingFailed("closed", n)
		}
	}
	c.setStateLocked(StateDisconnected)
	return conn
}

func (c *Client) setStateLocked(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	metrics.SetRemoteConnectionState(next.String())

	c.logger.Debug().
		Str("event", "remote.state_changed").
		Str("old_state", prev.String()).
		Str("new_state", next.String()).
		Msg("connection state changed")

	switch {
	case next == StateConnected:
		c.events.connectivity(true)
	case prev == StateConnected:
		c.events.connectivity(false)
	}
}

// scheduleRetryLocked arms the reconnect timer. At most one timer is
// outstanding; without an identity nothing is armed once suppressed.
func (c *Client) scheduleRetryLocked() {
	if c.closed || c.retry != nil || c.suppressed {
		return
	}
	delay := c.policy.NextBackOff()
	c.retrySeq++
	seq := c.retrySeq
	c.retry = time.AfterFunc(delay, func() { c.retryFired(seq) })
	metrics.RecordRemoteReconnectScheduled()

	c.logger.Debug().
		Str("event", "remote.reconnect_scheduled").
		Dur("delay", delay).
		Msg("reconnect scheduled")
}

func (c *Client) retryFired(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retry == nil || seq != c.retrySeq {
		return
	}
	c.retry = nil
	c.connectLocked()
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func closeConn(conn transport.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}
