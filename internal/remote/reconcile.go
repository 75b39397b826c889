// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
)

// DevicePresence is the payload of a PlayerHub.DeviceStatus notification.
type DevicePresence struct {
	DeviceID string `json:"device_id"`
	Online   bool   `json:"online"`
}

func (c *Client) handleFrame(gen uint64, frame rpc.Frame) {
	switch f := frame.(type) {
	case *rpc.Response:
		c.mu.Lock()
		resolved := false
		if gen == c.gen && c.pending != nil {
			resolved = c.pending.Resolve(f)
			metrics.SetRemotePendingRequests(c.pending.Len())
		}
		c.mu.Unlock()

		if !resolved {
			metrics.RecordRemoteFrame("orphan_response")
			c.logger.Debug().
				Str("event", "rpc.orphan_response").
				Int64("rpc_id", f.ID).
				Msg("dropping response for unknown request")
			return
		}
		metrics.RecordRemoteFrame("response")

	case *rpc.Notification:
		metrics.RecordRemoteFrame("notification")
		c.reconcile(gen, *f)

	case *rpc.Malformed:
		metrics.RecordRemoteFrame("malformed")
		c.logger.Warn().
			Str("event", "rpc.malformed_frame").
			Int("bytes", len(f.Raw)).
			Err(f.Err).
			Msg("dropping malformed frame")

	default:
		c.logger.Warn().
			Str("event", "rpc.unknown_frame").
			Str("type", fmt.Sprintf("%T", frame)).
			Msg("dropping unsupported frame")
	}
}

func (c *Client) reconcile(gen uint64, n rpc.Notification) {
	applied := false

	switch {
	case n.Method == NotifyDeviceStatus:
		var presence DevicePresence
		if err := json.Unmarshal(n.Payload, &presence); err != nil {
			c.logger.Warn().
				Str("event", "remote.presence_invalid").
				Err(err).
				Msg("ignoring invalid presence notification")
			break
		}
		c.mu.Lock()
		if gen == c.gen {
			online := presence.Online
			c.online = &online
			applied = true
		}
		c.mu.Unlock()
		c.logger.Info().
			Str("event", "remote.device_presence").
			Str("device_id", presence.DeviceID).
			Bool("online", presence.Online).
			Msg("player presence changed")

	case IsStatusNotification(n.Method):
		if len(n.Payload) == 0 {
			break
		}
		c.mu.Lock()
		if gen == c.gen {
			applied = c.mergeLocked(n.Payload)
		}
		c.mu.Unlock()

	default:
		c.logger.Debug().
			Str("event", "remote.notification_ignored").
			Str("method", n.Method).
			Msg("unhandled notification")
	}

	metrics.RecordRemoteNotification(n.Method, applied)

	c.mu.Lock()
	if gen == c.gen {
		c.events.notification(n)
	}
	c.mu.Unlock()
}

// mergeLocked overlays payload onto the status and emits StatusChanged. It
// reports false when payload is not an object.
func (c *Client) mergeLocked(payload []byte) bool {
	next, err := c.snapshot.Merge(payload)
	if err != nil {
		c.logger.Debug().
			Str("event", "remote.status_ignored").
			Err(err).
			Msg("status payload is not an object")
		return false
	}
	c.snapshot = next
	c.hasStatus = true
	c.events.status(next)
	return true
}

// RefreshStatus queries the player status and merges an object result into
// the playback status. Concurrent refreshes on the same connection share one
// request.
func (c *Client) RefreshStatus(ctx context.Context) (status.Snapshot, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.refreshStatus(ctx, gen)
}

func (c *Client) refreshStatus(ctx context.Context, gen uint64) (status.Snapshot, error) {
	key := MethodGetStatus + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := c.refresh.Do(key, func() (any, error) {
		raw, err := c.Call(ctx, MethodGetStatus, nil)
		if err != nil {
			return status.Snapshot{}, err
		}
		return c.applyStatusResult(gen, raw)
	})
	if err != nil {
		return status.Snapshot{}, err
	}
	return v.(status.Snapshot), nil
}

// applyStatusResult merges a status query result issued on generation gen.
// Results from a connection that has since been torn down are dropped.
func (c *Client) applyStatusResult(gen uint64, raw []byte) (status.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return status.Snapshot{}, ErrConnectionReset
	}
	c.mergeLocked(raw)
	return c.snapshot, nil
}
