// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Call sends method with params and waits for the matching response. The
// raw result is returned unchanged. A remote error is returned as
// *rpc.RemoteError. There is no timeout besides ctx; a request still pending
// when its connection ends fails with ErrConnectionClosed or ErrConnectionReset.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "nestctl.remote.call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(telemetry.RPCAttributes(method, 0)...)

	result, err := c.call(ctx, span, method, params)
	outcome := callOutcome(err)
	metrics.RecordRemoteRPC(method, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var rerr *rpc.RemoteError
		if errors.As(err, &rerr) {
			span.SetAttributes(attribute.Int(telemetry.RPCCodeKey, rerr.Code))
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (c *Client) call(ctx context.Context, span trace.Span, method string, params any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn, table := c.conn, c.pending
	id, ch := table.Add()
	metrics.SetRemotePendingRequests(table.Len())
	c.mu.Unlock()

	span.SetAttributes(attribute.Int64(telemetry.RPCIDKey, id))

	data, err := rpc.NewRequest(id, method, params).Encode()
	if err != nil {
		c.forget(table, id)
		return nil, err
	}

	start := time.Now()
	c.writeMu.Lock()
	err = conn.WriteMessage(data)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(table, id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	c.logger.Debug().
		Str("event", "rpc.sent").
		Int64("rpc_id", id).
		Str("method", method).
		Msg("request sent")

	select {
	case res := <-ch:
		if res.Err == nil || isRemoteError(res.Err) {
			metrics.ObserveRemoteRPCDuration(method, time.Since(start).Seconds())
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Value, nil
	case <-ctx.Done():
		c.forget(table, id)
		return nil, ctx.Err()
	}
}

// forget drops id from table if table still belongs to the live connection.
func (c *Client) forget(table *rpc.Table, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == table {
		table.Remove(id)
		metrics.SetRemotePendingRequests(table.Len())
	}
}

func isRemoteError(err error) bool {
	var rerr *rpc.RemoteError
	return errors.As(err, &rerr)
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isRemoteError(err):
		return "remote_error"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrConnectionReset), errors.Is(err, ErrClientClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "write_error"
	}
}
