// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"errors"
	"time"

	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/transport"
	"github.com/ManuGH/nestctl/internal/telemetry"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultReconnectDelay is the pause between connection attempts.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultReconnectJitter randomizes the delay by +/- this fraction.
	DefaultReconnectJitter = 0.2
	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	// Resolver maps the device identity to an endpoint URL. Required.
	Resolver endpoint.Resolver
	// Dialer opens transport connections. Required.
	Dialer transport.Dialer

	ReconnectDelay  time.Duration
	ReconnectJitter float64
	DialTimeout     time.Duration

	Logger zerolog.Logger
	Tracer trace.Tracer
}

var (
	errMissingResolver = errors.New("remote: resolver is required")
	errMissingDialer   = errors.New("remote: dialer is required")
)

func (o *Options) applyDefaults() error {
	if o.Resolver == nil {
		return errMissingResolver
	}
	if o.Dialer == nil {
		return errMissingDialer
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ReconnectJitter < 0 || o.ReconnectJitter >= 1 {
		o.ReconnectJitter = DefaultReconnectJitter
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Tracer == nil {
		o.Tracer = telemetry.Tracer("nestctl.remote")
	}
	return nil
}

// reconnectPolicy is a fixed delay with jitter: an exponential backoff whose
// multiplier is 1 never grows, so only the randomization applies.
func reconnectPolicy(delay time.Duration, jitter float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = delay
	b.Multiplier = 1
	b.RandomizationFactor = jitter
	b.Reset()
	return b
}
