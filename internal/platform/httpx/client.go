// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package httpx builds the HTTP clients used for LAN probes.
package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// NewClient returns a hardened HTTP client. Dial and response header
// timeouts never exceed timeout. Probes of LAN hosts never go through a proxy.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := min(timeout, defaultDialTimeout)
	responseHeaderTimeout := min(timeout, defaultResponseHeaderTimeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}

// NewTracedClient is NewClient with an OpenTelemetry client span around
// every request. operation names the spans.
func NewTracedClient(timeout time.Duration, operation string) *http.Client {
	c := NewClient(timeout)
	c.Transport = otelhttp.NewTransport(c.Transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
	return c
}
