// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/rs/zerolog"
)

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError collects every FieldError found in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg AppConfig) error {
	v := &ValidationError{}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		v.add("logLevel", "unknown level %q", cfg.LogLevel)
	}

	if _, err := endpoint.New(endpoint.Mode(cfg.Device.Mode), cfg.Device.HubURL, cfg.Device.PlayerWSPort); err != nil {
		v.add("device.mode", "%v", err)
	}
	if cfg.Device.ID != "" {
		if _, err := endpoint.ParseIdentity(cfg.Device.ID); err != nil {
			v.add("device.id", "%v", err)
		}
	}
	if endpoint.Mode(cfg.Device.Mode) == endpoint.ModeHub {
		checkURL(v, "device.hubUrl", cfg.Device.HubURL, "ws", "wss", "http", "https")
	}
	checkPort(v, "device.playerWsPort", cfg.Device.PlayerWSPort)

	if cfg.Reconnect.Delay <= 0 {
		v.add("reconnect.delay", "must be positive, got %s", cfg.Reconnect.Delay)
	}
	if cfg.Reconnect.Jitter < 0 || cfg.Reconnect.Jitter >= 1 {
		v.add("reconnect.jitter", "must be in [0, 1), got %g", cfg.Reconnect.Jitter)
	}
	if cfg.Reconnect.DialTimeout <= 0 {
		v.add("reconnect.dialTimeout", "must be positive, got %s", cfg.Reconnect.DialTimeout)
	}

	checkListen(v, "server.listen", cfg.Server.Listen)
	if cfg.Server.MetricsListen != "" {
		checkListen(v, "server.metricsListen", cfg.Server.MetricsListen)
		if cfg.Server.MetricsListen == cfg.Server.Listen {
			v.add("server.metricsListen", "must differ from server.listen")
		}
	}
	if cfg.Server.RateLimit < 0 {
		v.add("server.rateLimit", "must not be negative, got %d", cfg.Server.RateLimit)
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "grpc" && cfg.Tracing.Exporter != "http" {
			v.add("tracing.exporter", "must be grpc or http, got %q", cfg.Tracing.Exporter)
		}
		if strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
			v.add("tracing.endpoint", "required when tracing is enabled")
		}
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		v.add("tracing.samplingRate", "must be in [0, 1], got %g", cfg.Tracing.SamplingRate)
	}

	for _, subnet := range cfg.Discovery.Subnets {
		if ip := net.ParseIP(subnet + ".1"); ip == nil || ip.To4() == nil || strings.Count(subnet, ".") != 2 {
			v.add("discovery.subnets", "%q is not a /24 prefix like 192.168.1", subnet)
		}
	}
	if cfg.Discovery.ProbeTimeout <= 0 {
		v.add("discovery.probeTimeout", "must be positive, got %s", cfg.Discovery.ProbeTimeout)
	}

	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func checkURL(v *ValidationError, field, raw string, schemes ...string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		v.add(field, "invalid URL %q", raw)
		return
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return
		}
	}
	v.add(field, "scheme %q not allowed (want one of %s)", u.Scheme, strings.Join(schemes, ", "))
}

func checkPort(v *ValidationError, field string, port int) {
	if port < 1 || port > 65535 {
		v.add(field, "port %d out of range", port)
	}
}

func checkListen(v *ValidationError, field, addr string) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		v.add(field, "invalid listen address %q: %v", addr, err)
	}
}
