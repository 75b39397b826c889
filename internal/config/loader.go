// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/nestctl/internal/discovery"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvDeviceID        = "NESTCTL_DEVICE_ID"
	EnvDeviceMode      = "NESTCTL_DEVICE_MODE"
	EnvHubURL          = "NESTCTL_HUB_URL"
	EnvPlayerWSPort    = "NESTCTL_PLAYER_WS_PORT"
	EnvReconnectDelay  = "NESTCTL_RECONNECT_DELAY"
	EnvReconnectJitter = "NESTCTL_RECONNECT_JITTER"
	EnvDialTimeout     = "NESTCTL_DIAL_TIMEOUT"
	EnvListen          = "NESTCTL_LISTEN"
	EnvMetricsListen   = "NESTCTL_METRICS_LISTEN"
	EnvHubEnabled      = "NESTCTL_HUB_ENABLED"
	EnvRateLimit       = "NESTCTL_RATE_LIMIT"
	EnvTracingEnabled  = "NESTCTL_TRACING_ENABLED"
	EnvTracingExporter = "NESTCTL_TRACING_EXPORTER"
	EnvTracingEndpoint = "NESTCTL_TRACING_ENDPOINT"
	EnvTracingSampling = "NESTCTL_TRACING_SAMPLING_RATE"
	EnvDiscoverySubnet = "NESTCTL_DISCOVERY_SUBNETS"
	EnvProbeTimeout    = "NESTCTL_DISCOVERY_PROBE_TIMEOUT"
	EnvLogLevel        = "LOG_LEVEL"
)

// ErrUnknownConfigField classifies strict YAML failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader builds an AppConfig from defaults, an optional YAML file and ENV.
type Loader struct {
	configPath string
}

// NewLoader returns a loader for configPath. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the YAML file path, if any.
func (l *Loader) Path() string { return l.configPath }

// Load applies defaults, then the file, then ENV, and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return AppConfig{}, fmt.Errorf("apply config file: %w", err)
		}
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Device: DeviceConfig{
			Mode:         string(endpoint.ModeHub),
			HubURL:       endpoint.DefaultHubURL,
			PlayerWSPort: endpoint.DefaultPlayerWSPort,
		},
		Reconnect: ReconnectConfig{
			Delay:       3 * time.Second,
			Jitter:      0.2,
			DialTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Listen:    "127.0.0.1:8089",
			RateLimit: 120,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Discovery: DiscoveryConfig{
			ProbeTimeout: discovery.DefaultProbeTimeout,
		},
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format %q (expected .yaml or .yml)", ext)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &fc, nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse yaml: multiple documents are not supported")
	}
	return &fc, nil
}

func mergeFile(cfg *AppConfig, fc *FileConfig) error {
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}

	if fc.Device.ID != "" {
		cfg.Device.ID = fc.Device.ID
	}
	if fc.Device.Mode != "" {
		cfg.Device.Mode = fc.Device.Mode
	}
	if fc.Device.HubURL != "" {
		cfg.Device.HubURL = fc.Device.HubURL
	}
	if fc.Device.PlayerWSPort != 0 {
		cfg.Device.PlayerWSPort = fc.Device.PlayerWSPort
	}

	if err := setDuration(&cfg.Reconnect.Delay, "reconnect.delay", fc.Reconnect.Delay); err != nil {
		return err
	}
	if err := setDuration(&cfg.Reconnect.DialTimeout, "reconnect.dialTimeout", fc.Reconnect.DialTimeout); err != nil {
		return err
	}
	if fc.Reconnect.Jitter != nil {
		cfg.Reconnect.Jitter = *fc.Reconnect.Jitter
	}

	if fc.Server.Listen != "" {
		cfg.Server.Listen = fc.Server.Listen
	}
	if fc.Server.MetricsListen != "" {
		cfg.Server.MetricsListen = fc.Server.MetricsListen
	}
	if fc.Server.RateLimit != nil {
		cfg.Server.RateLimit = *fc.Server.RateLimit
	}
	if fc.Server.HubEnabled != nil {
		cfg.Server.HubEnabled = *fc.Server.HubEnabled
	}

	if fc.Tracing.Enabled != nil {
		cfg.Tracing.Enabled = *fc.Tracing.Enabled
	}
	if fc.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = fc.Tracing.Exporter
	}
	if fc.Tracing.Endpoint != "" {
		cfg.Tracing.Endpoint = fc.Tracing.Endpoint
	}
	if fc.Tracing.SamplingRate != nil {
		cfg.Tracing.SamplingRate = *fc.Tracing.SamplingRate
	}

	if len(fc.Discovery.Subnets) > 0 {
		cfg.Discovery.Subnets = append([]string(nil), fc.Discovery.Subnets...)
	}
	return setDuration(&cfg.Discovery.ProbeTimeout, "discovery.probeTimeout", fc.Discovery.ProbeTimeout)
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)

	cfg.Device.ID = ParseString(EnvDeviceID, cfg.Device.ID)
	cfg.Device.Mode = ParseString(EnvDeviceMode, cfg.Device.Mode)
	cfg.Device.HubURL = ParseString(EnvHubURL, cfg.Device.HubURL)
	cfg.Device.PlayerWSPort = ParseInt(EnvPlayerWSPort, cfg.Device.PlayerWSPort)

	cfg.Reconnect.Delay = ParseDuration(EnvReconnectDelay, cfg.Reconnect.Delay)
	cfg.Reconnect.Jitter = ParseFloat(EnvReconnectJitter, cfg.Reconnect.Jitter)
	cfg.Reconnect.DialTimeout = ParseDuration(EnvDialTimeout, cfg.Reconnect.DialTimeout)

	cfg.Server.Listen = ParseString(EnvListen, cfg.Server.Listen)
	cfg.Server.MetricsListen = ParseString(EnvMetricsListen, cfg.Server.MetricsListen)
	cfg.Server.RateLimit = ParseInt(EnvRateLimit, cfg.Server.RateLimit)
	cfg.Server.HubEnabled = ParseBool(EnvHubEnabled, cfg.Server.HubEnabled)

	cfg.Tracing.Enabled = ParseBool(EnvTracingEnabled, cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString(EnvTracingExporter, cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString(EnvTracingEndpoint, cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = ParseFloat(EnvTracingSampling, cfg.Tracing.SamplingRate)

	if raw := ParseString(EnvDiscoverySubnet, ""); raw != "" {
		cfg.Discovery.Subnets = splitCSV(raw)
	}
	cfg.Discovery.ProbeTimeout = ParseDuration(EnvProbeTimeout, cfg.Discovery.ProbeTimeout)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
