// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads nestctl configuration from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import "time"

// AppConfig is the effective, validated runtime configuration.
type AppConfig struct {
	LogLevel  string
	Device    DeviceConfig
	Reconnect ReconnectConfig
	Server    ServerConfig
	Tracing   TracingConfig
	Discovery DiscoveryConfig
}

// DeviceConfig selects the remote player and how it is addressed.
type DeviceConfig struct {
	ID           string
	Mode         string
	HubURL       string
	PlayerWSPort int
}

type ReconnectConfig struct {
	Delay       time.Duration
	Jitter      float64
	DialTimeout time.Duration
}

// ServerConfig controls the daemon's HTTP listeners. An empty MetricsListen
// serves /metrics on the main listener.
type ServerConfig struct {
	Listen        string
	MetricsListen string
	RateLimit     int
	HubEnabled    bool
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

type DiscoveryConfig struct {
	Subnets      []string
	ProbeTimeout time.Duration
}

// FileConfig mirrors the YAML file. Durations are strings; pointers
// distinguish "unset" from the zero value.
type FileConfig struct {
	LogLevel  string              `yaml:"logLevel,omitempty"`
	Device    FileDeviceConfig    `yaml:"device,omitempty"`
	Reconnect FileReconnectConfig `yaml:"reconnect,omitempty"`
	Server    FileServerConfig    `yaml:"server,omitempty"`
	Tracing   FileTracingConfig   `yaml:"tracing,omitempty"`
	Discovery FileDiscoveryConfig `yaml:"discovery,omitempty"`
}

type FileDeviceConfig struct {
	ID           string `yaml:"id,omitempty"`
	Mode         string `yaml:"mode,omitempty"`
	HubURL       string `yaml:"hubUrl,omitempty"`
	PlayerWSPort int    `yaml:"playerWsPort,omitempty"`
}

type FileReconnectConfig struct {
	Delay       string   `yaml:"delay,omitempty"`
	Jitter      *float64 `yaml:"jitter,omitempty"`
	DialTimeout string   `yaml:"dialTimeout,omitempty"`
}

type FileServerConfig struct {
	Listen        string `yaml:"listen,omitempty"`
	MetricsListen string `yaml:"metricsListen,omitempty"`
	RateLimit     *int   `yaml:"rateLimit,omitempty"`
	HubEnabled    *bool  `yaml:"hubEnabled,omitempty"`
}

type FileTracingConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

type FileDiscoveryConfig struct {
	Subnets      []string `yaml:"subnets,omitempty"`
	ProbeTimeout string   `yaml:"probeTimeout,omitempty"`
}
