// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
device:
  id: living-room
  mode: direct
  playerWsPort: 9000
reconnect:
  delay: 5s
  jitter: 0
server:
  listen: 127.0.0.1:9999
  hubEnabled: true
discovery:
  subnets: ["192.168.7"]
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DeviceConfig{ID: "living-room", Mode: "direct", HubURL: Defaults().Device.HubURL, PlayerWSPort: 9000}, cfg.Device)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Delay)
	assert.Zero(t, cfg.Reconnect.Jitter, "explicit zero jitter must be kept")
	assert.Equal(t, Defaults().Reconnect.DialTimeout, cfg.Reconnect.DialTimeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
	assert.True(t, cfg.Server.HubEnabled)
	assert.Equal(t, []string{"192.168.7"}, cfg.Discovery.Subnets)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "device:\n  id: from-file\nreconnect:\n  delay: 5s\n")
	t.Setenv(EnvDeviceID, "from-env")
	t.Setenv(EnvReconnectDelay, "250ms")
	t.Setenv(EnvHubEnabled, "yes")
	t.Setenv(EnvDiscoverySubnet, "10.1.2, 10.1.3")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Device.ID)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.Delay)
	assert.True(t, cfg.Server.HubEnabled)
	assert.Equal(t, []string{"10.1.2", "10.1.3"}, cfg.Discovery.Subnets)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv(EnvPlayerWSPort, "not-a-port")
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Device.PlayerWSPort, cfg.Device.PlayerWSPort)
}

func TestLoad_StrictYAML(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		path := writeConfig(t, "device:\n  idd: typo\n")
		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownConfigField))
	})
	t.Run("multiple documents", func(t *testing.T) {
		path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")
		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple documents")
	})
	t.Run("empty file", func(t *testing.T) {
		path := writeConfig(t, "")
		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, Defaults(), cfg)
	})
	t.Run("bad duration", func(t *testing.T) {
		path := writeConfig(t, "reconnect:\n  delay: soon\n")
		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconnect.delay")
	})
	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
		_, err := NewLoader(path).Load()
		require.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"log level", func(c *AppConfig) { c.LogLevel = "loud" }, "logLevel"},
		{"mode", func(c *AppConfig) { c.Device.Mode = "bluetooth" }, "device.mode"},
		{"identity", func(c *AppConfig) { c.Device.ID = "two words" }, "device.id"},
		{"hub url", func(c *AppConfig) { c.Device.HubURL = "ftp://hub" }, "device.hubUrl"},
		{"player port", func(c *AppConfig) { c.Device.PlayerWSPort = 70000 }, "device.playerWsPort"},
		{"delay", func(c *AppConfig) { c.Reconnect.Delay = 0 }, "reconnect.delay"},
		{"jitter", func(c *AppConfig) { c.Reconnect.Jitter = 1 }, "reconnect.jitter"},
		{"listen", func(c *AppConfig) { c.Server.Listen = "nonsense" }, "server.listen"},
		{"metrics listen clash", func(c *AppConfig) { c.Server.MetricsListen = c.Server.Listen }, "server.metricsListen"},
		{"rate limit", func(c *AppConfig) { c.Server.RateLimit = -1 }, "server.rateLimit"},
		{"exporter", func(c *AppConfig) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"sampling", func(c *AppConfig) { c.Tracing.SamplingRate = 2 }, "tracing.samplingRate"},
		{"subnet", func(c *AppConfig) { c.Discovery.Subnets = []string{"192.168.1.0/24"} }, "discovery.subnets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1, verr.Error())
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Reconnect.Delay = 0
	cfg.Reconnect.DialTimeout = 0
	var verr *ValidationError
	require.ErrorAs(t, Validate(cfg), &verr)
	assert.Len(t, verr.Fields, 2)
}
