// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded is ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(&mockChecker{name: "bad", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Checks["bad"].Status)
}

func TestManager_ServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(&mockChecker{name: "bad", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

type fakeDevice struct {
	id      endpoint.Identity
	state   remote.State
	online  bool
	knownOn bool
}

func (f fakeDevice) Identity() endpoint.Identity { return f.id }
func (f fakeDevice) State() remote.State         { return f.state }
func (f fakeDevice) DeviceOnline() (bool, bool)  { return f.online, f.knownOn }

func TestDeviceChecker(t *testing.T) {
	tests := []struct {
		name    string
		device  fakeDevice
		want    Status
		message string
	}{
		{"unpaired", fakeDevice{}, StatusDegraded, "no device paired"},
		{"connecting", fakeDevice{id: "AB12", state: remote.StateConnecting}, StatusDegraded, "connecting"},
		{"connected", fakeDevice{id: "AB12", state: remote.StateConnected}, StatusHealthy, "connected"},
		{"player offline", fakeDevice{id: "AB12", state: remote.StateConnected, knownOn: true}, StatusDegraded, "connected to hub, player offline"},
		{"player online", fakeDevice{id: "AB12", state: remote.StateConnected, online: true, knownOn: true}, StatusHealthy, "connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewDeviceChecker(tt.device).Check(context.Background())
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestCheckFunc(t *testing.T) {
	ok := CheckFunc{CheckName: "ok", Fn: func(context.Context) error { return nil }}
	bad := CheckFunc{CheckName: "bad", Fn: func(context.Context) error { return errors.New("boom") }}

	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)
	res := bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "boom", res.Error)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Listen = "127.0.0.1:0"

	require.NoError(t, PerformStartupChecks(context.Background(), cfg, ""))
	require.NoError(t, PerformStartupChecks(context.Background(), cfg, filepath.Join(t.TempDir(), "nestctl.yaml")))

	err := PerformStartupChecks(context.Background(), cfg, filepath.Join(t.TempDir(), "missing", "nestctl.yaml"))
	require.Error(t, err)
}

func TestPerformStartupChecks_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Defaults()
	cfg.Server.Listen = ln.Addr().String()
	err = PerformStartupChecks(context.Background(), cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot listen")
}
