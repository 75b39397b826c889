// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/nestctl/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	body   []byte
}

// fakeDaemon answers control API requests with canned responses.
type fakeDaemon struct {
	mu        sync.Mutex
	requests  []recorded
	responses map[string]func(w http.ResponseWriter)
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, string) {
	t.Helper()
	d := &fakeDaemon{responses: make(map[string]func(w http.ResponseWriter))}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return d, srv.URL
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	d.mu.Lock()
	d.requests = append(d.requests, recorded{method: r.Method, path: r.URL.RequestURI(), body: body})
	respond := d.responses[r.Method+" "+r.URL.Path]
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if respond == nil {
		_, _ = w.Write([]byte(`{"ok":true}`))
		return
	}
	respond(w)
}

func (d *fakeDaemon) respond(route string, status int, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[route] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (d *fakeDaemon) last(t *testing.T) recorded {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.requests)
	return d.requests[len(d.requests)-1]
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "90s", want: 90 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "1:30", want: 90 * time.Second},
		{in: "1:02:03", want: time.Hour + 2*time.Minute + 3*time.Second},
		{in: "0:00", want: 0},
		{in: "-5s", wantErr: true},
		{in: "1:75", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "90", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMS(t *testing.T) {
	assert.Equal(t, "0:00", formatMS(-1))
	assert.Equal(t, "1:05", formatMS(65_999))
	assert.Equal(t, "1:00:00", formatMS(3_600_000))
}

func TestCopyEvents(t *testing.T) {
	stream := "event: state\ndata: {\"state\":\"connected\"}\n\n" +
		": keep-alive\n\n" +
		"event: status\ndata: {\"volume\":40}\n\n" +
		"data: plain\n\n"

	var out bytes.Buffer
	require.NoError(t, copyEvents(&out, strings.NewReader(stream)))
	assert.Equal(t, "state {\"state\":\"connected\"}\nstatus {\"volume\":40}\nmessage plain\n", out.String())
}

func TestCommands_SendRequests(t *testing.T) {
	d, url := newFakeDaemon(t)

	out, err := execute(t, "--server", url, "play-pause")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	assert.Equal(t, "POST", d.last(t).method)
	assert.Equal(t, "/api/v1/player/play-pause", d.last(t).path)

	_, err = execute(t, "--server", url, "stop")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/player/stop", d.last(t).path)

	d.respond("POST /api/v1/player/volume", http.StatusOK, `{"ok":true,"volume":100}`)
	out, err = execute(t, "--server", url, "volume", "150")
	require.NoError(t, err)
	assert.Equal(t, "ok (volume 100)\n", out)
	assert.JSONEq(t, `{"volume":150}`, string(d.last(t).body))

	_, err = execute(t, "--server", url, "seek", "1:30")
	require.NoError(t, err)
	var seek api.SeekRequest
	require.NoError(t, json.Unmarshal(d.last(t).body, &seek))
	require.NotNil(t, seek.PositionMS)
	assert.Equal(t, int64(90_000), *seek.PositionMS)
	assert.Nil(t, seek.DeltaSeconds)

	_, err = execute(t, "--server", url, "seek", "--by", "-10")
	require.NoError(t, err)
	seek = api.SeekRequest{}
	require.NoError(t, json.Unmarshal(d.last(t).body, &seek))
	require.NotNil(t, seek.DeltaSeconds)
	assert.Equal(t, -10.0, *seek.DeltaSeconds)
	assert.Nil(t, seek.PositionMS)
}

func TestSeek_RequiresExactlyOneTarget(t *testing.T) {
	_, url := newFakeDaemon(t)

	_, err := execute(t, "--server", url, "seek")
	assert.ErrorContains(t, err, "required")

	_, err = execute(t, "--server", url, "seek", "1:00", "--by", "5")
	assert.ErrorContains(t, err, "not both")
}

func TestPlay_SendsMetadata(t *testing.T) {
	d, url := newFakeDaemon(t)
	d.respond("POST /api/v1/player/play", http.StatusAccepted, `{"ok":true}`)

	out, err := execute(t, "--server", url, "play", "http://media/a.mkv",
		"--title", "Pilot", "--season", "1", "--episode", "2", "--position", "12.5", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "not confirmed")

	var req api.PlayRequest
	require.NoError(t, json.Unmarshal(d.last(t).body, &req))
	assert.Equal(t, "http://media/a.mkv", req.URL)
	assert.Equal(t, "Pilot", req.Title)
	require.NotNil(t, req.Season)
	assert.Equal(t, 1, *req.Season)
	require.NotNil(t, req.Episode)
	assert.Equal(t, 2, *req.Episode)
	require.NotNil(t, req.PositionSeconds)
	assert.Equal(t, 12.5, *req.PositionSeconds)
	assert.True(t, req.Wait)
}

func TestCommand_ReportsAPIError(t *testing.T) {
	d, url := newFakeDaemon(t)
	d.respond("POST /api/v1/player/stop", http.StatusServiceUnavailable,
		`{"error":"device_not_connected","detail":"device is not connected"}`)

	_, err := execute(t, "--server", url, "stop")
	require.Error(t, err)
	assert.Equal(t, "daemon returned 503 device_not_connected: device is not connected", err.Error())

	d.respond("POST /api/v1/player/play-pause", http.StatusBadGateway,
		`{"error":"remote_error","detail":"boom","remote_code":-32000}`)
	_, err = execute(t, "--server", url, "play-pause")
	assert.ErrorContains(t, err, "(remote code -32000)")
}

func TestStatus_PrintsSummary(t *testing.T) {
	d, url := newFakeDaemon(t)
	d.respond("GET /api/v1/player", http.StatusOK, `{
		"device_id":"AB12CD","state":"connected","connected":true,"device_online":true,
		"status":{"state":"playing","title":"Pilot","position_ms":83000,"duration_ms":2700000,"volume":40}
	}`)

	out, err := execute(t, "--server", url, "status", "--refresh")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/player?refresh=true", d.last(t).path)
	assert.Contains(t, out, "device:     AB12CD\n")
	assert.Contains(t, out, "player:     online\n")
	assert.Contains(t, out, "playback:   playing\n")
	assert.Contains(t, out, "title:      Pilot\n")
	assert.Contains(t, out, "position:   1:23 / 45:00\n")
	assert.Contains(t, out, "volume:     40\n")

	out, err = execute(t, "--server", url, "--json", "status")
	require.NoError(t, err)
	var st api.PlayerState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "AB12CD", st.DeviceID)
}

func TestPairAndUnpair_EditConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nestctl", "config.yaml")

	out, err := execute(t, "--config", path, "pair", "192.168.1.20", "--mode", "direct")
	require.NoError(t, err)
	assert.Contains(t, out, "paired 192.168.1.20")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: 192.168.1.20")
	assert.Contains(t, string(data), "mode: direct")

	_, err = execute(t, "--config", path, "unpair")
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "192.168.1.20")
	assert.Contains(t, string(data), "mode: direct")
}

func TestPair_RejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "--config", path, "pair", "   ")
	assert.Error(t, err)

	_, err = execute(t, "--config", path, "pair", "AB12CD", "--mode", "bluetooth")
	assert.ErrorContains(t, err, "unknown mode")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPair_ViaDaemon(t *testing.T) {
	d, url := newFakeDaemon(t)
	d.respond("PUT /api/v1/device", http.StatusOK, `{"device_id":"AB12CD","persisted":true}`)

	out, err := execute(t, "--server", url, "pair", "AB12CD", "--via-daemon")
	require.NoError(t, err)
	assert.Equal(t, "paired AB12CD\n", out)
	assert.JSONEq(t, `{"device_id":"AB12CD"}`, string(d.last(t).body))

	d.respond("DELETE /api/v1/device", http.StatusNoContent, "")
	out, err = execute(t, "--server", url, "unpair", "--via-daemon")
	require.NoError(t, err)
	assert.Equal(t, "unpaired\n", out)
	assert.Equal(t, http.MethodDelete, d.last(t).method)
}
