// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/nestctl/internal/api/middleware"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlayer struct {
	mu        sync.Mutex
	id        endpoint.Identity
	state     remote.State
	online    bool
	known     bool
	snap      status.Snapshot
	hasSnap   bool
	accept    bool
	playErr   error
	playNote  bool
	calls     []string
	observers map[int]remote.Observer
	nextObs   int
}

func newFakePlayer() *fakePlayer {
	snap, _ := status.Parse([]byte(`{"state":"playing","position_ms":5000}`))
	return &fakePlayer{
		id:        "AB12CD",
		state:     remote.StateConnected,
		snap:      snap,
		hasSnap:   true,
		accept:    true,
		observers: make(map[int]remote.Observer),
	}
}

func (f *fakePlayer) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePlayer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer) Identity() endpoint.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakePlayer) State() remote.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePlayer) Connected() bool { return f.State() == remote.StateConnected }

func (f *fakePlayer) DeviceOnline() (bool, bool) { return f.online, f.known }

func (f *fakePlayer) Status() (status.Snapshot, bool) { return f.snap, f.hasSnap }

func (f *fakePlayer) RefreshStatus(context.Context) (status.Snapshot, error) {
	f.record("refresh")
	return f.snap, nil
}

func (f *fakePlayer) PlayPause(context.Context) bool { f.record("play-pause"); return f.accept }
func (f *fakePlayer) Stop(context.Context) bool      { f.record("stop"); return f.accept }

func (f *fakePlayer) SeekMS(_ context.Context, ms int64) bool {
	f.record(fmt.Sprintf("seek:%d", ms))
	return f.accept
}

func (f *fakePlayer) SeekBySeconds(_ context.Context, d float64) bool {
	f.record(fmt.Sprintf("seek-by:%g", d))
	return f.accept
}

func (f *fakePlayer) SetVolume(_ context.Context, v int) bool {
	f.record(fmt.Sprintf("volume:%d", v))
	return f.accept
}

func (f *fakePlayer) PlayMedia(_ context.Context, req remote.MediaRequest) error {
	f.record("play:" + req.URL)
	if f.playErr != nil {
		return f.playErr
	}
	if f.playNote {
		f.notify(rpc.Notification{Method: remote.NotifyPlay, Payload: json.RawMessage(`{"state":"playing"}`)})
	}
	return nil
}

func (f *fakePlayer) SetDeviceIdentity(raw string) error {
	id, err := endpoint.ParseIdentity(raw)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
	return nil
}

func (f *fakePlayer) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = ""
	f.state = remote.StateDisconnected
	f.calls = append(f.calls, "disconnect")
}

func (f *fakePlayer) Subscribe(o remote.Observer) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = o
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

func (f *fakePlayer) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakePlayer) notify(n rpc.Notification) {
	f.mu.Lock()
	obs := make([]remote.Observer, 0, len(f.observers))
	for _, o := range f.observers {
		obs = append(obs, o)
	}
	f.mu.Unlock()
	for _, o := range obs {
		o.Notification(n)
	}
}

type fakePersister struct {
	saved   []string
	cleared int
	err     error
}

func (p *fakePersister) SaveDevice(id, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, id)
	return nil
}

func (p *fakePersister) ClearDevice() error {
	p.cleared++
	return p.err
}

func newTestServer(t *testing.T, player *fakePlayer, persister DevicePersister) http.Handler {
	t.Helper()
	cfg := Config{
		Player:    player,
		Heartbeat: 50 * time.Millisecond,
		Logger:    zerolog.Nop(),
		Stack:     middleware.StackConfig{},
	}
	if persister != nil {
		cfg.Persister = persister
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresPlayer(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, errMissingPlayer)
}

func TestGetPlayer(t *testing.T) {
	p := newFakePlayer()
	p.known, p.online = true, true
	h := newTestServer(t, p, nil)

	w := do(t, h, http.MethodGet, "/api/v1/player?refresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[PlayerState](t, w)
	assert.Equal(t, "AB12CD", st.DeviceID)
	assert.Equal(t, "connected", st.State)
	assert.True(t, st.Connected)
	require.NotNil(t, st.DeviceOnline)
	assert.True(t, *st.DeviceOnline)
	require.NotNil(t, st.Status)
	state, _ := st.Status.State()
	assert.Equal(t, "playing", state)
	assert.Equal(t, []string{"refresh"}, p.Calls())
}

func TestGetPlayer_UnknownPresenceIsNull(t *testing.T) {
	p := newFakePlayer()
	p.hasSnap = false
	h := newTestServer(t, p, nil)

	w := do(t, h, http.MethodGet, "/api/v1/player", "")
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.JSONEq(t, "null", string(raw["device_online"]))
	assert.JSONEq(t, "null", string(raw["status"]))
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		accept   bool
		state    remote.State
		wantCode int
		wantCall string
	}{
		{"play-pause", "/api/v1/player/play-pause", "", true, remote.StateConnected, http.StatusOK, "play-pause"},
		{"stop", "/api/v1/player/stop", "", true, remote.StateConnected, http.StatusOK, "stop"},
		{"rejected", "/api/v1/player/stop", "", false, remote.StateConnected, http.StatusBadGateway, "stop"},
		{"not connected", "/api/v1/player/play-pause", "", true, remote.StateConnecting, http.StatusServiceUnavailable, ""},
		{"seek absolute", "/api/v1/player/seek", `{"position_ms":90000}`, true, remote.StateConnected, http.StatusOK, "seek:90000"},
		{"seek relative", "/api/v1/player/seek", `{"delta_seconds":-10}`, true, remote.StateConnected, http.StatusOK, "seek-by:-10"},
		{"seek needs one field", "/api/v1/player/seek", `{}`, true, remote.StateConnected, http.StatusBadRequest, ""},
		{"seek rejects both", "/api/v1/player/seek", `{"position_ms":1,"delta_seconds":1}`, true, remote.StateConnected, http.StatusBadRequest, ""},
		{"seek unknown field", "/api/v1/player/seek", `{"pos":1}`, true, remote.StateConnected, http.StatusBadRequest, ""},
		{"volume", "/api/v1/player/volume", `{"volume":40}`, true, remote.StateConnected, http.StatusOK, "volume:40"},
		{"volume required", "/api/v1/player/volume", `{}`, true, remote.StateConnected, http.StatusBadRequest, ""},
		{"empty body", "/api/v1/player/volume", ``, true, remote.StateConnected, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlayer()
			p.accept = tt.accept
			p.state = tt.state
			h := newTestServer(t, p, nil)

			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCall == "" {
				assert.Empty(t, p.Calls())
			} else {
				assert.Equal(t, []string{tt.wantCall}, p.Calls())
			}
			if w.Code >= 400 {
				assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
			}
		})
	}
}

func TestVolume_ReportsClampedValue(t *testing.T) {
	p := newFakePlayer()
	h := newTestServer(t, p, nil)

	w := do(t, h, http.MethodPost, "/api/v1/player/volume", `{"volume":150}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[CommandResult](t, w)
	require.NotNil(t, res.Volume)
	assert.Equal(t, 100, *res.Volume)
}

func TestPlay(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		p := newFakePlayer()
		w := do(t, newTestServer(t, p, nil), http.MethodPost, "/api/v1/player/play",
			`{"url":"https://cdn.example/stream.m3u8","title":"Film","season":1,"position_seconds":12.5}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"play:https://cdn.example/stream.m3u8"}, p.Calls())
	})
	t.Run("url required", func(t *testing.T) {
		p := newFakePlayer()
		w := do(t, newTestServer(t, p, nil), http.MethodPost, "/api/v1/player/play", `{"title":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, p.Calls())
	})
	t.Run("remote error", func(t *testing.T) {
		p := newFakePlayer()
		p.playErr = fmt.Errorf("play media: %w", &rpc.RemoteError{Code: -32602, Message: "bad url"})
		w := do(t, newTestServer(t, p, nil), http.MethodPost, "/api/v1/player/play", `{"url":"x"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		body := decode[ErrorResponse](t, w)
		assert.Equal(t, CodeRemoteError, body.Error)
		require.NotNil(t, body.RemoteCode)
		assert.Equal(t, -32602, *body.RemoteCode)
	})
	t.Run("not connected", func(t *testing.T) {
		p := newFakePlayer()
		p.playErr = fmt.Errorf("play media: %w", remote.ErrNotConnected)
		w := do(t, newTestServer(t, p, nil), http.MethodPost, "/api/v1/player/play", `{"url":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
	t.Run("wait for playback", func(t *testing.T) {
		p := newFakePlayer()
		p.playNote = true
		w := do(t, newTestServer(t, p, nil), http.MethodPost, "/api/v1/player/play", `{"url":"x","wait":true}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, p.subscribers(), "waiter must unsubscribe")
	})
}

func TestDevice(t *testing.T) {
	t.Run("pair persists", func(t *testing.T) {
		p := newFakePlayer()
		store := &fakePersister{}
		w := do(t, newTestServer(t, p, store), http.MethodPut, "/api/v1/device", `{"device_id":"  XY99  "}`)
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[DeviceResult](t, w)
		assert.Equal(t, DeviceResult{DeviceID: "XY99", Persisted: true}, res)
		assert.Equal(t, []string{"XY99"}, store.saved)
	})
	t.Run("persist failure still pairs", func(t *testing.T) {
		p := newFakePlayer()
		store := &fakePersister{err: errors.New("read-only")}
		w := do(t, newTestServer(t, p, store), http.MethodPut, "/api/v1/device", `{"device_id":"XY99"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decode[DeviceResult](t, w).Persisted)
	})
	t.Run("invalid identity", func(t *testing.T) {
		p := newFakePlayer()
		w := do(t, newTestServer(t, p, nil), http.MethodPut, "/api/v1/device", `{"device_id":"   "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidDevice, decode[ErrorResponse](t, w).Error)
	})
	t.Run("unpair", func(t *testing.T) {
		p := newFakePlayer()
		store := &fakePersister{}
		w := do(t, newTestServer(t, p, store), http.MethodDelete, "/api/v1/device", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"disconnect"}, p.Calls())
		assert.Equal(t, 1, store.cleared)
	})
}

func TestProbesAndFallbacks(t *testing.T) {
	h := newTestServer(t, newFakePlayer(), nil)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	w := do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error)

	w = do(t, h, http.MethodGet, "/api/v1/player/stop", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEvents(t *testing.T) {
	p := newFakePlayer()
	srv := httptest.NewServer(newTestServer(t, p, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/player/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, data := readEvent(t, reader)
	assert.Equal(t, EventState, name)
	assert.Contains(t, data, `"device_id":"AB12CD"`)

	require.Eventually(t, func() bool { return p.subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	p.notify(rpc.Notification{Method: remote.NotifyPause, Payload: json.RawMessage(`{"state":"paused"}`)})

	name, data = readEvent(t, reader)
	assert.Equal(t, EventNotification, name)
	assert.JSONEq(t, `{"method":"Player.OnPause","payload":{"state":"paused"}}`, data)

	cancel()
	require.Eventually(t, func() bool { return p.subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

// readEvent returns the next named event, skipping keep-alive comments.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestSeekRelative_UnknownPosition(t *testing.T) {
	noPosition, err := status.Parse([]byte(`{"state":"paused"}`))
	require.NoError(t, err)

	for _, tc := range []struct {
		name    string
		snap    status.Snapshot
		hasSnap bool
	}{
		{"no status", status.Snapshot{}, false},
		{"status without position", noPosition, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakePlayer()
			p.snap, p.hasSnap = tc.snap, tc.hasSnap
			h := newTestServer(t, p, nil)

			w := do(t, h, http.MethodPost, "/api/v1/player/seek", `{"delta_seconds":10}`)
			assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
			assert.Equal(t, CodePositionUnknown, decode[ErrorResponse](t, w).Error)
			assert.Empty(t, p.Calls())

			w = do(t, h, http.MethodPost, "/api/v1/player/seek", `{"position_ms":1000}`)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
