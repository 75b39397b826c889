// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/nestctl/internal/config"
	"github.com/ManuGH/nestctl/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() ServerSettings {
	return ServerSettings{
		Listen:            "127.0.0.1:0",
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       10 * time.Second,
		ShutdownTimeout:   2 * time.Second,
	}
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

// startManager runs Start in the background and waits until it is bound.
func startManager(t *testing.T, mgr Manager) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()

	require.Eventually(t, func() bool { return mgr.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	return func() error {
		stop()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Start did not return after cancellation")
			return nil
		}
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(testSettings(), Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()})
	require.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testSettings(), Deps{Logger: log.WithComponent("test")})
	require.ErrorIs(t, err, ErrMissingAPIHandler)

	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	assert.Nil(t, mgr.Addr())
}

func TestManager_StartServeStop(t *testing.T) {
	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: okHandler("api")})
	require.NoError(t, err)

	stop := startManager(t, mgr)
	assert.Equal(t, "api", get(t, "http://"+mgr.Addr().String()+"/"))
	require.NoError(t, stop())
}

func TestManager_SeparateMetricsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	settings := testSettings()
	settings.MetricsListen = metricsAddr
	mgr, err := NewManager(settings, Deps{
		Logger:         log.WithComponent("test"),
		APIHandler:     okHandler("api"),
		MetricsHandler: okHandler("# metrics"),
	})
	require.NoError(t, err)

	stop := startManager(t, mgr)
	assert.Equal(t, "# metrics", get(t, "http://"+metricsAddr+"/metrics"))
	require.NoError(t, stop())
}

func TestManager_HooksRunInReverseOrder(t *testing.T) {
	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: okHandler("api")})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}
	mgr.RegisterShutdownHook("failing", func(context.Context) error { return errors.New("boom") })

	stop := startManager(t, mgr)
	err = stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook failing")
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_ShutdownNotStarted(t *testing.T) {
	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	require.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_StartTwice(t *testing.T) {
	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	stop := startManager(t, mgr)
	require.ErrorIs(t, mgr.Start(context.Background()), ErrManagerStarted)
	require.NoError(t, stop())
}

func TestManager_ListenConflict(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	settings := testSettings()
	settings.Listen = busy.Listener.Addr().String()
	mgr, err := NewManager(settings, Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

func TestApp_AppliesReloadedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nestctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: first\n"), 0o600))

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewConfigHolder(cfg, loader)

	mgr, err := NewManager(testSettings(), Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)

	applied := make(chan string, 4)
	app := NewApp(log.WithComponent("test"), mgr, holder, func(c config.AppConfig) {
		applied <- c.Device.ID
	})
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, func() bool { return mgr.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: second\n"), 0o600))
	require.NoError(t, holder.Reload(ctx))

	select {
	case id := <-applied:
		assert.Equal(t, "second", id)
	case <-time.After(2 * time.Second):
		t.Fatal("reloaded config not applied")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestApp_MissingManager(t *testing.T) {
	require.ErrorIs(t, NewApp(zerolog.Nop(), nil, nil, nil).Run(context.Background()), ErrMissingManager)
}
