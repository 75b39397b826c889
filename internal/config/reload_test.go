// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newHolder(t *testing.T, path string) *ConfigHolder {
	t.Helper()
	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, loader)
	h.debounce = 20 * time.Millisecond
	return h
}

func TestReload_NotifiesListeners(t *testing.T) {
	path := writeConfig(t, "device:\n  id: first\n")
	h := newHolder(t, path)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: second\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "second", h.Get().Device.ID)
	select {
	case cfg := <-ch:
		assert.Equal(t, "second", cfg.Device.ID)
	default:
		t.Fatal("listener not notified")
	}
}

func TestReload_InvalidKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "device:\n  id: first\n")
	h := newHolder(t, path)

	require.NoError(t, os.WriteFile(path, []byte("device:\n  mode: carrier-pigeon\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "first", h.Get().Device.ID)
}

func TestReload_FullListenerDoesNotBlock(t *testing.T) {
	path := writeConfig(t, "")
	h := newHolder(t, path)
	ch := make(chan AppConfig)
	h.RegisterListener(ch)
	require.NoError(t, h.Reload(context.Background()))
}

func TestWatcher_ReloadsOnWriteAndAtomicSave(t *testing.T) {
	path := writeConfig(t, "device:\n  id: first\n")
	h := newHolder(t, path)

	ch := make(chan AppConfig, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: second\n"), 0o600))
	waitFor(t, ch, "second")

	require.NoError(t, NewManager(h.loader).SaveDevice("third", ""))
	waitFor(t, ch, "third")
}

func TestWatcher_NoFileIsNoop(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader(""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}

func TestWatcher_StopAfterCancel(t *testing.T) {
	path := writeConfig(t, "")
	h := newHolder(t, path)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))
	cancel()
	h.Stop()
}

func waitFor(t *testing.T, ch <-chan AppConfig, id string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-ch:
			if cfg.Device.ID == id {
				return
			}
		case <-deadline:
			t.Fatalf("no reload with device id %q", id)
		}
	}
}
