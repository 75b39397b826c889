// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoConfigFile is returned when persistence is requested without a file.
var ErrNoConfigFile = errors.New("no config file configured")

// Manager persists pairing changes to the YAML config file.
type Manager struct {
	loader *Loader
}

// NewManager returns a manager writing to the loader's file.
func NewManager(loader *Loader) *Manager {
	return &Manager{loader: loader}
}

// SaveDevice stores the device identity (and mode, when non-empty) in the
// config file, keeping every other setting. The write is atomic, so a
// running watcher never observes a partial file.
func (m *Manager) SaveDevice(id, mode string) error {
	return m.update(func(fc *FileConfig) {
		fc.Device.ID = id
		if mode != "" {
			fc.Device.Mode = mode
		}
	})
}

// ClearDevice removes the stored device identity.
func (m *Manager) ClearDevice() error {
	return m.update(func(fc *FileConfig) {
		fc.Device.ID = ""
	})
}

func (m *Manager) update(mutate func(*FileConfig)) error {
	path := m.loader.Path()
	if path == "" {
		return ErrNoConfigFile
	}

	fc, err := m.loader.loadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fc = &FileConfig{}
	case err != nil:
		return err
	}

	mutate(fc)

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
