// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/nestctl/internal/config"
)

// EnvConfigPath selects the config file when --config is not given.
const EnvConfigPath = "NESTCTL_CONFIG"

// DefaultConfigPath is <user config dir>/nestctl/config.yaml. The file may
// not exist yet.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "nestctl", "config.yaml"), nil
}

// ResolveConfigPath picks the file to load. An explicit path (flag, then
// NESTCTL_CONFIG) must exist. Otherwise the default path is used when it
// exists, and an empty path means defaults plus environment only.
func ResolveConfigPath(explicit string) (path string, explicitMode bool, err error) {
	if explicit == "" {
		explicit = strings.TrimSpace(config.ParseString(EnvConfigPath, ""))
	}
	if explicit != "" {
		absPath, err := filepath.Abs(explicit)
		if err != nil {
			return "", true, fmt.Errorf("resolve absolute path for config %q: %w", explicit, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", true, fmt.Errorf("config file not found %q: %w", absPath, err)
		}
		if info.IsDir() {
			return "", true, fmt.Errorf("config path %q is a directory", absPath)
		}
		return absPath, true, nil
	}

	autoPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, nil
	}
	if info, err := os.Stat(autoPath); err == nil && !info.IsDir() {
		return autoPath, false, nil
	}
	return "", false, nil
}

// PersistPath is where pairing changes are written: the explicit path when
// given, else the default path even if the file does not exist yet.
func PersistPath(explicit string) (string, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(config.ParseString(EnvConfigPath, ""))
	}
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	return DefaultConfigPath()
}
