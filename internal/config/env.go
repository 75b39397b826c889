// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/rs/zerolog"
)

const (
	sourceEnv     = "environment"
	sourceDefault = "default"
)

func envLogger() zerolog.Logger {
	return log.WithComponent("config")
}

// lookup returns the trimmed value of key and whether it is set and non-empty.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ParseString reads a string from the environment or returns defaultValue.
// The chosen source is logged at debug level.
func ParseString(key, defaultValue string) string {
	logger := envLogger()
	if v, ok := lookup(key); ok {
		ev := logger.Debug().Str("key", key).Str("source", sourceEnv)
		if isSensitive(key) {
			ev = ev.Bool("sensitive", true)
		} else {
			ev = ev.Str("value", v)
		}
		ev.Msg("using environment variable")
		return v
	}
	logger.Debug().Str("key", key).Str("default", defaultValue).Str("source", sourceDefault).Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer, falling back to defaultValue on absence or parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := envLogger()
	v, ok := lookup(key)
	if !ok {
		logger.Debug().Str("key", key).Int("default", defaultValue).Str("source", sourceDefault).Msg("using default value")
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", sourceEnv).Msg("using environment variable")
	return i
}

// ParseBool accepts the forms understood by strconv.ParseBool plus yes/no and on/off.
func ParseBool(key string, defaultValue bool) bool {
	logger := envLogger()
	v, ok := lookup(key)
	if !ok {
		logger.Debug().Str("key", key).Bool("default", defaultValue).Str("source", sourceDefault).Msg("using default value")
		return defaultValue
	}
	var b bool
	switch strings.ToLower(v) {
	case "yes", "on":
		b = true
	case "no", "off":
		b = false
	default:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Str("value", v).Bool("default", defaultValue).
				Msg("invalid boolean in environment variable, using default")
			return defaultValue
		}
		b = parsed
	}
	logger.Debug().Str("key", key).Bool("value", b).Str("source", sourceEnv).Msg("using environment variable")
	return b
}

// ParseDuration reads a time.Duration such as "3s" or "500ms".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := envLogger()
	v, ok := lookup(key)
	if !ok {
		logger.Debug().Str("key", key).Dur("default", defaultValue).Str("source", sourceDefault).Msg("using default value")
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", sourceEnv).Msg("using environment variable")
	return d
}

func ParseFloat(key string, defaultValue float64) float64 {
	logger := envLogger()
	v, ok := lookup(key)
	if !ok {
		logger.Debug().Str("key", key).Float64("default", defaultValue).Str("source", sourceDefault).Msg("using default value")
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", v).Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Float64("value", f).Str("source", sourceEnv).Msg("using environment variable")
	return f
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}
