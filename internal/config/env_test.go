// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	const key = "NESTCTL_TEST_VALUE"

	t.Run("unset uses default", func(t *testing.T) {
		assert.Equal(t, "d", ParseString(key, "d"))
		assert.Equal(t, 7, ParseInt(key, 7))
		assert.True(t, ParseBool(key, true))
		assert.Equal(t, time.Second, ParseDuration(key, time.Second))
		assert.InDelta(t, 0.5, ParseFloat(key, 0.5), 1e-9)
	})

	t.Run("blank uses default", func(t *testing.T) {
		t.Setenv(key, "   ")
		assert.Equal(t, "d", ParseString(key, "d"))
		assert.Equal(t, 7, ParseInt(key, 7))
	})

	t.Run("values", func(t *testing.T) {
		t.Setenv(key, "42")
		assert.Equal(t, "42", ParseString(key, "d"))
		assert.Equal(t, 42, ParseInt(key, 7))
		assert.InDelta(t, 42.0, ParseFloat(key, 0), 1e-9)
	})

	t.Run("bool forms", func(t *testing.T) {
		for raw, want := range map[string]bool{"true": true, "1": true, "on": true, "YES": true, "false": false, "0": false, "off": false, "no": false} {
			t.Setenv(key, raw)
			assert.Equal(t, want, ParseBool(key, !want), raw)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(key, "maybe")
		assert.Equal(t, 7, ParseInt(key, 7))
		assert.False(t, ParseBool(key, false))
		assert.Equal(t, time.Second, ParseDuration(key, time.Second))
		assert.InDelta(t, 0.5, ParseFloat(key, 0.5), 1e-9)
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv(key, "1500ms")
		assert.Equal(t, 1500*time.Millisecond, ParseDuration(key, 0))
	})
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b ,"))
	assert.Nil(t, splitCSV(""))
}
