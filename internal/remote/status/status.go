// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package status holds the coalesced playback snapshot reported by a player.
//
// A Snapshot is immutable. Merge returns a new snapshot in which every key
// present in the payload overrides the previous value and every other key is
// kept, so applying the same payload twice is the same as applying it once.
package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys reported by the player.
const (
	KeyState      = "state"
	KeyPositionMS = "position_ms"
	KeyDurationMS = "duration_ms"
	KeyVolume     = "volume"
	KeyTitle      = "title"
	KeyLink       = "link"
	KeySeason     = "season"
	KeyEpisode    = "episode"
)

// ErrNotObject is returned when a payload is not a JSON object.
var ErrNotObject = errors.New("status: payload is not a JSON object")

// Snapshot is the latest known playback state. The zero value is empty.
type Snapshot struct {
	fields map[string]json.RawMessage
}

// Parse builds a snapshot from a JSON object.
func Parse(payload []byte) (Snapshot, error) {
	return Snapshot{}.Merge(payload)
}

// Merge overlays the keys of payload onto s.
func (s Snapshot) Merge(payload []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return s, ErrNotObject
	}
	var incoming map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &incoming); err != nil {
		return s, fmt.Errorf("%w: %v", ErrNotObject, err)
	}

	merged := make(map[string]json.RawMessage, len(s.fields)+len(incoming))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = append(json.RawMessage(nil), v...)
	}
	return Snapshot{fields: merged}, nil
}

// Len returns the number of known keys.
func (s Snapshot) Len() int { return len(s.fields) }

// Raw returns a copy of the underlying key/value pairs.
func (s Snapshot) Raw() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.fields))
	for k, v := range s.fields {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Lookup returns the raw value for key.
func (s Snapshot) Lookup(key string) (json.RawMessage, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Equal reports whether both snapshots hold the same keys with byte-equal values.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.fields) != len(other.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := other.fields[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the snapshot as an object with sorted keys.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.fields)
}

// UnmarshalJSON replaces the snapshot with the given object.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PositionMS returns the playback position in milliseconds.
func (s Snapshot) PositionMS() (int64, bool) { return s.number(KeyPositionMS) }

// DurationMS returns the media duration in milliseconds.
func (s Snapshot) DurationMS() (int64, bool) { return s.number(KeyDurationMS) }

// Volume returns the device volume (0-100).
func (s Snapshot) Volume() (int64, bool) { return s.number(KeyVolume) }

// Season returns the season of the loaded episode.
func (s Snapshot) Season() (int64, bool) { return s.number(KeySeason) }

// Episode returns the episode number of the loaded episode.
func (s Snapshot) Episode() (int64, bool) { return s.number(KeyEpisode) }

// State returns the reported playback state ("playing", "paused", "stopped").
func (s Snapshot) State() (string, bool) { return s.str(KeyState) }

// Title returns the title of the loaded media.
func (s Snapshot) Title() (string, bool) { return s.str(KeyTitle) }

// Link returns the catalog link of the loaded media.
func (s Snapshot) Link() (string, bool) { return s.str(KeyLink) }

// number accepts JSON numbers only; fractional values are truncated.
func (s Snapshot) number(key string) (int64, bool) {
	raw, ok := s.fields[key]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func (s Snapshot) str(key string) (string, bool) {
	raw, ok := s.fields[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}
