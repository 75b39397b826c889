// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package endpoint turns a device identity into the websocket URL the
// control client dials.
package endpoint

import (
	"errors"
	"strings"
	"unicode"
)

const maxIdentityLen = 256

var (
	// ErrEmptyIdentity is returned when no device identity is configured.
	ErrEmptyIdentity = errors.New("endpoint: device identity is empty")
	// ErrInvalidIdentity is returned for identities that cannot name a device.
	ErrInvalidIdentity = errors.New("endpoint: device identity is invalid")
)

// Identity is a trimmed, validated device identifier: a pairing code, a host,
// a host:port pair or a player base URL.
type Identity string

// ParseIdentity trims raw and validates it.
func ParseIdentity(raw string) (Identity, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrEmptyIdentity
	}
	if len(id) > maxIdentityLen {
		return "", ErrInvalidIdentity
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidIdentity
		}
	}
	return Identity(id), nil
}

func (i Identity) String() string { return string(i) }

// IsZero reports whether no identity is set.
func (i Identity) IsZero() bool { return i == "" }
