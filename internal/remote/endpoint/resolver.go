// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package endpoint

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Resolver maps a device identity to a websocket URL.
type Resolver interface {
	Resolve(id Identity) (string, error)
}

// Mode names a resolution scheme in configuration.
type Mode string

const (
	ModeHub    Mode = "hub"
	ModeDirect Mode = "direct"
	ModeKodi   Mode = "kodi"
)

const (
	// DefaultHubURL is the relay used when none is configured.
	DefaultHubURL = "wss://api.opencine.cloud"
	// DefaultPlayerWSPort is the websocket port of the player app.
	DefaultPlayerWSPort = 8889
)

// New returns the resolver for mode.
func New(mode Mode, hubURL string, playerPort int) (Resolver, error) {
	switch mode {
	case ModeHub, "":
		if hubURL == "" {
			hubURL = DefaultHubURL
		}
		return HubResolver{Base: hubURL}, nil
	case ModeDirect:
		return DirectResolver{Port: playerPort}, nil
	case ModeKodi:
		return KodiResolver{}, nil
	default:
		return nil, fmt.Errorf("unknown device mode %q (supported: hub, direct, kodi)", mode)
	}
}

// HubResolver addresses the device through the relay hub by device code.
type HubResolver struct {
	Base string
}

// Resolve returns <base>/ws/control/<escaped id>.
func (r HubResolver) Resolve(id Identity) (string, error) {
	if id.IsZero() {
		return "", ErrEmptyIdentity
	}
	base := strings.TrimRight(r.Base, "/")
	if base == "" {
		base = DefaultHubURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return "", fmt.Errorf("invalid hub url %q", r.Base)
	}
	return base + "/ws/control/" + url.PathEscape(id.String()), nil
}

// DirectResolver dials the player on the local network.
type DirectResolver struct {
	Port int
}

// Resolve accepts host, host:port or http(s)://host[:port]. The websocket
// scheme follows the http scheme and the port is always the player port.
func (r DirectResolver) Resolve(id Identity) (string, error) {
	if id.IsZero() {
		return "", ErrEmptyIdentity
	}
	port := r.Port
	if port <= 0 {
		port = DefaultPlayerWSPort
	}

	scheme := "ws"
	raw := id.String()
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, raw)
		}
		switch u.Scheme {
		case "https", "wss":
			scheme = "wss"
		case "http", "ws":
		default:
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidIdentity, u.Scheme)
		}
		raw = u.Hostname()
	} else if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	if raw == "" || strings.ContainsAny(raw, "/?#@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	return scheme + "://" + net.JoinHostPort(raw, strconv.Itoa(port)), nil
}

var (
	wsSchemeRE   = regexp.MustCompile(`(?i)^wss?://`)
	jsonrpcTailR = regexp.MustCompile(`(?i)jsonrpc/?$`)
)

// KodiResolver normalizes a Kodi-style address: ws:// is added when no
// websocket scheme is given and /jsonrpc is appended when missing.
type KodiResolver struct{}

// Resolve normalizes id into a Kodi websocket URL.
func (KodiResolver) Resolve(id Identity) (string, error) {
	if id.IsZero() {
		return "", ErrEmptyIdentity
	}
	u := id.String()
	if !wsSchemeRE.MatchString(u) {
		u = "ws://" + u
	}
	if !jsonrpcTailR.MatchString(u) {
		u = strings.TrimRight(u, "/") + "/jsonrpc"
	}
	return u, nil
}
