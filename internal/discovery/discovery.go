// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package discovery finds players on the local network by probing their
// settings endpoint across /24 subnets.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/nestctl/internal/metrics"
	"github.com/ManuGH/nestctl/internal/platform/httpx"
	"github.com/ManuGH/nestctl/internal/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultPort is the HTTP port of the player settings endpoint.
	DefaultPort = 8888
	// DefaultProbeTimeout bounds one probe.
	DefaultProbeTimeout = 600 * time.Millisecond
	// DefaultBatchSize is the number of hosts probed concurrently.
	DefaultBatchSize = 8

	settingsPath     = "/setting"
	maxSettingsBytes = 64 << 10
)

// FallbackSubnets are scanned when no private IPv4 interface is found.
var FallbackSubnets = []string{"192.168.0", "192.168.1", "10.0.0", "10.0.1"}

// ErrNotFound is returned when a scan completes without a hit.
var ErrNotFound = errors.New("discovery: no player found")

// Result describes a player that answered a probe.
type Result struct {
	Host     string          `json:"host"`
	BaseURL  string          `json:"base_url"`
	Settings json.RawMessage `json:"settings"`
}

// Config tunes a Scanner.
type Config struct {
	Port         int
	ProbeTimeout time.Duration
	BatchSize    int
	// Subnets are /24 prefixes such as "192.168.1". Empty means local
	// interfaces, then FallbackSubnets.
	Subnets []string
	// ProbesPerSecond paces probes; zero disables pacing.
	ProbesPerSecond float64
	Client          *http.Client
	Logger          zerolog.Logger
}

// Scanner probes hosts for a player.
type Scanner struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New returns a Scanner with defaults applied.
func New(cfg Config) *Scanner {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	client := cfg.Client
	if client == nil {
		client = httpx.NewTracedClient(cfg.ProbeTimeout, "discovery.probe")
	}
	limit := rate.Inf
	if cfg.ProbesPerSecond > 0 {
		limit = rate.Limit(cfg.ProbesPerSecond)
	}
	return &Scanner{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, cfg.BatchSize),
		logger:  cfg.Logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover scans the configured or detected subnets and returns the first
// player found.
func (s *Scanner) Discover(ctx context.Context) (Result, error) {
	subnets := s.cfg.Subnets
	if len(subnets) == 0 {
		subnets = LocalSubnets()
	}

	ctx, span := telemetry.Tracer("nestctl.discovery").Start(ctx, "nestctl.discovery.scan")
	defer span.End()

	var hosts []string
	for _, subnet := range subnets {
		candidates := Candidates(subnet)
		span.SetAttributes(telemetry.DiscoveryAttributes(subnet, len(candidates))...)
		hosts = append(hosts, candidates...)
	}

	s.logger.Info().
		Str("event", "discovery.started").
		Strs("subnets", subnets).
		Int("hosts", len(hosts)).
		Msg("scanning for players")

	res, err := s.Scan(ctx, hosts)
	switch {
	case err == nil:
		metrics.RecordDiscoveryScan("found")
		s.logger.Info().
			Str("event", "discovery.found").
			Str("base_url", res.BaseURL).
			Msg("player found")
	case errors.Is(err, ErrNotFound):
		metrics.RecordDiscoveryScan("not_found")
	default:
		metrics.RecordDiscoveryScan("canceled")
	}
	return res, err
}

// Scan probes hosts in batches. The first batch containing a hit ends the
// scan; within it the earliest host in hosts wins.
func (s *Scanner) Scan(ctx context.Context, hosts []string) (Result, error) {
	for start := 0; start < len(hosts); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := min(start+s.cfg.BatchSize, len(hosts))
		batch := hosts[start:end]
		hits := make([]*Result, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, host := range batch {
			g.Go(func() error {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
				if res, ok := s.Probe(gctx, host); ok {
					hits[i] = &res
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
		for _, hit := range hits {
			if hit != nil {
				return *hit, nil
			}
		}
	}
	return Result{}, ErrNotFound
}

// Probe asks host for its player settings. Any failure counts as a miss.
func (s *Scanner) Probe(ctx context.Context, host string) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	base := "http://" + net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+settingsPath, nil)
	if err != nil {
		metrics.RecordDiscoveryProbe(false)
		return Result{}, false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.RecordDiscoveryProbe(false)
		return Result{}, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordDiscoveryProbe(false)
		return Result{}, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSettingsBytes))
	if err != nil || !json.Valid(body) {
		metrics.RecordDiscoveryProbe(false)
		return Result{}, false
	}

	metrics.RecordDiscoveryProbe(true)
	s.logger.Debug().
		Str("event", "discovery.probe_hit").
		Str("addr", host).
		Msg("player answered probe")
	return Result{Host: host, BaseURL: base, Settings: body}, true
}

// Candidates lists hosts .2 through .254 of a /24 prefix.
func Candidates(subnet string) []string {
	hosts := make([]string, 0, 253)
	for i := 2; i <= 254; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", subnet, i))
	}
	return hosts
}

// LocalSubnets returns the /24 prefixes of private IPv4 interface addresses,
// or FallbackSubnets when there are none.
func LocalSubnets() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return append([]string(nil), FallbackSubnets...)
	}
	if subnets := subnetsOf(addrs); len(subnets) > 0 {
		return subnets
	}
	return append([]string(nil), FallbackSubnets...)
}

func subnetsOf(addrs []net.Addr) []string {
	seen := make(map[string]bool)
	var out []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || !ip.IsPrivate() {
			continue
		}
		prefix := fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2])
		if !seen[prefix] {
			seen[prefix] = true
			out = append(out, prefix)
		}
	}
	return out
}
