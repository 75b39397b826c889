// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"context"
	"fmt"
	"math"
)

// Best-effort transport controls. Failures are logged and reported as false;
// they are never surfaced as errors.

// PlayPause toggles playback.
func (c *Client) PlayPause(ctx context.Context) bool {
	return c.bestEffort(ctx, MethodPlayPause, nil)
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) bool {
	return c.bestEffort(ctx, MethodStop, nil)
}

// SeekMS seeks to an absolute position in milliseconds. Negative positions
// are sent as 0.
func (c *Client) SeekMS(ctx context.Context, positionMS int64) bool {
	if positionMS < 0 {
		positionMS = 0
	}
	return c.bestEffort(ctx, MethodSeek, map[string]int64{"position_ms": positionMS})
}

// SeekBySeconds seeks relative to the last known position. The target is
// capped at the known duration. Without a known position, or for a NaN or
// infinite delta, nothing is sent and false is returned.
func (c *Client) SeekBySeconds(ctx context.Context, deltaSeconds float64) bool {
	if math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) {
		return false
	}
	snapshot, ok := c.Status()
	if !ok {
		return false
	}
	current, ok := snapshot.PositionMS()
	if !ok {
		return false
	}
	target := seekTarget(current, deltaSeconds)
	if duration, ok := snapshot.DurationMS(); ok && duration > 0 && target > duration {
		target = duration
	}
	return c.SeekMS(ctx, target)
}

// seekTarget adds deltaSeconds to currentMS, saturating at the int64 range.
func seekTarget(currentMS int64, deltaSeconds float64) int64 {
	target := float64(currentMS) + math.Round(deltaSeconds*1000)
	switch {
	case target >= math.MaxInt64:
		return math.MaxInt64
	case target <= math.MinInt64:
		return math.MinInt64
	}
	return int64(target)
}

// SetVolume sets the volume, clamped to [0,100].
func (c *Client) SetVolume(ctx context.Context, volume int) bool {
	return c.bestEffort(ctx, MethodSetVolume, map[string]int{"volume": ClampVolume(volume)})
}

// ClampVolume limits v to [0,100].
func ClampVolume(v int) int {
	return min(max(v, 0), 100)
}

func (c *Client) bestEffort(ctx context.Context, method string, params any) bool {
	if _, err := c.Call(ctx, method, params); err != nil {
		c.logger.Warn().
			Str("event", "rpc.command_failed").
			Str("method", method).
			Err(err).
			Msg("player command failed")
		return false
	}
	return true
}

// MediaRequest hands playback of a resolved stream to the player. Empty
// strings and nil pointers are sent as JSON null.
type MediaRequest struct {
	URL        string
	Link       string
	OriginName string
	Title      string
	Image      string
	MovieID    string
	Season     *int
	Episode    *int
	UserID     string
	// PositionSeconds resumes playback at this offset when set.
	PositionSeconds *float64
}

type playURLParams struct {
	URL        string  `json:"url"`
	Link       *string `json:"link"`
	OriginName *string `json:"origin_name"`
	Title      *string `json:"title"`
	Image      *string `json:"image"`
	MovieID    *string `json:"movie_id"`
	Season     *int    `json:"season"`
	Episode    *int    `json:"episode"`
	UserID     *string `json:"user_id"`
	PositionMS *int64  `json:"position_ms,omitempty"`
}

func (r MediaRequest) params() playURLParams {
	p := playURLParams{
		URL:        r.URL,
		Link:       nullable(r.Link),
		OriginName: nullable(r.OriginName),
		Title:      nullable(r.Title),
		Image:      nullable(r.Image),
		MovieID:    nullable(r.MovieID),
		Season:     r.Season,
		Episode:    r.Episode,
		UserID:     nullable(r.UserID),
	}
	if r.PositionSeconds != nil {
		ms := int64(math.Floor(*r.PositionSeconds * 1000))
		if ms < 0 {
			ms = 0
		}
		p.PositionMS = &ms
	}
	return p
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PlayMedia asks the player to load and play req. Unlike the transport
// controls its failure is returned so callers can report it.
func (c *Client) PlayMedia(ctx context.Context, req MediaRequest) error {
	if req.URL == "" {
		return fmt.Errorf("play media: stream url is required")
	}
	if _, err := c.Call(ctx, MethodPlayURL, req.params()); err != nil {
		c.logger.Error().
			Str("event", "rpc.play_failed").
			Str("method", MethodPlayURL).
			Err(err).
			Msg("player rejected media")
		return fmt.Errorf("play media: %w", err)
	}
	return nil
}
