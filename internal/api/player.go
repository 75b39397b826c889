// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
)

const maxBodyBytes = 64 << 10

// PlayerState is the body of GET /api/v1/player.
type PlayerState struct {
	DeviceID     string           `json:"device_id"`
	State        string           `json:"state"`
	Connected    bool             `json:"connected"`
	DeviceOnline *bool            `json:"device_online"`
	Status       *status.Snapshot `json:"status"`
	RefreshError string           `json:"refresh_error,omitempty"`
}

// CommandResult is the body of a successful command.
type CommandResult struct {
	OK     bool `json:"ok"`
	Volume *int `json:"volume,omitempty"`
}

// SeekRequest sets exactly one of PositionMS or DeltaSeconds.
type SeekRequest struct {
	PositionMS   *int64   `json:"position_ms"`
	DeltaSeconds *float64 `json:"delta_seconds"`
}

type VolumeRequest struct {
	Volume *int `json:"volume"`
}

// PlayRequest is the body of POST /api/v1/player/play.
type PlayRequest struct {
	URL             string   `json:"url"`
	Link            string   `json:"link"`
	OriginName      string   `json:"origin_name"`
	Title           string   `json:"title"`
	Image           string   `json:"image"`
	MovieID         string   `json:"movie_id"`
	Season          *int     `json:"season"`
	Episode         *int     `json:"episode"`
	UserID          string   `json:"user_id"`
	PositionSeconds *float64 `json:"position_seconds"`
	// Wait blocks the response until the player reports playback.
	Wait bool `json:"wait"`
}

func (p PlayRequest) media() remote.MediaRequest {
	return remote.MediaRequest{
		URL:             p.URL,
		Link:            p.Link,
		OriginName:      p.OriginName,
		Title:           p.Title,
		Image:           p.Image,
		MovieID:         p.MovieID,
		Season:          p.Season,
		Episode:         p.Episode,
		UserID:          p.UserID,
		PositionSeconds: p.PositionSeconds,
	}
}

func (s *Server) currentState() PlayerState {
	st := PlayerState{
		DeviceID:  s.player.Identity().String(),
		State:     s.player.State().String(),
		Connected: s.player.Connected(),
	}
	if online, known := s.player.DeviceOnline(); known {
		st.DeviceOnline = &online
	}
	if snap, ok := s.player.Status(); ok {
		st.Status = &snap
	}
	return st
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	var refreshErr error
	if r.URL.Query().Get("refresh") == "true" && s.player.Connected() {
		ctx, cancel := s.commandContext(r)
		_, refreshErr = s.player.RefreshStatus(ctx)
		cancel()
	}

	st := s.currentState()
	if refreshErr != nil {
		st.RefreshError = refreshErr.Error()
	}
	writeJSON(w, r, http.StatusOK, st)
}

// command runs a best-effort transport control and maps its outcome.
func (s *Server) command(w http.ResponseWriter, r *http.Request, run func() bool) {
	if !s.player.Connected() {
		writeError(w, r, http.StatusServiceUnavailable, CodeNotConnected, "device is not connected")
		return
	}
	if !run() {
		writeError(w, r, http.StatusBadGateway, CodeCommandFailed, "device did not accept the command")
		return
	}
	writeJSON(w, r, http.StatusOK, CommandResult{OK: true})
}

func (s *Server) handlePlayPause(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.commandContext(r)
	defer cancel()
	s.command(w, r, func() bool { return s.player.PlayPause(ctx) })
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.commandContext(r)
	defer cancel()
	s.command(w, r, func() bool { return s.player.Stop(ctx) })
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if (req.PositionMS == nil) == (req.DeltaSeconds == nil) {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "set exactly one of position_ms or delta_seconds")
		return
	}

	ctx, cancel := s.commandContext(r)
	defer cancel()
	if req.PositionMS != nil {
		s.command(w, r, func() bool { return s.player.SeekMS(ctx, *req.PositionMS) })
		return
	}
	if s.player.Connected() && !s.positionKnown() {
		writeError(w, r, http.StatusConflict, CodePositionUnknown, "playback position unknown")
		return
	}
	s.command(w, r, func() bool { return s.player.SeekBySeconds(ctx, *req.DeltaSeconds) })
}

func (s *Server) positionKnown() bool {
	snap, ok := s.player.Status()
	if !ok {
		return false
	}
	_, ok = snap.PositionMS()
	return ok
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume == nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "volume is required")
		return
	}
	if !s.player.Connected() {
		writeError(w, r, http.StatusServiceUnavailable, CodeNotConnected, "device is not connected")
		return
	}

	ctx, cancel := s.commandContext(r)
	defer cancel()
	applied := remote.ClampVolume(*req.Volume)
	if !s.player.SetVolume(ctx, *req.Volume) {
		writeError(w, r, http.StatusBadGateway, CodeCommandFailed, "device did not accept the command")
		return
	}
	writeJSON(w, r, http.StatusOK, CommandResult{OK: true, Volume: &applied})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "url is required")
		return
	}

	ctx, cancel := s.commandContext(r)
	defer cancel()

	var wait func(context.Context, time.Duration) (rpc.Notification, error)
	if req.Wait {
		wait = remote.Expect(s.player, remote.NotifyPlay)
	}

	if err := s.player.PlayMedia(ctx, req.media()); err != nil {
		if wait != nil {
			cancel()
			_, _ = wait(ctx, 0)
		}
		writeCallError(w, r, err)
		return
	}

	if wait != nil {
		if _, err := wait(ctx, remote.DefaultPlaybackWait); err != nil {
			if errors.Is(err, remote.ErrWaitTimeout) {
				writeJSON(w, r, http.StatusAccepted, CommandResult{OK: true})
				return
			}
			writeCallError(w, r, err)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, CommandResult{OK: true})
}

// decodeBody strictly decodes a JSON body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		detail := err.Error()
		if errors.Is(err, io.EOF) {
			detail = "request body is empty"
		}
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, detail)
		return false
	}
	return true
}
