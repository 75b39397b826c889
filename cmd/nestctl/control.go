// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/nestctl/internal/api"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the player connection and playback status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/v1/player"
			if refresh {
				path += "?refresh=true"
			}
			var st api.PlayerState
			if _, err := newAPIClient(opts).do(commandContext(cmd), http.MethodGet, path, nil, &st); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "query the player before answering")
	return cmd
}

func printState(w io.Writer, st api.PlayerState) {
	device := st.DeviceID
	if device == "" {
		device = "(none paired)"
	}
	_, _ = fmt.Fprintf(w, "device:     %s\n", device)
	_, _ = fmt.Fprintf(w, "connection: %s\n", st.State)
	if st.DeviceOnline != nil {
		presence := "offline"
		if *st.DeviceOnline {
			presence = "online"
		}
		_, _ = fmt.Fprintf(w, "player:     %s\n", presence)
	}
	if st.RefreshError != "" {
		_, _ = fmt.Fprintf(w, "refresh:    %s\n", st.RefreshError)
	}
	if st.Status == nil {
		return
	}

	snap := *st.Status
	if state, ok := snap.State(); ok {
		_, _ = fmt.Fprintf(w, "playback:   %s\n", state)
	}
	if title, ok := snap.Title(); ok && title != "" {
		_, _ = fmt.Fprintf(w, "title:      %s\n", title)
	}
	if pos, ok := snap.PositionMS(); ok {
		line := formatMS(pos)
		if dur, ok := snap.DurationMS(); ok && dur > 0 {
			line += " / " + formatMS(dur)
		}
		_, _ = fmt.Fprintf(w, "position:   %s\n", line)
	}
	if vol, ok := snap.Volume(); ok {
		_, _ = fmt.Fprintf(w, "volume:     %d\n", vol)
	}
}

// formatMS renders milliseconds as m:ss or h:mm:ss.
func formatMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream player events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			body, err := newAPIClient(opts).stream(ctx, "/api/v1/player/events")
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()

			err = copyEvents(cmd.OutOrStdout(), body)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

// copyEvents prints each server-sent event as "<name> <data>".
func copyEvents(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	name := "message"
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if _, err := fmt.Fprintf(w, "%s %s\n", name, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			name, data = "message", nil
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func newPlayPauseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play-pause",
		Short: "Toggle playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, opts, "/api/v1/player/play-pause", nil)
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, opts, "/api/v1/player/stop", nil)
		},
	}
}

func newSeekCmd(opts *rootOptions) *cobra.Command {
	var by float64
	cmd := &cobra.Command{
		Use:   "seek [position]",
		Short: "Seek to a position or by a relative offset",
		Long: `Seeks to an absolute position given as a duration (90s, 1m30s) or a
clock value (1:30, 1:02:03), or with --by relative to the current position
in seconds (negative rewinds).`,
		Example: "  nestctl seek 12:30\n  nestctl seek --by -10",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byChanged := cmd.Flags().Changed("by")
			switch {
			case len(args) == 1 && byChanged:
				return errors.New("give either a position or --by, not both")
			case len(args) == 0 && !byChanged:
				return errors.New("a position or --by is required")
			case byChanged:
				return runCommand(cmd, opts, "/api/v1/player/seek", api.SeekRequest{DeltaSeconds: &by})
			}
			pos, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			ms := pos.Milliseconds()
			return runCommand(cmd, opts, "/api/v1/player/seek", api.SeekRequest{PositionMS: &ms})
		},
	}
	cmd.Flags().Float64Var(&by, "by", 0, "relative seek in seconds")
	return cmd
}

// parsePosition accepts a Go duration or a [h:]m:ss clock value.
func parsePosition(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("position %q is negative", raw)
		}
		return d, nil
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid position %q", raw)
	}
	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("invalid position %q", raw)
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}

func newVolumeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0-100>",
		Short: "Set the player volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid volume %q", args[0])
			}
			return runCommand(cmd, opts, "/api/v1/player/volume", api.VolumeRequest{Volume: &volume})
		},
	}
}

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var (
		req      api.PlayRequest
		season   int
		episode  int
		position float64
	)
	cmd := &cobra.Command{
		Use:   "play <url>",
		Short: "Play a media URL on the player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			if cmd.Flags().Changed("season") {
				req.Season = &season
			}
			if cmd.Flags().Changed("episode") {
				req.Episode = &episode
			}
			if cmd.Flags().Changed("position") {
				req.PositionSeconds = &position
			}
			return runCommand(cmd, opts, "/api/v1/player/play", req)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Title, "title", "", "title shown on the player")
	flags.StringVar(&req.Image, "image", "", "poster image URL")
	flags.StringVar(&req.Link, "link", "", "link to the media page")
	flags.StringVar(&req.OriginName, "origin", "", "name of the media source")
	flags.StringVar(&req.MovieID, "movie-id", "", "catalog id of the movie or show")
	flags.StringVar(&req.UserID, "user-id", "", "user the playback belongs to")
	flags.IntVar(&season, "season", 0, "season number")
	flags.IntVar(&episode, "episode", 0, "episode number")
	flags.Float64Var(&position, "position", 0, "start position in seconds")
	flags.BoolVar(&req.Wait, "wait", false, "wait until the player reports playback")
	return cmd
}

// runCommand posts body to path and reports the outcome.
func runCommand(cmd *cobra.Command, opts *rootOptions, path string, body any) error {
	if body == nil {
		body = struct{}{}
	}
	var res api.CommandResult
	status, err := newAPIClient(opts).do(commandContext(cmd), http.MethodPost, path, body, &res)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return printJSON(out, res)
	}
	switch {
	case status == http.StatusAccepted:
		_, err = fmt.Fprintln(out, "ok (sent; the player has not confirmed playback yet)")
	case res.Volume != nil:
		_, err = fmt.Fprintf(out, "ok (volume %d)\n", *res.Volume)
	default:
		_, err = fmt.Fprintln(out, "ok")
	}
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
