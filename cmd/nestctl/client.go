// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/nestctl/internal/api"
	"github.com/ManuGH/nestctl/internal/platform/httpx"
)

// apiClient talks to a running daemon's control API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(opts *rootOptions) *apiClient {
	client := httpx.NewClient(opts.timeout)
	// Commands such as play --wait hold the response until the device
	// answers, so only the overall timeout applies to headers.
	if t, ok := client.Transport.(*http.Transport); ok {
		t.ResponseHeaderTimeout = 0
	}
	return &apiClient{
		base: strings.TrimRight(opts.server, "/"),
		http: client,
	}
}

// apiError is a non-2xx answer from the daemon.
type apiError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("daemon returned %d %s", e.Status, e.Body.Error)
	if e.Body.Detail != "" {
		msg += ": " + e.Body.Detail
	}
	if e.Body.RemoteCode != nil {
		msg += fmt.Sprintf(" (remote code %d)", *e.Body.RemoteCode)
	}
	return msg
}

// do sends body as JSON and decodes a JSON answer into out when both are
// non-nil. It returns the response status.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// stream opens the event stream. Only the connection is bounded by the
// command timeout; the stream itself runs until ctx ends.
func (c *apiClient) stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	client := *c.http
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	return resp.Body, nil
}
