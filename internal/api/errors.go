// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/remote"
	"github.com/ManuGH/nestctl/internal/remote/endpoint"
	"github.com/ManuGH/nestctl/internal/remote/rpc"
)

// Error codes returned in the "error" field of failed responses.
const (
	CodeBadRequest      = "bad_request"
	CodeNotConnected    = "device_not_connected"
	CodeCommandFailed   = "command_failed"
	CodePositionUnknown = "position_unknown"
	CodeRemoteError     = "remote_error"
	CodeTimeout         = "timeout"
	CodeInvalidDevice   = "invalid_device"
	CodeNotPersisted    = "not_persisted"
	CodeInternal        = "internal_error"
	CodeServiceClosing  = "shutting_down"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	RemoteCode *int   `json:"remote_code,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str("event", "api.encode_failed").
			Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, r, status, ErrorResponse{
		Error:     code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeCallError maps a surfaced client error onto an HTTP status.
func writeCallError(w http.ResponseWriter, r *http.Request, err error) {
	var remoteErr *rpc.RemoteError
	switch {
	case errors.As(err, &remoteErr):
		code := remoteErr.Code
		writeJSON(w, r, http.StatusBadGateway, ErrorResponse{
			Error:      CodeRemoteError,
			Detail:     remoteErr.Message,
			RemoteCode: &code,
			RequestID:  log.RequestIDFromContext(r.Context()),
		})
	case errors.Is(err, remote.ErrNotConnected),
		errors.Is(err, remote.ErrConnectionClosed),
		errors.Is(err, remote.ErrConnectionReset):
		writeError(w, r, http.StatusServiceUnavailable, CodeNotConnected, err.Error())
	case errors.Is(err, remote.ErrClientClosed):
		writeError(w, r, http.StatusServiceUnavailable, CodeServiceClosing, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, CodeTimeout, "device did not answer in time")
	case errors.Is(err, endpoint.ErrEmptyIdentity), errors.Is(err, endpoint.ErrInvalidIdentity):
		writeError(w, r, http.StatusBadRequest, CodeInvalidDevice, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
