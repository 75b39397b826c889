// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/nestctl/internal/log"
	"github.com/ManuGH/nestctl/internal/metrics"
)

// DeviceRequest is the body of PUT /api/v1/device.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceResult reports the pairing outcome.
type DeviceResult struct {
	DeviceID  string `json:"device_id"`
	Persisted bool   `json:"persisted"`
}

func (s *Server) handlePutDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.player.SetDeviceIdentity(req.DeviceID); err != nil {
		writeCallError(w, r, err)
		return
	}

	id := s.player.Identity().String()
	metrics.RecordDevicePairing("pair")
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "device.paired").
		Str(log.FieldDeviceID, id).
		Msg("device identity set")

	persisted := false
	if s.persister != nil {
		if err := s.persister.SaveDevice(id, ""); err != nil {
			logger.Warn().Err(err).Str("event", "device.persist_failed").Msg("failed to persist device identity")
		} else {
			persisted = true
		}
	}
	writeJSON(w, r, http.StatusOK, DeviceResult{DeviceID: id, Persisted: persisted})
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	s.player.Disconnect()
	metrics.RecordDevicePairing("unpair")

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().Str("event", "device.unpaired").Msg("device identity cleared")

	if s.persister != nil {
		if err := s.persister.ClearDevice(); err != nil {
			logger.Warn().Err(err).Str("event", "device.persist_failed").Msg("failed to persist unpairing")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
