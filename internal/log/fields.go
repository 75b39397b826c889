// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldDeviceID      = "device_id"
	FieldPeerID        = "peer_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// RPC fields
	FieldRPCID  = "rpc_id"
	FieldMethod = "method"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldEndpoint = "endpoint"
	FieldAddr     = "addr"
)
