// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// RPC attributes
	RPCSystemKey = "rpc.system"
	RPCMethodKey = "rpc.method"
	RPCIDKey     = "rpc.jsonrpc.request_id"
	RPCCodeKey   = "rpc.jsonrpc.error_code"

	// Device attributes
	DeviceIDKey   = "device.id"
	DeviceModeKey = "device.mode"

	// Discovery attributes
	DiscoverySubnetKey = "discovery.subnet"
	DiscoveryHostsKey  = "discovery.hosts"

	ErrorTypeKey = "error.type"
)

// RPCAttributes creates JSON-RPC client span attributes.
func RPCAttributes(method string, id int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RPCSystemKey, "jsonrpc"),
		attribute.String(RPCMethodKey, method),
	}
	if id > 0 {
		attrs = append(attrs, attribute.Int64(RPCIDKey, id))
	}
	return attrs
}

// DeviceAttributes creates device span attributes, skipping empty values.
func DeviceAttributes(deviceID, mode string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(DeviceModeKey, mode))
	}
	return attrs
}

// DiscoveryAttributes creates attributes for one scanned subnet.
func DiscoveryAttributes(subnet string, hosts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DiscoverySubnetKey, subnet),
		attribute.Int(DiscoveryHostsKey, hosts),
	}
}
