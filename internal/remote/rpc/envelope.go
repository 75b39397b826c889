// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package rpc implements the JSON-RPC 2.0 subset spoken between controllers
// and the TV-side player: request envelopes, decoding of inbound frames and
// the table of requests awaiting a response.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Version is the protocol version sent in every request envelope.
const Version = "2.0"

// ErrMalformedFrame classifies inbound frames that cannot be interpreted.
var ErrMalformedFrame = errors.New("rpc: malformed frame")

// Request is an outbound call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// NewRequest builds a request envelope. Nil params are sent as an empty object.
func NewRequest(id int64, method string, params any) Request {
	if params == nil {
		params = struct{}{}
	}
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// Encode serializes a request envelope.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Method, err)
	}
	return data, nil
}

// RemoteError is the error object returned by the device for a failed call.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d", e.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Frame is one decoded inbound message: *Response, *Notification or *Malformed.
type Frame interface {
	frame()
}

// Response answers a previously sent request.
type Response struct {
	ID     int64
	Result json.RawMessage
	Error  *RemoteError
}

// Notification is an unsolicited message pushed by the device.
type Notification struct {
	Method string
	// Payload is params.data when present, otherwise params itself.
	Payload json.RawMessage
}

// Malformed carries a frame that could not be decoded.
type Malformed struct {
	Raw []byte
	Err error
}

func (*Response) frame()     {}
func (*Notification) frame() {}
func (*Malformed) frame()    {}

type inbound struct {
	ID     *json.RawMessage `json:"id"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params"`
	Result json.RawMessage  `json:"result"`
	Error  json.RawMessage  `json:"error"`
}

// Decode classifies an inbound frame. It never fails: undecodable input is
// returned as *Malformed.
func Decode(raw []byte) Frame {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &Malformed{Raw: raw, Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}

	if msg.ID != nil && !isNull(*msg.ID) {
		id, ok := parseID(*msg.ID)
		if !ok {
			return &Malformed{Raw: raw, Err: fmt.Errorf("%w: non-integer id %s", ErrMalformedFrame, string(*msg.ID))}
		}
		resp := &Response{ID: id, Result: msg.Result}
		if len(msg.Error) > 0 && !isNull(msg.Error) {
			var rerr RemoteError
			if err := json.Unmarshal(msg.Error, &rerr); err != nil {
				rerr = RemoteError{Message: string(msg.Error)}
			}
			resp.Error = &rerr
		}
		return resp
	}

	if msg.Method != "" {
		return &Notification{Method: msg.Method, Payload: unwrapPayload(msg.Params)}
	}

	return &Malformed{Raw: raw, Err: fmt.Errorf("%w: neither response nor notification", ErrMalformedFrame)}
}

// parseID accepts numeric ids with an integral value, so 2.0 and 2e0 match
// request 2. String ids are rejected.
func parseID(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, false
	}
	if id, err := num.Int64(); err == nil {
		return id, true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// unwrapPayload returns params.data if params is an object carrying a
// non-null data member, else params itself.
func unwrapPayload(params json.RawMessage) json.RawMessage {
	if len(params) == 0 || isNull(params) {
		return nil
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(params, &wrapper); err == nil && len(wrapper.Data) > 0 && !isNull(wrapper.Data) {
		return wrapper.Data
	}
	return params
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
