// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/rpc/v2/json2"
)

var (
	ErrClosed        = errors.New("clnrpc: client closed")
	ErrNotConnected  = errors.New("clnrpc: not connected")
	ErrDisconnected  = errors.New("clnrpc: connection lost with call in flight")
	ErrRelativePath  = errors.New("clnrpc: rpc path must be absolute")
	ErrInvalidConfig = errors.New("clnrpc: invalid configuration")
	ErrUnknownMethod = errors.New("clnrpc: unknown method")
)

// RPCError is returned by a call whose response carried a non-null error
// member. Err holds the decoded payload; Raw keeps the bytes the daemon sent.
type RPCError struct {
	Method string
	ID     string
	Err    *json2.Error
	Raw    json.RawMessage
}

func newRPCError(method, id string, raw json.RawMessage) *RPCError {
	e := &RPCError{Method: method, ID: id, Raw: raw, Err: &json2.Error{}}
	if err := json.Unmarshal(raw, e.Err); err != nil {
		// Non-object payloads (a bare string, say) still reject the call.
		e.Err = &json2.Error{Code: json2.E_SERVER, Message: string(raw)}
	}
	return e
}

// Code returns the daemon-supplied error code.
func (e *RPCError) Code() int {
	return int(e.Err.Code)
}

// Message returns the daemon-supplied error message.
func (e *RPCError) Message() string {
	return e.Err.Message
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("clnrpc: %s #%s: code %d: %s", e.Method, e.ID, e.Err.Code, e.Err.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// ParseError reports bytes on the wire that are not a well-formed sequence
// of JSON values. The stream cannot be resynchronized after one.
type ParseError struct {
	Offset int64
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("clnrpc: stream parse error at byte %d: %s", e.Offset, e.Msg)
}

// IsRPCError reports whether err carries a daemon error payload and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var rerr *RPCError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}
