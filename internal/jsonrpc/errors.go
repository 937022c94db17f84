package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Error is a JSON-RPC error object. It doubles as a Go error so that
// application code can return one directly and have it sent verbatim.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError builds an Error, marshaling data when non-nil. Data that cannot be
// marshaled is dropped rather than failing the reply.
func NewError(code ErrorCode, message string, data any) *Error {
	e := &Error{Code: code, Message: message}
	if data != nil {
		if raw, ok := data.(json.RawMessage); ok {
			e.Data = raw
		} else if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Coder is implemented by errors that map onto a specific JSON-RPC code.
type Coder interface {
	RPCCode() ErrorCode
}

// AsError converts err into a wire error. *Error values pass through, errors
// implementing Coder keep their code, everything else becomes an internal
// error with a generic message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var c Coder
	if errors.As(err, &c) {
		return &Error{Code: c.RPCCode(), Message: err.Error()}
	}
	return &Error{Code: ErrorCodeInternalError, Message: "internal error"}
}

// MessageHint records what a frame looked like before it failed validation.
type MessageHint int

const (
	HintUnknown MessageHint = iota
	HintRequest
	HintNotification
	HintResponse
)

// DecodeError describes a frame that could not be turned into a Message.
type DecodeError struct {
	Code   ErrorCode
	Reason string
	// ID is the request id when one could be recovered from the frame.
	ID   *RequestID
	Hint MessageHint
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s", e.Reason)
}

func (e *DecodeError) RPCCode() ErrorCode { return e.Code }

// Replyable reports whether the peer may receive an error reply for this
// frame. Notifications and responses never receive replies.
func (e *DecodeError) Replyable() bool {
	switch e.Hint {
	case HintNotification, HintResponse:
		return false
	default:
		return true
	}
}
