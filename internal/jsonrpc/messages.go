package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Message is one of *Request, *Notification, *Response or *ErrorResponse.
// The set is closed; the variant of a decoded frame is derived from which
// members are present, never from a caller-supplied tag.
type Message interface {
	// Type returns "request", "notification", "response" or "error".
	Type() string
	isMessage()
}

// Request is a message that expects exactly one Response or ErrorResponse.
type Request struct {
	ID     RequestID
	Method string
	Params json.RawMessage
}

// Notification is a message that never receives a reply.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response is a successful reply to a Request.
type Response struct {
	ID     RequestID
	Result json.RawMessage
}

// ErrorResponse is a failed reply to a Request. ID is nil only when the
// request id could not be determined (parse errors, unreadable envelopes).
type ErrorResponse struct {
	ID    *RequestID
	Error *Error
}

func (*Request) Type() string       { return "request" }
func (*Notification) Type() string  { return "notification" }
func (*Response) Type() string      { return "response" }
func (*ErrorResponse) Type() string { return "error" }

func (*Request) isMessage()       {}
func (*Notification) isMessage()  {}
func (*Response) isMessage()      {}
func (*ErrorResponse) isMessage() {}

// NewRequest builds a request, marshaling params when non-nil.
func NewRequest(id RequestID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification, marshaling params when non-nil.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{Method: method, Params: raw}, nil
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id RequestID, result any) (*Response, error) {
	if result == nil {
		result = struct{}{}
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{ID: id, Result: resultBytes}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *ErrorResponse {
	return &ErrorResponse{ID: id, Error: NewError(code, message, data)}
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}
