package mcpsession

import (
	"context"

	"github.com/ggoodman/mcp-core-go/internal/engine"
	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/internal/negotiation"
	"github.com/ggoodman/mcp-core-go/mcp"
)

// Event is an inbound request or notification for the application. Params
// holds a pointer to the typed struct from package mcp for Method, for
// example *mcp.CallToolRequest for tools/call.
type Event = engine.Event

// RequestID identifies a JSON-RPC request.
type RequestID = jsonrpc.RequestID

// CapabilitySet is the negotiated pair of capability sets.
type CapabilitySet = negotiation.CapabilitySet

// RPCError is a JSON-RPC error. Handlers may return one to choose the error
// sent to the peer; Call returns one when the peer answered with an error.
type RPCError = jsonrpc.Error

// ErrorCode is a JSON-RPC error code.
type ErrorCode = jsonrpc.ErrorCode

const (
	CodeParseError     = jsonrpc.ErrorCodeParseError
	CodeInvalidRequest = jsonrpc.ErrorCodeInvalidRequest
	CodeMethodNotFound = jsonrpc.ErrorCodeMethodNotFound
	CodeInvalidParams  = jsonrpc.ErrorCodeInvalidParams
	CodeInternalError  = jsonrpc.ErrorCodeInternalError
)

// NewError builds an RPCError. data is marshaled to JSON when non-nil.
func NewError(code ErrorCode, message string, data any) *RPCError {
	return jsonrpc.NewError(code, message, data)
}

// Handler fulfills inbound events. For requests the returned value is
// marshaled as the result (nil sends an empty result) and a returned error
// becomes the error response: *RPCError is sent as-is, anything else as an
// internal error. The return values of notification handlers are discarded.
type Handler interface {
	Handle(ctx context.Context, s *Session, ev *Event) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s *Session, ev *Event) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, s *Session, ev *Event) (any, error) {
	return f(ctx, s, ev)
}

type noHandler struct{}

func (noHandler) Handle(ctx context.Context, s *Session, ev *Event) (any, error) {
	switch {
	case ev.IsNotification():
		return nil, nil
	case ev.Method == mcp.LoggingSetLevelMethod:
		// The level is already recorded by the time the event is emitted.
		return nil, nil
	}
	return nil, NewError(CodeMethodNotFound, "method not found: "+string(ev.Method), nil)
}
