package engine

import (
	"encoding/json"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/mcp"
)

// ActionKind says what the caller must do with an Action.
type ActionKind int

const (
	// ActionIgnore means nothing is sent. Reason explains why.
	ActionIgnore ActionKind = iota
	// ActionEmit hands Event to the application. Requests must later be
	// answered through Engine.Complete.
	ActionEmit
	// ActionRespond sends Response.
	ActionRespond
	// ActionError sends Error.
	ActionError
	// ActionDelivered means the message was a response that reached the
	// request it answers. Nothing is sent.
	ActionDelivered
)

func (k ActionKind) String() string {
	switch k {
	case ActionEmit:
		return "emit"
	case ActionRespond:
		return "respond"
	case ActionError:
		return "error"
	case ActionDelivered:
		return "delivered"
	default:
		return "ignore"
	}
}

// Action is the single outcome of handling one inbound message.
type Action struct {
	Kind     ActionKind
	Event    *Event
	Response *jsonrpc.Response
	Error    *jsonrpc.ErrorResponse
	Reason   string

	// Fatal is set when the session must close once the action was carried
	// out.
	Fatal bool
}

// Message returns the frame to send for Respond and Error actions, or nil.
func (a Action) Message() jsonrpc.Message {
	switch a.Kind {
	case ActionRespond:
		return a.Response
	case ActionError:
		return a.Error
	default:
		return nil
	}
}

// Event is an inbound request or notification the application should act
// on. Params holds a pointer to the typed params struct from package mcp.
type Event struct {
	Method mcp.Method
	// ID is zero for notifications.
	ID            jsonrpc.RequestID
	Params        any
	Raw           json.RawMessage
	ProgressToken mcp.ProgressToken
}

// IsNotification reports whether the event expects no reply.
func (e *Event) IsNotification() bool { return e.ID.IsZero() }

func ignore(reason string) Action {
	return Action{Kind: ActionIgnore, Reason: reason}
}

func replyError(id *jsonrpc.RequestID, err *jsonrpc.Error) Action {
	return Action{Kind: ActionError, Error: &jsonrpc.ErrorResponse{ID: id, Error: err}}
}
