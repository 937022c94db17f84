// Package logctx carries log attributes through a context so that records
// emitted deep inside the session machinery are tagged with the HTTP request,
// session, JSON-RPC message and tool call they belong to.
package logctx

import (
	"context"
	"log/slog"
)

type key int

const (
	requestKey key = iota
	sessionKey
	rpcKey
	toolKey
)

// groups lists the context values Handler looks for, in output order.
var groups = [...]struct {
	name string
	key  key
}{
	{"req", requestKey},
	{"sess", sessionKey},
	{"rpc", rpcKey},
	{"tool", toolKey},
}

// Handler adds one attribute group per value found in the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	for _, g := range groups {
		if v, ok := ctx.Value(g.key).(slog.LogValuer); ok {
			r.AddAttrs(slog.Attr{Key: g.name, Value: v.LogValue()})
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// RequestData describes the HTTP request that carried a frame.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func (d *RequestData) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", d.RequestID),
		slog.String("method", d.Method),
		slog.String("user_agent", d.UserAgent),
		slog.String("remote_addr", d.RemoteAddr),
		slog.String("path", d.Path),
	)
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestKey, data)
}

type SessionData struct {
	SessionID string
	Side      string
	State     string
}

func (d *SessionData) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", d.SessionID),
		slog.String("side", d.Side),
		slog.String("state", d.State),
	)
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionKey, data)
}

// RPCMessage identifies the JSON-RPC message being handled. Type is one of
// request, notification, response or error.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func (m *RPCMessage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", m.Method),
		slog.String("id", m.ID),
		slog.String("type", m.Type),
	)
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcKey, msg)
}

type ToolCallData struct {
	ToolName string
}

func (d *ToolCallData) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", d.ToolName))
}

func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return context.WithValue(ctx, toolKey, data)
}
