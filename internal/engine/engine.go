// Package engine is the dispatch core of a session. It turns every inbound
// message into exactly one Action and prepares outbound requests and
// notifications, consulting the method registry, the negotiator and the
// correlation tracker. It performs no I/O.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/internal/logctx"
	"github.com/ggoodman/mcp-core-go/internal/negotiation"
	"github.com/ggoodman/mcp-core-go/internal/outbound"
	"github.com/ggoodman/mcp-core-go/internal/registry"
	"github.com/ggoodman/mcp-core-go/mcp"
)

var (
	// ErrWrongDirection indicates a method this side may not send.
	ErrWrongDirection = errors.New("method not allowed in this direction")
	// ErrWrongRole indicates a request method sent as a notification or the
	// other way around.
	ErrWrongRole = errors.New("method used with the wrong message role")
)

// Engine dispatches the messages of one session.
type Engine struct {
	neg     *negotiation.Negotiator
	tracker *outbound.Tracker
	log     *slog.Logger

	serverInfo       mcp.Implementation
	serverCaps       mcp.ServerCapabilities
	parseErrorsFatal bool

	mu       sync.Mutex
	inflight map[jsonrpc.RequestID]mcp.Method
	logLevel mcp.LoggingLevel
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo sets the implementation reported in initialize results.
func WithServerInfo(info mcp.Implementation) Option {
	return func(e *Engine) { e.serverInfo = info }
}

// WithServerCapabilities sets the capabilities a server advertises.
func WithServerCapabilities(caps mcp.ServerCapabilities) Option {
	return func(e *Engine) { e.serverCaps = caps }
}

// WithParseErrorsFatal makes undecodable frames close the session after the
// error reply is sent.
func WithParseErrorsFatal(fatal bool) Option {
	return func(e *Engine) { e.parseErrorsFatal = fatal }
}

// New builds an Engine around the session's negotiator and tracker.
func New(neg *negotiation.Negotiator, tracker *outbound.Tracker, opts ...Option) *Engine {
	e := &Engine{
		neg:      neg,
		tracker:  tracker,
		log:      slog.Default(),
		inflight: make(map[jsonrpc.RequestID]mcp.Method),
		logLevel: mcp.LoggingLevelInfo,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Side returns the side this engine plays.
func (e *Engine) Side() mcp.Side { return e.neg.Side() }

// LogLevel returns the minimum level the peer asked to receive through
// notifications/message.
func (e *Engine) LogLevel() mcp.LoggingLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logLevel
}

// InFlight returns the number of inbound requests awaiting Complete.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// HandleInbound maps one decoded inbound message onto exactly one Action.
func (e *Engine) HandleInbound(ctx context.Context, msg jsonrpc.Message) Action {
	if e.neg.State() == mcp.StateClosed {
		return ignore("session closed")
	}
	switch m := msg.(type) {
	case *jsonrpc.Request:
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: m.Method, ID: m.ID.String(), Type: m.Type()})
		return e.handleRequest(ctx, m)
	case *jsonrpc.Notification:
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: m.Method, Type: m.Type()})
		return e.handleNotification(ctx, m)
	case *jsonrpc.Response:
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{ID: m.ID.String(), Type: m.Type()})
		return e.resolve(ctx, m.ID, m.Result, nil)
	case *jsonrpc.ErrorResponse:
		if m.ID == nil {
			e.log.WarnContext(ctx, "engine.inbound.peer_error", slog.Int("code", int(m.Error.Code)), slog.String("message", m.Error.Message))
			return ignore("error response without id")
		}
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{ID: m.ID.String(), Type: m.Type()})
		return e.resolve(ctx, *m.ID, nil, m.Error)
	default:
		return ignore("unsupported message")
	}
}

// HandleDecodeError maps a frame the codec rejected onto an Action. Frames
// that looked like notifications or responses are never answered.
func (e *Engine) HandleDecodeError(ctx context.Context, derr *jsonrpc.DecodeError) Action {
	if e.neg.State() == mcp.StateClosed {
		return ignore("session closed")
	}
	e.log.InfoContext(ctx, "engine.inbound.decode.fail", slog.Int("code", int(derr.Code)), slog.String("err", derr.Reason))
	if !derr.Replyable() {
		return ignore("undecodable " + hintName(derr.Hint))
	}
	if derr.ID != nil && e.isInFlight(*derr.ID) {
		return ignore("undecodable frame reuses an in-flight id")
	}
	a := replyError(derr.ID, &jsonrpc.Error{Code: derr.Code, Message: derr.Reason})
	a.Fatal = derr.Code == jsonrpc.ErrorCodeParseError && e.parseErrorsFatal
	return a
}

func (e *Engine) handleRequest(ctx context.Context, req *jsonrpc.Request) Action {
	id := req.ID
	if e.isInFlight(id) {
		e.log.WarnContext(ctx, "engine.inbound.duplicate_id")
		return ignore("duplicate in-flight request id")
	}

	d, err := registry.Lookup(req.Method)
	if err == nil && d.Role != registry.RoleRequest {
		err = fmt.Errorf("%w: %s", ErrWrongRole, req.Method)
	}
	if err == nil && !d.Direction.Allows(e.neg.Side().Peer()) {
		err = fmt.Errorf("%w: %s", ErrWrongDirection, req.Method)
	}
	if err != nil {
		e.log.InfoContext(ctx, "engine.inbound.method_not_found", slog.String("err", err.Error()))
		return replyError(&id, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil))
	}

	if err := e.neg.CheckInbound(d); err != nil {
		e.log.InfoContext(ctx, "engine.inbound.rejected", slog.String("err", err.Error()), slog.String("state", e.neg.State().String()))
		return replyError(&id, jsonrpc.AsError(err))
	}

	params, err := registry.ValidateParams(d, req.Params)
	if err != nil {
		e.log.InfoContext(ctx, "engine.inbound.invalid_params", slog.String("err", err.Error()))
		return replyError(&id, jsonrpc.AsError(err))
	}

	token, _, err := mcp.ProgressTokenOf(req.Params)
	if err != nil {
		e.log.InfoContext(ctx, "engine.inbound.invalid_params", slog.String("err", err.Error()))
		return replyError(&id, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, err.Error(), nil))
	}

	switch d.Method {
	case mcp.PingMethod:
		return e.respond(ctx, id, &mcp.EmptyResult{})
	case mcp.InitializeMethod:
		return e.initialize(ctx, id, params.(*mcp.InitializeRequest))
	case mcp.LoggingSetLevelMethod:
		e.mu.Lock()
		e.logLevel = params.(*mcp.SetLevelRequest).Level
		e.mu.Unlock()
	}

	e.mu.Lock()
	if _, dup := e.inflight[id]; dup {
		e.mu.Unlock()
		return ignore("duplicate in-flight request id")
	}
	e.inflight[id] = d.Method
	e.mu.Unlock()

	e.log.DebugContext(ctx, "engine.inbound.emit")
	return Action{Kind: ActionEmit, Event: &Event{
		Method:        d.Method,
		ID:            id,
		Params:        params,
		Raw:           req.Params,
		ProgressToken: token,
	}}
}

func (e *Engine) initialize(ctx context.Context, id jsonrpc.RequestID, req *mcp.InitializeRequest) Action {
	if err := e.neg.BeginInbound(req); err != nil {
		e.log.WarnContext(ctx, "engine.initialize.fail", slog.String("err", err.Error()))
		rpcErr := jsonrpc.AsError(err)
		if errors.Is(err, negotiation.ErrVersionMismatch) {
			rpcErr = jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "unsupported protocol version", negotiation.VersionMismatchData{
				Supported: mcp.ProtocolVersion,
				Requested: req.ProtocolVersion,
			})
		}
		a := replyError(&id, rpcErr)
		a.Fatal = negotiation.IsFatal(err)
		return a
	}

	e.neg.Complete(e.serverCaps)
	e.log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("client_name", req.ClientInfo.Name),
		slog.String("client_version", req.ClientInfo.Version),
	)
	return e.respond(ctx, id, &mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    e.serverCaps,
		ServerInfo:      e.serverInfo,
	})
}

func (e *Engine) respond(ctx context.Context, id jsonrpc.RequestID, result any) Action {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.respond.encode.fail", slog.String("err", err.Error()))
		return replyError(&id, jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}
	return Action{Kind: ActionRespond, Response: resp}
}

func (e *Engine) handleNotification(ctx context.Context, note *jsonrpc.Notification) Action {
	d, err := registry.Lookup(note.Method)
	if err == nil && d.Role != registry.RoleNotification {
		err = fmt.Errorf("%w: %s", ErrWrongRole, note.Method)
	}
	if err == nil && !d.Direction.Allows(e.neg.Side().Peer()) {
		err = fmt.Errorf("%w: %s", ErrWrongDirection, note.Method)
	}
	if err != nil {
		e.log.InfoContext(ctx, "engine.inbound.notification.unknown", slog.String("err", err.Error()))
		return ignore(err.Error())
	}

	if err := e.neg.CheckInbound(d); err != nil {
		e.log.InfoContext(ctx, "engine.inbound.notification.rejected", slog.String("err", err.Error()))
		return ignore(err.Error())
	}

	params, err := registry.ValidateParams(d, note.Params)
	if err != nil {
		e.log.InfoContext(ctx, "engine.inbound.notification.invalid", slog.String("err", err.Error()))
		return ignore(err.Error())
	}

	switch d.Method {
	case mcp.InitializedNotificationMethod:
		if err := e.neg.Initialized(); err != nil {
			e.log.InfoContext(ctx, "engine.inbound.notification.rejected", slog.String("err", err.Error()))
			return ignore(err.Error())
		}
		e.log.InfoContext(ctx, "engine.session.initialized")
	case mcp.ProgressNotificationMethod:
		if !e.tracker.Progress(params.(*mcp.ProgressNotificationParams)) {
			e.log.DebugContext(ctx, "engine.inbound.progress.unmatched")
		}
	}

	return Action{Kind: ActionEmit, Event: &Event{Method: d.Method, Params: params, Raw: note.Params}}
}

func (e *Engine) resolve(ctx context.Context, id jsonrpc.RequestID, result json.RawMessage, rpcErr *jsonrpc.Error) Action {
	p, ok := e.tracker.Lookup(id)
	if !ok {
		e.log.WarnContext(ctx, "engine.inbound.unknown_id")
		return ignore("response for unknown id " + id.String())
	}

	outcome := outbound.Outcome{Result: result}
	if rpcErr != nil {
		outcome = outbound.Outcome{Err: rpcErr}
	} else if d, err := registry.Lookup(p.Method); err == nil {
		if _, err := registry.ValidateResult(d, result); err != nil {
			e.log.WarnContext(ctx, "engine.inbound.invalid_result", slog.String("err", err.Error()))
			outcome = outbound.Outcome{Err: err}
		}
	}

	if _, err := e.tracker.Resolve(id, outcome); err != nil {
		e.log.WarnContext(ctx, "engine.inbound.unknown_id", slog.String("err", err.Error()))
		return ignore("response for unknown id " + id.String())
	}
	return Action{Kind: ActionDelivered}
}

// Complete turns the application's answer to an emitted request into the
// reply to send. Only the first Complete for an id produces a reply.
// *jsonrpc.Error values and errors carrying a JSON-RPC code are sent as-is;
// anything else becomes INTERNAL_ERROR.
func (e *Engine) Complete(ctx context.Context, id jsonrpc.RequestID, result any, err error) Action {
	e.mu.Lock()
	method, ok := e.inflight[id]
	delete(e.inflight, id)
	e.mu.Unlock()
	if !ok {
		return ignore("request " + id.String() + " is not in flight")
	}
	if e.neg.State() == mcp.StateClosed {
		return ignore("session closed")
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: string(method), ID: id.String(), Type: "request"})
	if err != nil {
		rpcErr := jsonrpc.AsError(err)
		if rpcErr.Code == jsonrpc.ErrorCodeInternalError {
			e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		} else {
			e.log.InfoContext(ctx, "engine.handle_request.error", slog.String("err", err.Error()))
		}
		return replyError(&id, rpcErr)
	}
	if result == nil {
		result = &mcp.EmptyResult{}
	}
	return e.respond(ctx, id, result)
}

// PrepareRequest checks that this side may send method now, validates the
// params, allocates an id and registers the pending request. The returned
// request must be sent by the caller, who then waits on the pending
// request's Done channel.
func (e *Engine) PrepareRequest(ctx context.Context, method mcp.Method, params any, opts ...outbound.RegisterOption) (*jsonrpc.Request, *outbound.Pending, error) {
	raw, typed, err := e.prepare(method, registry.RoleRequest, params)
	if err != nil {
		return nil, nil, err
	}

	if init, ok := typed.(*mcp.InitializeRequest); ok {
		if err := e.neg.BeginOutbound(init.Capabilities); err != nil {
			return nil, nil, err
		}
	}

	id := e.tracker.AllocateID()
	pending, err := e.tracker.Register(id, string(method), opts...)
	if err != nil {
		return nil, nil, err
	}
	e.log.DebugContext(ctx, "engine.outbound.request", slog.String("method", string(method)), slog.String("id", id.String()))
	return &jsonrpc.Request{ID: id, Method: string(method), Params: raw}, pending, nil
}

// PrepareNotification checks that this side may send method now and
// validates the params. Preparing notifications/initialized on a client
// moves the session to Ready.
func (e *Engine) PrepareNotification(ctx context.Context, method mcp.Method, params any) (*jsonrpc.Notification, error) {
	raw, _, err := e.prepare(method, registry.RoleNotification, params)
	if err != nil {
		return nil, err
	}
	if method == mcp.InitializedNotificationMethod {
		if err := e.neg.Initialized(); err != nil {
			return nil, err
		}
		e.log.InfoContext(ctx, "engine.session.initialized")
	}
	return &jsonrpc.Notification{Method: string(method), Params: raw}, nil
}

// prepare returns the marshaled params along with their typed form.
func (e *Engine) prepare(method mcp.Method, role registry.Role, params any) (json.RawMessage, any, error) {
	d, err := registry.Lookup(string(method))
	if err != nil {
		return nil, nil, err
	}
	if d.Role != role {
		return nil, nil, fmt.Errorf("%w: %s", ErrWrongRole, method)
	}
	if !d.Direction.Allows(e.neg.Side()) {
		return nil, nil, fmt.Errorf("%w: %s", ErrWrongDirection, method)
	}
	if err := e.neg.CheckOutbound(d); err != nil {
		return nil, nil, err
	}

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	typed, err := registry.ValidateParams(d, raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, typed, nil
}

// Close moves the session to Closed and fails every outstanding request
// with err.
func (e *Engine) Close(err error) {
	e.neg.Close()
	e.tracker.CloseAll(err)
	e.mu.Lock()
	clear(e.inflight)
	e.mu.Unlock()
}

func (e *Engine) isInFlight(id jsonrpc.RequestID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[id]
	return ok
}

func hintName(h jsonrpc.MessageHint) string {
	switch h {
	case jsonrpc.HintNotification:
		return "notification"
	case jsonrpc.HintResponse:
		return "response"
	case jsonrpc.HintRequest:
		return "request"
	default:
		return "frame"
	}
}
