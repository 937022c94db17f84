package mcpsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-core-go/internal/engine"
	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/internal/logctx"
	"github.com/ggoodman/mcp-core-go/internal/negotiation"
	"github.com/ggoodman/mcp-core-go/internal/outbound"
	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/ggoodman/mcp-core-go/sessions"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("mcpsession: session closed")
	ErrAlreadyServing = errors.New("mcpsession: Serve already called")
	ErrWrongSide      = errors.New("mcpsession: operation not available on this side")

	// ErrFatal wraps the reason a protocol violation ended the session.
	ErrFatal = errors.New("mcpsession: fatal protocol error")
)

// Re-exported for callers matching on Call errors.
var (
	ErrTimeout   = outbound.ErrTimeout
	ErrCancelled = outbound.ErrCancelled
)

const storeTimeout = 5 * time.Second

// Transport moves whole frames. ReceiveFrame returns io.EOF once the peer
// is gone. Implementations serialize concurrent SendFrame calls.
type Transport interface {
	ReceiveFrame(ctx context.Context) ([]byte, error)
	SendFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Session is one MCP connection.
type Session struct {
	id      string
	side    mcp.Side
	t       Transport
	log     *slog.Logger
	handler Handler
	store   sessions.Store
	cfg     Config

	serverInfo mcp.Implementation
	serverCaps mcp.ServerCapabilities
	clientInfo mcp.Implementation
	clientCaps mcp.ClientCapabilities

	neg     *negotiation.Negotiator
	tracker *outbound.Tracker
	eng     *engine.Engine

	serving   atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	baseCtx   context.Context
	cancel    context.CancelFunc
	handlers  sync.WaitGroup

	// Notifications run in arrival order on one worker, started on demand.
	noteMu   sync.Mutex
	notes    []*Event
	draining bool
}

// New builds a Session over t. Nothing is read until Serve is called.
func New(t Transport, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		side:    mcp.SideServer,
		t:       t,
		log:     slog.Default(),
		handler: noHandler{},
		cfg:     DefaultConfig(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.handler == nil {
		s.handler = noHandler{}
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	s.neg = negotiation.New(s.side, negotiation.WithTransitionHook(s.onTransition))
	s.tracker = outbound.New()
	s.eng = engine.New(s.neg, s.tracker,
		engine.WithLogger(s.log),
		engine.WithServerInfo(s.serverInfo),
		engine.WithServerCapabilities(s.serverCaps),
		engine.WithParseErrorsFatal(s.cfg.ParseErrorsFatal),
	)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Side returns the side this session plays.
func (s *Session) Side() mcp.Side { return s.side }

// State returns the current handshake state.
func (s *Session) State() mcp.SessionState { return s.neg.State() }

// Capabilities returns the negotiated capability sets. They are complete
// once the session is Ready.
func (s *Session) Capabilities() CapabilitySet { return s.neg.Capabilities() }

// PeerInfo returns the implementation the peer reported during the
// handshake.
func (s *Session) PeerInfo() mcp.Implementation { return s.neg.PeerInfo() }

// LogLevel returns the minimum level the client asked for with
// logging/setLevel. It defaults to info.
func (s *Session) LogLevel() mcp.LoggingLevel { return s.eng.LogLevel() }

// Done is closed once the session has closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Serve reads and dispatches frames until the transport reports EOF, ctx is
// canceled, the session is closed or a fatal protocol error occurs. It
// returns nil for EOF and Close, ctx's error on cancellation, and an error
// wrapping ErrFatal when the protocol ended the session.
func (s *Session) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	stop := context.AfterFunc(ctx, func() { s.shutdown(ctx.Err()) })
	defer stop()

	s.persist()
	s.log.InfoContext(s.logContext(ctx), "session.start")

	go s.sweep()

	for {
		frame, err := s.t.ReceiveFrame(s.baseCtx)
		if err != nil {
			switch {
			case s.closing.Load():
			case errors.Is(err, io.EOF):
				s.log.InfoContext(s.logContext(ctx), "session.transport.eof")
				s.shutdown(nil)
			default:
				s.log.ErrorContext(s.logContext(ctx), "session.transport.receive.fail", slog.String("err", err.Error()))
				s.shutdown(fmt.Errorf("receive frame: %w", err))
			}
			break
		}
		s.handleFrame(frame)
		if s.closing.Load() {
			break
		}
	}

	s.handlers.Wait()
	return s.closeErr
}

func (s *Session) handleFrame(frame []byte) {
	ctx := s.logContext(s.baseCtx)

	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		var derr *jsonrpc.DecodeError
		if !errors.As(err, &derr) {
			s.log.ErrorContext(ctx, "session.inbound.decode.fail", slog.String("err", err.Error()))
			return
		}
		s.carryOut(ctx, s.eng.HandleDecodeError(ctx, derr))
		return
	}
	s.carryOut(ctx, s.eng.HandleInbound(ctx, msg))
}

// carryOut performs what an Action asks for.
func (s *Session) carryOut(ctx context.Context, a engine.Action) {
	switch a.Kind {
	case engine.ActionRespond, engine.ActionError:
		if err := s.send(ctx, a.Message()); err != nil {
			s.log.ErrorContext(ctx, "session.outbound.send.fail", slog.String("err", err.Error()))
		}
	case engine.ActionEmit:
		s.dispatch(ctx, a.Event)
	case engine.ActionIgnore:
		s.log.DebugContext(ctx, "session.inbound.ignore", slog.String("reason", a.Reason))
	}
	if a.Fatal {
		reason := a.Reason
		if a.Error != nil {
			reason = a.Error.Error.Message
		}
		s.log.WarnContext(ctx, "session.fatal", slog.String("reason", reason))
		s.shutdown(fmt.Errorf("%w: %s", ErrFatal, reason))
	}
}

func (s *Session) dispatch(ctx context.Context, ev *Event) {
	if ev.Method == mcp.LoggingSetLevelMethod {
		s.persist()
	}

	if ev.IsNotification() {
		s.enqueueNotification(ctx, ev)
		return
	}

	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		res, err := s.invoke(ctx, ev)
		s.carryOut(ctx, s.eng.Complete(ctx, ev.ID, res, err))
	}()
}

// enqueueNotification queues ev for the notification worker so that a
// handler waiting on a Call never holds up the read loop.
func (s *Session) enqueueNotification(ctx context.Context, ev *Event) {
	s.noteMu.Lock()
	s.notes = append(s.notes, ev)
	if s.draining {
		s.noteMu.Unlock()
		return
	}
	s.draining = true
	s.handlers.Add(1)
	s.noteMu.Unlock()
	go s.drainNotifications(ctx)
}

func (s *Session) drainNotifications(ctx context.Context) {
	defer s.handlers.Done()
	for {
		s.noteMu.Lock()
		if len(s.notes) == 0 {
			s.draining = false
			s.noteMu.Unlock()
			return
		}
		ev := s.notes[0]
		s.notes[0] = nil
		s.notes = s.notes[1:]
		s.noteMu.Unlock()

		if _, err := s.invoke(ctx, ev); err != nil {
			s.log.WarnContext(ctx, "session.notification.fail", slog.String("method", string(ev.Method)), slog.String("err", err.Error()))
		}
	}
}

func (s *Session) invoke(ctx context.Context, ev *Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "session.handler.panic", slog.String("method", string(ev.Method)), slog.Any("panic", r))
			res, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	if ev.Method == mcp.ToolsCallMethod {
		if p, ok := ev.Params.(*mcp.CallToolRequest); ok {
			ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: p.Name})
		}
	}
	return s.handler.Handle(ctx, s, ev)
}

func (s *Session) send(ctx context.Context, msg jsonrpc.Message) error {
	b, err := jsonrpc.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.t.SendFrame(ctx, b)
}

func (s *Session) sweep() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			for _, p := range s.tracker.SweepTimeouts(now) {
				s.log.WarnContext(s.logContext(s.baseCtx), "session.outbound.timeout",
					slog.String("method", p.Method),
					slog.String("id", p.ID.String()),
				)
			}
		}
	}
}

// CallOption customizes a single Call.
type CallOption func(*callConfig)

type callConfig struct {
	timeout    time.Duration
	onProgress outbound.ProgressFunc
}

// WithTimeout overrides the session's request timeout for one call. A
// negative timeout disables the deadline.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// WithProgress asks the peer for progress updates, delivered to fn until the
// call completes.
func WithProgress(fn func(mcp.ProgressNotificationParams)) CallOption {
	return func(c *callConfig) { c.onProgress = fn }
}

// Call sends a request and waits for the peer's answer. A peer error is
// returned as *RPCError; expiry as ErrTimeout.
func (s *Session) Call(ctx context.Context, method mcp.Method, params any, opts ...CallOption) (json.RawMessage, error) {
	cc := callConfig{timeout: s.cfg.RequestTimeout}
	for _, opt := range opts {
		opt(&cc)
	}

	var regOpts []outbound.RegisterOption
	if cc.timeout > 0 {
		regOpts = append(regOpts, outbound.WithDeadline(time.Now().Add(cc.timeout)))
	}
	if cc.onProgress != nil {
		token := uuid.NewString()
		var raw json.RawMessage
		if params != nil {
			b, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("marshal params: %w", err)
			}
			raw = b
		}
		withToken, err := mcp.WithProgressToken(raw, token)
		if err != nil {
			return nil, err
		}
		params = withToken
		regOpts = append(regOpts, outbound.WithProgressToken(token, cc.onProgress))
	}

	lctx := s.logContext(ctx)
	req, pending, err := s.eng.PrepareRequest(lctx, method, params, regOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.send(lctx, req); err != nil {
		s.tracker.Cancel(req.ID)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case out := <-pending.Done():
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Result, nil
	case <-ctx.Done():
		s.tracker.Cancel(req.ID)
		return nil, ctx.Err()
	}
}

// Notify sends a notification.
func (s *Session) Notify(ctx context.Context, method mcp.Method, params any) error {
	lctx := s.logContext(ctx)
	note, err := s.eng.PrepareNotification(lctx, method, params)
	if err != nil {
		return err
	}
	return s.send(lctx, note)
}

// Initialize performs the client side of the handshake: it sends initialize,
// checks the server's answer and sends notifications/initialized. Serve must
// be running. If the exchange fails for any reason, including a rejected or
// mismatched protocol version, the session is closed.
func (s *Session) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	if s.side != mcp.SideClient {
		return nil, ErrWrongSide
	}
	raw, err := s.Call(ctx, mcp.InitializeMethod, &mcp.InitializeRequest{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    s.clientCaps,
		ClientInfo:      s.clientInfo,
	})
	if err != nil {
		s.failHandshake(ctx, err)
		return nil, err
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		err = fmt.Errorf("decode initialize result: %w", err)
		s.failHandshake(ctx, err)
		return nil, err
	}
	if err := s.neg.Accept(&res); err != nil {
		if negotiation.IsFatal(err) {
			s.failHandshake(ctx, err)
		}
		return nil, err
	}
	if err := s.Notify(ctx, mcp.InitializedNotificationMethod, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// failHandshake closes a client whose initialize exchange did not complete.
// The negotiator cannot leave Initializing, so the session is unusable.
func (s *Session) failHandshake(ctx context.Context, err error) {
	s.log.WarnContext(s.logContext(ctx), "session.initialize.fail", slog.String("err", err.Error()))
	s.shutdown(fmt.Errorf("%w: %w", ErrFatal, err))
}

// Close ends the session. Pending calls fail with ErrClosed.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = cause

		failWith := ErrClosed
		if cause != nil {
			failWith = fmt.Errorf("%w: %w", ErrClosed, cause)
		}
		s.eng.Close(failWith)
		s.cancel()
		if err := s.t.Close(); err != nil {
			s.log.DebugContext(s.logContext(context.Background()), "session.transport.close.fail", slog.String("err", err.Error()))
		}

		if s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := s.store.Delete(ctx, s.id); err != nil {
				s.log.WarnContext(s.logContext(ctx), "session.store.delete.fail", slog.String("err", err.Error()))
			}
			cancel()
		}
		close(s.done)
		s.log.InfoContext(s.logContext(context.Background()), "session.closed")
	})
}

func (s *Session) onTransition(from, to mcp.SessionState) {
	s.log.DebugContext(s.logContext(context.Background()), "session.state.change",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	s.persist()
}

// persist writes the current record to the store, creating it on first use.
func (s *Session) persist() {
	if s.store == nil || s.closing.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	state := s.neg.State()
	caps := s.neg.Capabilities()
	apply := func(r *sessions.Record) error {
		r.Side = s.side
		r.State = state
		r.ClientCaps = caps.Client
		r.ServerCaps = caps.Server
		r.LogLevel = s.eng.LogLevel()
		if state >= mcp.StateInitializing {
			r.ProtocolVersion = mcp.ProtocolVersion
		}
		if peer := s.neg.PeerInfo(); peer.Name != "" {
			r.Peer = &peer
		}
		return nil
	}

	err := s.store.Update(ctx, s.id, apply)
	if errors.Is(err, sessions.ErrNotFound) {
		rec := sessions.Record{ID: s.id}
		_ = apply(&rec)
		err = s.store.Create(ctx, rec)
		if errors.Is(err, sessions.ErrExists) {
			err = s.store.Update(ctx, s.id, apply)
		}
	}
	if err != nil {
		s.log.WarnContext(s.logContext(ctx), "session.store.write.fail", slog.String("err", err.Error()))
	}
}

func (s *Session) logContext(ctx context.Context) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: s.id,
		Side:      string(s.side),
		State:     s.neg.State().String(),
	})
}
