package mcpsession

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/ggoodman/mcp-core-go/sessions"
	"github.com/ggoodman/mcp-core-go/sessions/memorystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanTransport moves frames over channels.
type chanTransport struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   sync.Once
}

func (c *chanTransport) ReceiveFrame(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanTransport) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case c.out <- append([]byte(nil), frame...):
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chanTransport) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func pipe() (a, b *chanTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &chanTransport{in: ba, out: ab, closed: make(chan struct{})}
	b = &chanTransport{in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

// rawPeer speaks JSON-RPC frames directly to a session under test.
type rawPeer struct {
	t    *testing.T
	toS  chan []byte
	from chan []byte
}

func newRawPeer(t *testing.T) (*rawPeer, *chanTransport) {
	toS := make(chan []byte, 64)
	from := make(chan []byte, 64)
	return &rawPeer{t: t, toS: toS, from: from}, &chanTransport{in: toS, out: from, closed: make(chan struct{})}
}

func (p *rawPeer) send(frame string) { p.toS <- []byte(frame) }

func (p *rawPeer) recv() jsonrpc.Message {
	p.t.Helper()
	select {
	case f := <-p.from:
		msg, err := jsonrpc.Decode(f)
		require.NoError(p.t, err, "frame: %s", f)
		return msg
	case <-time.After(2 * time.Second):
		p.t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (p *rawPeer) expectNothing() {
	p.t.Helper()
	select {
	case f := <-p.from:
		p.t.Fatalf("unexpected frame: %s", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func serve(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(context.Background()) }()
	t.Cleanup(func() { _ = s.Close() })
	return errc
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const initFrame = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":1,"capabilities":{},"clientInfo":{"name":"raw","version":"1"}}}`

func TestServerHandshakeAndDispatch(t *testing.T) {
	peer, tr := newRawPeer(t)
	calls := make(chan string, 1)
	s := New(tr,
		WithLogger(quietLogger()),
		WithServerInfo(mcp.Implementation{Name: "srv", Version: "0.1"}),
		WithServerCapabilities(mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}}),
		WithHandler(HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
			if ev.Method == mcp.ToolsCallMethod {
				calls <- ev.Params.(*mcp.CallToolRequest).Name
				return &mcp.CallToolResult{ToolResult: "ok"}, nil
			}
			return nil, nil
		})),
	)
	serve(t, s)

	peer.send(`{"jsonrpc":"2.0","id":"early","method":"tools/call","params":{"name":"x"}}`)
	errResp, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, jsonrpc.ErrorCodeInvalidRequest, errResp.Error.Code)

	peer.send(initFrame)
	resp, ok := peer.recv().(*jsonrpc.Response)
	require.True(t, ok)
	var res mcp.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "srv", res.ServerInfo.Name)
	assert.Equal(t, mcp.StateInitializing, s.State())

	peer.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	peer.send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo"}}`)
	resp, ok = peer.recv().(*jsonrpc.Response)
	require.True(t, ok)
	assert.Equal(t, jsonrpc.IntID(2), resp.ID)
	assert.JSONEq(t, `{"toolResult":"ok"}`, string(resp.Result))
	assert.Equal(t, "echo", <-calls)
	assert.Equal(t, mcp.StateReady, s.State())
	assert.Equal(t, "raw", s.PeerInfo().Name)

	peer.send(`{"jsonrpc":"2.0","id":3,"method":"ping"}`)
	resp, ok = peer.recv().(*jsonrpc.Response)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(resp.Result))

	// Notifications are never answered, even when they make no sense.
	peer.send(`{"jsonrpc":"2.0","method":"notifications/bogus"}`)
	peer.expectNothing()
}

func TestServeReturnsNilOnEOF(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	errc := serve(t, s)

	close(peer.toS)
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, mcp.StateClosed, s.State())
	<-s.Done()
}

func TestVersionMismatchEndsSession(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	errc := serve(t, s)

	peer.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":2,"capabilities":{},"clientInfo":{"name":"raw","version":"1"}}}`)
	errResp, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, jsonrpc.ErrorCodeInvalidParams, errResp.Error.Code)
	assert.JSONEq(t, `{"supported":1,"requested":2}`, string(errResp.Error.Data))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrFatal)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestParseErrorRepliedWithNullID(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	serve(t, s)

	peer.send(`{not json`)
	errResp, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.Nil(t, errResp.ID)
	assert.Equal(t, jsonrpc.ErrorCodeParseError, errResp.Error.Code)
	assert.NotEqual(t, mcp.StateClosed, s.State())
}

func TestParseErrorsFatal(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()), WithParseErrorsFatal(true))
	errc := serve(t, s)

	peer.send(`{not json`)
	_, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.ErrorIs(t, <-errc, ErrFatal)
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr,
		WithLogger(quietLogger()),
		WithServerCapabilities(mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}}),
		WithHandler(HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
			if ev.Method == mcp.ToolsListMethod {
				panic("boom")
			}
			return nil, nil
		})),
	)
	serve(t, s)

	peer.send(initFrame)
	peer.recv()
	peer.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	peer.send(`{"jsonrpc":"2.0","id":9,"method":"tools/list"}`)
	errResp, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, jsonrpc.ErrorCodeInternalError, errResp.Error.Code)
	assert.Equal(t, "internal error", errResp.Error.Message)
}

func TestHandlerRPCErrorSentAsIs(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr,
		WithLogger(quietLogger()),
		WithServerCapabilities(mcp.ServerCapabilities{Prompts: &mcp.PromptsCapability{}}),
		WithHandler(HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
			return nil, NewError(CodeInvalidParams, "no such prompt", map[string]string{"name": "x"})
		})),
	)
	serve(t, s)

	peer.send(initFrame)
	peer.recv()
	peer.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	peer.send(`{"jsonrpc":"2.0","id":4,"method":"prompts/get","params":{"name":"x"}}`)
	errResp, ok := peer.recv().(*jsonrpc.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidParams, errResp.Error.Code)
	assert.Equal(t, "no such prompt", errResp.Error.Message)
	assert.JSONEq(t, `{"name":"x"}`, string(errResp.Error.Data))
}

func TestCallTimesOut(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()), WithSweepInterval(10*time.Millisecond))
	serve(t, s)

	_, err := s.Call(context.Background(), mcp.PingMethod, nil, WithTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, s.tracker.Len())
}

func TestCallContextCancel(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	serve(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, mcp.PingMethod, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, s.tracker.Len())
}

func TestCloseFailsPendingCalls(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	serve(t, s)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), mcp.PingMethod, nil)
		errc <- err
	}()
	require.Eventually(t, func() bool { return s.tracker.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, <-errc, ErrClosed)
}

func TestCallBeforeReadyRejectedLocally(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	_, err := s.CreateMessage(context.Background(), &mcp.CreateMessageRequest{MaxTokens: 1})
	assert.Error(t, err)
}

func TestInitializeOnlyOnClients(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	_, err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrWrongSide)
}

// connected starts a server and a client over a pipe and completes the
// handshake.
func connected(t *testing.T, server Handler, client Handler, serverOpts ...Option) (srv, cli *Session) {
	t.Helper()
	a, b := pipe()
	srv = New(a, append([]Option{
		WithLogger(quietLogger()),
		WithHandler(server),
		WithServerInfo(mcp.Implementation{Name: "srv", Version: "1"}),
		WithServerCapabilities(mcp.ServerCapabilities{
			Tools:   &mcp.ToolsCapability{},
			Logging: &mcp.LoggingCapability{},
		}),
	}, serverOpts...)...)
	cli = New(b,
		WithSide(mcp.SideClient),
		WithLogger(quietLogger()),
		WithHandler(client),
		WithClientInfo(mcp.Implementation{Name: "cli", Version: "1"}),
		WithClientCapabilities(mcp.ClientCapabilities{Sampling: &mcp.SamplingCapability{}}),
	)
	serve(t, srv)
	serve(t, cli)

	res, err := cli.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "srv", res.ServerInfo.Name)
	assert.Equal(t, mcp.StateReady, cli.State())
	require.Eventually(t, func() bool { return srv.State() == mcp.StateReady }, time.Second, 5*time.Millisecond)
	return srv, cli
}

func TestInitializeRejectedClosesClient(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithSide(mcp.SideClient), WithLogger(quietLogger()))
	errc := serve(t, s)

	initErr := make(chan error, 1)
	go func() {
		_, err := s.Initialize(context.Background())
		initErr <- err
	}()

	req, ok := peer.recv().(*jsonrpc.Request)
	require.True(t, ok)
	assert.Equal(t, string(mcp.InitializeMethod), req.Method)
	id, err := json.Marshal(req.ID)
	require.NoError(t, err)
	peer.send(`{"jsonrpc":"2.0","id":` + string(id) + `,"error":{"code":-32602,"message":"unsupported protocol version","data":{"supported":1,"requested":1}}}`)

	var rpcErr *RPCError
	require.ErrorAs(t, <-initErr, &rpcErr)
	assert.Equal(t, jsonrpc.ErrorCodeInvalidParams, rpcErr.Code)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still open after a rejected initialize")
	}
	assert.ErrorIs(t, <-errc, ErrFatal)

	_, err = s.Initialize(context.Background())
	assert.Error(t, err)
}

func TestInitializeTimeoutClosesClient(t *testing.T) {
	peer, tr := newRawPeer(t)
	s := New(tr, WithSide(mcp.SideClient), WithLogger(quietLogger()))
	serve(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Initialize(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_ = peer.recv()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still open after initialize gave up")
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	server := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		switch ev.Method {
		case mcp.ToolsListMethod:
			return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "ask"}}}, nil
		case mcp.ToolsCallMethod:
			// Calling back into the client while the request is in flight.
			out, err := s.CreateMessage(ctx, &mcp.CreateMessageRequest{
				Messages:  []mcp.SamplingMessage{{Role: mcp.RoleUser, Content: mcp.TextContent("hi")}},
				MaxTokens: 10,
			})
			if err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{ToolResult: out.Content.Text}, nil
		}
		return nil, nil
	})
	client := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method == mcp.SamplingCreateMessageMethod {
			return &mcp.CreateMessageResult{
				Role:       mcp.RoleAssistant,
				Content:    mcp.TextContent("hello"),
				Model:      "test",
				StopReason: mcp.StopReasonEndTurn,
			}, nil
		}
		return nil, nil
	})
	srv, cli := connected(t, server, client)

	assert.True(t, cli.Capabilities().Has(mcp.CapabilityTools))
	assert.True(t, srv.Capabilities().Has(mcp.CapabilitySampling))

	raw, err := cli.Call(context.Background(), mcp.ToolsListMethod, nil)
	require.NoError(t, err)
	var list mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "ask", list.Tools[0].Name)

	raw, err = cli.Call(context.Background(), mcp.ToolsCallMethod, &mcp.CallToolRequest{Name: "ask"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"toolResult":"hello"}`, string(raw))

	require.NoError(t, cli.Ping(context.Background()))
	require.NoError(t, srv.Ping(context.Background()))
}

func TestNotificationHandlerCanCallPeer(t *testing.T) {
	server := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method == mcp.ToolsListMethod {
			return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "fresh"}}}, nil
		}
		return nil, nil
	})
	refreshed := make(chan error, 1)
	client := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method != mcp.ToolsListChangedNotificationMethod {
			return nil, nil
		}
		raw, err := s.Call(ctx, mcp.ToolsListMethod, nil, WithTimeout(time.Second))
		if err == nil && !json.Valid(raw) {
			err = errors.New("invalid tools/list result")
		}
		refreshed <- err
		return nil, nil
	})
	srv, cli := connected(t, server, client)

	start := time.Now()
	require.NoError(t, srv.NotifyToolListChanged(context.Background()))
	select {
	case err := <-refreshed:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler never finished")
	}

	// The read loop kept going while the handler was busy.
	require.NoError(t, cli.Ping(context.Background()))
}

func TestNotificationsHandledInOrder(t *testing.T) {
	seen := make(chan string, 8)
	client := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method == mcp.LoggingMessageNotificationMethod {
			time.Sleep(5 * time.Millisecond)
			seen <- ev.Params.(*mcp.LoggingMessageNotification).Logger
		}
		return nil, nil
	})
	srv, _ := connected(t, nil, client)

	want := []string{"a", "b", "c", "d"}
	for _, name := range want {
		require.NoError(t, srv.LogMessage(context.Background(), mcp.LoggingLevelError, name, "x"))
	}
	var got []string
	for range want {
		select {
		case name := <-seen:
			got = append(got, name)
		case <-time.After(2 * time.Second):
			t.Fatal("notification not handled")
		}
	}
	assert.Equal(t, want, got)
}

func TestClientCannotUseUndeclaredServerCapability(t *testing.T) {
	srv, cli := connected(t, HandlerFunc(func(context.Context, *Session, *Event) (any, error) { return nil, nil }), nil)
	_ = srv

	_, err := cli.Call(context.Background(), mcp.PromptsListMethod, nil)
	require.Error(t, err)
	var rpcErr *RPCError
	assert.False(t, errors.As(err, &rpcErr), "rejected before sending")
}

func TestProgressRoutedToCaller(t *testing.T) {
	server := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method == mcp.ToolsCallMethod {
			if ev.ProgressToken == nil {
				return nil, errors.New("missing progress token")
			}
			if err := s.Progress(ctx, ev.ProgressToken, 1, mcp.Float(2)); err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{ToolResult: "done"}, nil
		}
		return nil, nil
	})
	_, cli := connected(t, server, nil)

	got := make(chan mcp.ProgressNotificationParams, 1)
	raw, err := cli.Call(context.Background(), mcp.ToolsCallMethod, &mcp.CallToolRequest{Name: "slow"},
		WithProgress(func(p mcp.ProgressNotificationParams) { got <- p }))
	require.NoError(t, err)
	assert.JSONEq(t, `{"toolResult":"done"}`, string(raw))

	select {
	case p := <-got:
		assert.Equal(t, 1.0, p.Progress)
		require.NotNil(t, p.Total)
		assert.Equal(t, 2.0, *p.Total)
	case <-time.After(time.Second):
		t.Fatal("progress not delivered")
	}
}

func TestLogMessageHonoursLevel(t *testing.T) {
	logs := make(chan *mcp.LoggingMessageNotification, 4)
	client := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		if ev.Method == mcp.LoggingMessageNotificationMethod {
			logs <- ev.Params.(*mcp.LoggingMessageNotification)
		}
		return nil, nil
	})
	srv, cli := connected(t, nil, client)
	ctx := context.Background()

	_, err := cli.Call(ctx, mcp.LoggingSetLevelMethod, &mcp.SetLevelRequest{Level: mcp.LoggingLevelWarning})
	require.NoError(t, err)
	assert.Equal(t, mcp.LoggingLevelWarning, srv.LogLevel())

	require.NoError(t, srv.LogMessage(ctx, mcp.LoggingLevelInfo, "app", "dropped"))
	require.NoError(t, srv.LogMessage(ctx, mcp.LoggingLevelError, "app", map[string]string{"msg": "kept"}))

	select {
	case m := <-logs:
		assert.Equal(t, mcp.LoggingLevelError, m.Level)
		assert.Equal(t, "app", m.Logger)
		assert.JSONEq(t, `{"msg":"kept"}`, string(m.Data))
	case <-time.After(time.Second):
		t.Fatal("log message not delivered")
	}
	select {
	case m := <-logs:
		t.Fatalf("unexpected log message %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotificationHelpersRespectCapabilities(t *testing.T) {
	got := make(chan mcp.Method, 4)
	client := HandlerFunc(func(ctx context.Context, s *Session, ev *Event) (any, error) {
		got <- ev.Method
		return nil, nil
	})
	srv, _ := connected(t, nil, client)
	ctx := context.Background()

	require.NoError(t, srv.NotifyToolListChanged(ctx))
	assert.Equal(t, mcp.ToolsListChangedNotificationMethod, <-got)

	// Resources were not advertised.
	assert.Error(t, srv.NotifyResourceListChanged(ctx))
	assert.Error(t, srv.NotifyResourceUpdated(ctx, "file:///x"))
}

func TestStoreTracksSessionLifecycle(t *testing.T) {
	store := memorystore.New()
	srv, cli := connected(t, nil, nil, WithStore(store))
	ctx := context.Background()

	rec, err := store.Get(ctx, srv.ID())
	require.NoError(t, err)
	assert.Equal(t, mcp.StateReady, rec.State)
	assert.Equal(t, mcp.SideServer, rec.Side)
	assert.Equal(t, mcp.ProtocolVersion, rec.ProtocolVersion)
	require.NotNil(t, rec.Peer)
	assert.Equal(t, "cli", rec.Peer.Name)
	assert.True(t, rec.ClientCaps.Has(mcp.CapabilitySampling))

	_, err = cli.Call(ctx, mcp.LoggingSetLevelMethod, &mcp.SetLevelRequest{Level: mcp.LoggingLevelDebug})
	require.NoError(t, err)
	rec, err = store.Get(ctx, srv.ID())
	require.NoError(t, err)
	assert.Equal(t, mcp.LoggingLevelDebug, rec.LogLevel)

	require.NoError(t, srv.Close())
	_, err = store.Get(ctx, srv.ID())
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestServeTwice(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr, WithLogger(quietLogger()))
	serve(t, s)
	require.Eventually(t, func() bool { return s.serving.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Serve(context.Background()), ErrAlreadyServing)
}
