package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/ggoodman/mcp-core-go/mcpsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHarness runs a server session over io.Pipe and collects its output
// lines.
type testHarness struct {
	t      *testing.T
	stdinW io.WriteCloser
	lines  chan string
	errc   chan error
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T, opts ...mcpsession.Option) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	tr := New(WithIO(inR, outW), WithLogger(quiet()))
	th := &testHarness{t: t, stdinW: inW, lines: make(chan string, 64), errc: make(chan error, 1)}

	opts = append([]mcpsession.Option{mcpsession.WithLogger(quiet())}, opts...)
	go func() { th.errc <- tr.Serve(context.Background(), opts...) }()

	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			th.lines <- strings.TrimSpace(sc.Text())
		}
	}()

	t.Cleanup(func() {
		_ = inW.Close()
		_ = outW.Close()
		_ = tr.Close()
	})
	return th
}

func (h *testHarness) writeLine(s string) {
	h.t.Helper()
	_, err := io.WriteString(h.stdinW, s+"\n")
	require.NoError(h.t, err)
}

func (h *testHarness) readJSON() map[string]any {
	h.t.Helper()
	select {
	case line := <-h.lines:
		var m map[string]any
		require.NoError(h.t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		return m
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for output")
		return nil
	}
}

func TestInitializeOverStdio(t *testing.T) {
	h := newHarness(t,
		mcpsession.WithServerInfo(mcp.Implementation{Name: "stdio-srv", Version: "1"}),
		mcpsession.WithServerCapabilities(mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}}),
		mcpsession.WithHandler(mcpsession.HandlerFunc(func(ctx context.Context, s *mcpsession.Session, ev *mcpsession.Event) (any, error) {
			if ev.Method == mcp.ToolsListMethod {
				return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "t", InputSchema: mcp.ToolInputSchema{Type: "object"}}}}, nil
			}
			return nil, nil
		})),
	)

	h.writeLine(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":1,"capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`)
	resp := h.readJSON()
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.EqualValues(t, 1, resp["id"])
	result := resp["result"].(map[string]any)
	assert.EqualValues(t, 1, result["protocolVersion"])
	assert.Equal(t, "stdio-srv", result["serverInfo"].(map[string]any)["name"])

	// Blank lines between frames are skipped.
	h.writeLine("")
	h.writeLine(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	h.writeLine(`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`)
	resp = h.readJSON()
	assert.Equal(t, "two", resp["id"])
	tools := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
}

func TestParseErrorOverStdio(t *testing.T) {
	h := newHarness(t)
	h.writeLine(`{"jsonrpc":"2.0",`)
	resp := h.readJSON()
	assert.Nil(t, resp["id"])
	assert.Contains(t, resp, "id")
	assert.EqualValues(t, -32700, resp["error"].(map[string]any)["code"])
}

func TestEOFEndsServe(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stdinW.Close())
	select {
	case err := <-h.errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return on EOF")
	}
}

func TestSendFrameKeepsOneMessagePerLine(t *testing.T) {
	var buf strings.Builder
	tr := New(WithIO(strings.NewReader(""), &buf))
	require.NoError(t, tr.SendFrame(context.Background(), []byte("{\n  \"jsonrpc\": \"2.0\",\n  \"method\": \"x\"\n}")))
	assert.Equal(t, `{"jsonrpc":"2.0","method":"x"}`+"\n", buf.String())
}

func TestClosedTransport(t *testing.T) {
	tr := New(WithIO(strings.NewReader(""), io.Discard))
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.SendFrame(context.Background(), []byte(`{}`)), ErrClosed)
	_, err := tr.ReceiveFrame(context.Background())
	assert.Error(t, err)
}

func TestOversizedFrame(t *testing.T) {
	tr := New(WithIO(strings.NewReader(strings.Repeat("x", 64)+"\n"), io.Discard), WithMaxFrameSize(16), WithLogger(quiet()))
	_, err := tr.ReceiveFrame(context.Background())
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

// Two transports wired back to back carry a full client/server exchange.
func TestClientServerOverPipes(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	srvT := New(WithIO(c2sR, s2cW), WithLogger(quiet()))
	cliT := New(WithIO(s2cR, c2sW), WithLogger(quiet()))

	srv := mcpsession.New(srvT,
		mcpsession.WithLogger(quiet()),
		mcpsession.WithServerCapabilities(mcp.ServerCapabilities{Prompts: &mcp.PromptsCapability{}}),
		mcpsession.WithHandler(mcpsession.HandlerFunc(func(ctx context.Context, s *mcpsession.Session, ev *mcpsession.Event) (any, error) {
			if ev.Method == mcp.PromptsListMethod {
				return &mcp.ListPromptsResult{Prompts: []mcp.Prompt{{Name: "greet"}}}, nil
			}
			return nil, nil
		})),
	)
	cli := mcpsession.New(cliT, mcpsession.WithSide(mcp.SideClient), mcpsession.WithLogger(quiet()))

	var wg sync.WaitGroup
	for _, s := range []*mcpsession.Session{srv, cli} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Serve(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("serve: %v", err)
			}
		}()
	}
	t.Cleanup(func() {
		_ = cli.Close()
		_ = srv.Close()
		wg.Wait()
	})

	_, err := cli.Initialize(context.Background())
	require.NoError(t, err)

	raw, err := cli.Call(context.Background(), mcp.PromptsListMethod, nil)
	require.NoError(t, err)
	var res mcp.ListPromptsResult
	require.NoError(t, json.Unmarshal(raw, &res))
	require.Len(t, res.Prompts, 1)
	assert.Equal(t, "greet", res.Prompts[0].Name)
}
