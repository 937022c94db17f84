package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-core-go/internal/logctx"
	"github.com/ggoodman/mcp-core-go/mcpsession"
	"github.com/ggoodman/mcp-core-go/sessions"
	"github.com/ggoodman/mcp-core-go/sessions/memorystore"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	ErrSessionParamMissing = errors.New("missing sessionId query parameter")
	ErrInvalidSession      = errors.New("invalid mcp session")
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	lastEventIDHeader  = "Last-Event-ID"
	sessionIDParam     = "sessionId"
	endpointEvent      = "endpoint"
	messageEvent       = "message"
	defaultDetach      = 30 * time.Second
	defaultMaxBodySize = 4 << 20
	closeFlushTimeout  = time.Second
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections. These
// are transport errors, not JSON-RPC replies.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger overrides the logger. Records are enriched with request and
// session data from the context.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithStore sets where session records and event logs are kept. Defaults to
// a fresh memorystore.
func WithStore(s sessions.Store) Option {
	return func(h *Handler) {
		if s != nil {
			h.store = s
		}
	}
}

// WithSessionOptions adds options applied to every session the handler
// opens.
func WithSessionOptions(opts ...mcpsession.Option) Option {
	return func(h *Handler) { h.sessOpts = append(h.sessOpts, opts...) }
}

// WithDetachTimeout sets how long a session survives without an attached
// event stream.
func WithDetachTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.detachTimeout = d
		}
	}
}

// WithMaxBodySize bounds the size of a POSTed frame.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// Handler serves MCP sessions over HTTP + SSE.
type Handler struct {
	log           *slog.Logger
	store         sessions.Store
	sessOpts      []mcpsession.Option
	detachTimeout time.Duration
	maxBodySize   int64
	endpoint      *url.URL
	mux           *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*conn
}

// New constructs a Handler serving the endpoint at publicEndpoint. Only the
// URL's path is used for routing.
func New(publicEndpoint string, opts ...Option) (*Handler, error) {
	u, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", publicEndpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("endpoint URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}

	h := &Handler{
		log:           slog.Default(),
		detachTimeout: defaultDetach,
		maxBodySize:   defaultMaxBodySize,
		endpoint:      u,
		conns:         make(map[string]*conn),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.store == nil {
		h.store = memorystore.New()
	}
	if _, ok := h.log.Handler().(logctx.Handler); !ok {
		h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	path := pathOnly(u)
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDelete)
	h.mux = mux
	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// Close ends every session served by the handler.
func (h *Handler) Close() error {
	h.cancel()
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.sess.Close()
	}
	return nil
}

func (h *Handler) lookup(id string) *conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[id]
}

func (h *Handler) forget(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// open starts a new session and its read loop.
func (h *Handler) open(ctx context.Context) *conn {
	c := newConn(h, uuid.NewString())
	opts := append([]mcpsession.Option{mcpsession.WithLogger(h.log)}, h.sessOpts...)
	opts = append(opts, mcpsession.WithID(c.id), mcpsession.WithStore(h.store))
	c.sess = mcpsession.New(c, opts...)

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go func() {
		sctx := logctx.WithSessionData(h.ctx, &logctx.SessionData{SessionID: c.id, Side: string(c.sess.Side())})
		if err := c.sess.Serve(h.ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.WarnContext(sctx, "session.serve.end", slog.String("err", err.Error()))
			return
		}
		h.log.InfoContext(sctx, "session.serve.end")
	}()
	h.log.InfoContext(logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: c.id}), "session.open")
	return c
}

// handleGet opens or reattaches to a session's event stream.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	var c *conn
	fresh := false
	if id := r.URL.Query().Get(sessionIDParam); id != "" {
		if c = h.lookup(id); c == nil {
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
			h.log.InfoContext(ctx, "session.load.miss")
			return
		}
	} else {
		c = h.open(ctx)
		fresh = true
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: c.id, Side: string(c.sess.Side()), State: c.sess.State().String()})

	streamCtx, release := c.attach(ctx)
	defer release()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	if fresh {
		endpoint := pathOnly(h.endpoint) + "?" + url.Values{sessionIDParam: {c.id}}.Encode()
		if err := writeSSEEvent(wf, endpointEvent, "", []byte(endpoint)); err != nil {
			h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
			return
		}
	}

	h.log.InfoContext(ctx, "sse.stream.start")
	lastID := r.Header.Get(lastEventIDHeader)
	flush := func() bool {
		evs, err := h.store.EventsAfter(context.WithoutCancel(ctx), c.id, lastID)
		if err != nil {
			h.log.ErrorContext(ctx, "sse.replay.fail", slog.String("err", err.Error()))
			return false
		}
		for _, ev := range evs {
			if err := writeSSEEvent(wf, messageEvent, ev.ID, ev.Data); err != nil {
				h.log.InfoContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return false
			}
			lastID = ev.ID
		}
		return true
	}

	for {
		changed := c.watch()
		if !flush() {
			return
		}
		select {
		case <-changed:
		case <-c.closed:
			flush()
			h.log.InfoContext(ctx, "sse.stream.session_closed", slog.Duration("dur", time.Since(start)))
			return
		case <-streamCtx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		}
	}
}

// handlePost delivers one frame to a session. Replies arrive on the stream.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	id := r.URL.Query().Get(sessionIDParam)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, ErrSessionParamMissing.Error())
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	c := h.lookup(id)
	if c == nil {
		writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: c.id, Side: string(c.sess.Side()), State: c.sess.State().String()})

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "frame too large")
		} else {
			writeJSONError(w, http.StatusBadRequest, "unreadable body")
		}
		h.log.WarnContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty body")
		return
	}

	if err := c.deliver(ctx, body); err != nil {
		if errors.Is(err, errConnClosed) {
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
		} else {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		}
		h.log.InfoContext(ctx, "http.post.deliver.fail", slog.String("err", err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	h.log.DebugContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// handleDelete terminates a session.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get(sessionIDParam)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, ErrSessionParamMissing.Error())
		return
	}
	c := h.lookup(id)
	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.delete.miss")
		return
	}
	_ = c.sess.Close()
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id}), "session.delete.ok")
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, event, msgID string, payload []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(wf, "event: %s\n", event); err != nil {
			return fmt.Errorf("failed to write SSE event name: %w", err)
		}
	}
	if msgID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
