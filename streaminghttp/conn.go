package streaminghttp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-core-go/internal/logctx"
	"github.com/ggoodman/mcp-core-go/mcpsession"
)

var errConnClosed = errors.New("streaminghttp: session closed")

const inboundBuffer = 16

// conn is the mcpsession.Transport behind one HTTP session. Inbound frames
// arrive through POST requests; outbound frames go to the store's event log
// and wake whichever stream is attached.
type conn struct {
	h    *Handler
	id   string
	sess *mcpsession.Session

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	changed chan struct{}
	active  *attachment
	detach  *time.Timer
}

type attachment struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var _ mcpsession.Transport = (*conn)(nil)

func newConn(h *Handler, id string) *conn {
	return &conn{
		h:       h,
		id:      id,
		inbound: make(chan []byte, inboundBuffer),
		closed:  make(chan struct{}),
		changed: make(chan struct{}),
	}
}

func (c *conn) ReceiveFrame(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendFrame appends frame to the session's event log.
func (c *conn) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	if _, err := c.h.store.AppendEvent(context.WithoutCancel(ctx), c.id, frame); err != nil {
		return err
	}
	c.bump()
	return nil
}

// Close stops the transport. An attached stream gets a bounded chance to
// flush what is already in the log before Close returns.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.h.forget(c.id)

		c.mu.Lock()
		if c.detach != nil {
			c.detach.Stop()
		}
		active := c.active
		c.mu.Unlock()

		if active != nil {
			select {
			case <-active.done:
			case <-time.After(closeFlushTimeout):
			}
		}
	})
	return nil
}

// deliver queues a POSTed frame for the read loop.
func (c *conn) deliver(ctx context.Context, frame []byte) error {
	select {
	case c.inbound <- frame:
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch returns a channel closed on the next append.
func (c *conn) watch() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *conn) bump() {
	c.mu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// attach makes the caller the session's only stream, ending any previous
// one. The release func must be called when the stream ends; if no other
// stream attached meanwhile the detach timer starts.
func (c *conn) attach(ctx context.Context) (context.Context, func()) {
	sctx, cancel := context.WithCancel(ctx)
	a := &attachment{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	prev := c.active
	c.active = a
	if c.detach != nil {
		c.detach.Stop()
		c.detach = nil
	}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		c.h.log.InfoContext(ctx, "sse.stream.replaced")
	}

	return sctx, func() {
		cancel()
		c.mu.Lock()
		if c.active == a {
			c.active = nil
			select {
			case <-c.closed:
			default:
				c.detach = time.AfterFunc(c.h.detachTimeout, c.expire)
			}
		}
		c.mu.Unlock()
		close(a.done)
	}
}

func (c *conn) expire() {
	c.mu.Lock()
	attached := c.active != nil
	c.mu.Unlock()
	if attached {
		return
	}
	c.h.log.InfoContext(c.logContext(), "session.detach.expired", slog.Duration("after", c.h.detachTimeout))
	_ = c.sess.Close()
}

// logContext is used for records emitted outside any request.
func (c *conn) logContext() context.Context {
	return logctx.WithSessionData(context.Background(), &logctx.SessionData{SessionID: c.id})
}
