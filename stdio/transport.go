package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/mcp-core-go/mcpsession"
)

// ErrClosed is returned by operations on a closed Transport.
var ErrClosed = errors.New("stdio: transport closed")

const defaultMaxFrame = 4 << 20

// Transport frames JSON-RPC messages as newline-delimited lines. By default
// it reads os.Stdin and writes os.Stdout.
type Transport struct {
	r        io.Reader
	w        io.Writer
	l        *slog.Logger
	maxFrame int

	wmu sync.Mutex

	readOnce sync.Once
	frames   chan []byte
	readErr  error // set before frames is closed

	closeOnce sync.Once
	closed    chan struct{}
}

var _ mcpsession.Transport = (*Transport)(nil)

// New constructs a Transport with defaults and applies options.
func New(opts ...Option) *Transport {
	t := &Transport{
		r:        os.Stdin,
		w:        os.Stdout,
		l:        slog.Default(),
		maxFrame: defaultMaxFrame,
		frames:   make(chan []byte),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Serve runs one session over the transport until EOF on the reader or
// cancellation of ctx.
func (t *Transport) Serve(ctx context.Context, opts ...mcpsession.Option) error {
	return mcpsession.New(t, opts...).Serve(ctx)
}

// ReceiveFrame returns the next non-empty line. It returns io.EOF once the
// reader is exhausted.
func (t *Transport) ReceiveFrame(ctx context.Context) ([]byte, error) {
	t.readOnce.Do(func() { go t.readLoop() })
	select {
	case f, ok := <-t.frames:
		if !ok {
			return nil, t.readErr
		}
		return f, nil
	case <-t.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) readLoop() {
	sc := bufio.NewScanner(t.r)
	sc.Buffer(make([]byte, 0, min(64*1024, t.maxFrame)), t.maxFrame)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		frame := append([]byte(nil), line...)
		select {
		case t.frames <- frame:
		case <-t.closed:
			t.readErr = ErrClosed
			close(t.frames)
			return
		}
	}
	t.readErr = io.EOF
	if err := sc.Err(); err != nil {
		t.l.Error("stdio.read.fail", slog.String("err", err.Error()))
		t.readErr = fmt.Errorf("read frame: %w", err)
	}
	close(t.frames)
}

// SendFrame writes frame followed by a newline. Frames containing newlines
// are compacted first so each message stays on one line.
func (t *Transport) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if bytes.ContainsAny(frame, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, frame); err != nil {
			return fmt.Errorf("compact frame: %w", err)
		}
		frame = buf.Bytes()
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	line := make([]byte, 0, len(frame)+1)
	line = append(append(line, frame...), '\n')
	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close stops the transport and closes the reader and writer when they are
// closable.
func (t *Transport) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		close(t.closed)
		if c, ok := t.r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := t.w.(io.Closer); ok && t.w != io.Writer(os.Stdout) {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
