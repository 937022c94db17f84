package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Transport.
type Option func(*Transport)

// WithIO sets the reader and writer for the transport.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(t *Transport) {
		if r != nil {
			t.r = r
		}
		if w != nil {
			t.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(t *Transport) {
		if r != nil {
			t.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(t *Transport) {
		if w != nil {
			t.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.l = l
		}
	}
}

// WithMaxFrameSize bounds the length of a single line. Longer lines end the
// transport with bufio.ErrTooLong.
func WithMaxFrameSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxFrame = n
		}
	}
}
