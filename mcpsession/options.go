package mcpsession

import (
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/ggoodman/mcp-core-go/sessions"
)

// Option customizes a Session.
type Option func(*Session)

// WithSide selects which end of the connection the session plays. Sessions
// are servers by default.
func WithSide(side mcp.Side) Option {
	return func(s *Session) {
		if side == mcp.SideClient || side == mcp.SideServer {
			s.side = side
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHandler sets the application handler for inbound requests and
// notifications.
func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithServerInfo sets the implementation a server reports from initialize.
func WithServerInfo(info mcp.Implementation) Option {
	return func(s *Session) { s.serverInfo = info }
}

// WithServerCapabilities sets the capabilities a server advertises.
func WithServerCapabilities(caps mcp.ServerCapabilities) Option {
	return func(s *Session) { s.serverCaps = caps }
}

// WithClientInfo sets the implementation a client sends with initialize.
func WithClientInfo(info mcp.Implementation) Option {
	return func(s *Session) { s.clientInfo = info }
}

// WithClientCapabilities sets the capabilities a client declares.
func WithClientCapabilities(caps mcp.ClientCapabilities) Option {
	return func(s *Session) { s.clientCaps = caps }
}

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg.withDefaults() }
}

// WithRequestTimeout bounds how long Call waits by default.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.cfg.RequestTimeout = d
		}
	}
}

// WithSweepInterval sets how often expired outbound requests are failed.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.cfg.SweepInterval = d
		}
	}
}

// WithParseErrorsFatal makes frames that are not JSON close the session
// after the error reply.
func WithParseErrorsFatal(fatal bool) Option {
	return func(s *Session) { s.cfg.ParseErrorsFatal = fatal }
}

// WithStore persists the session record in store.
func WithStore(store sessions.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithID fixes the session id instead of generating one. Transports that
// hand out ids before the session starts use it.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}
