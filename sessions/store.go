package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/mcp-core-go/mcp"
)

var (
	ErrNotFound = errors.New("sessions: session not found")
	ErrExists   = errors.New("sessions: session already exists")
)

// Record is the persisted view of one session.
type Record struct {
	ID              string                 `json:"id"`
	Side            mcp.Side               `json:"side"`
	State           mcp.SessionState       `json:"state"`
	ProtocolVersion int                    `json:"protocolVersion,omitempty"`
	Peer            *mcp.Implementation    `json:"peer,omitempty"`
	ClientCaps      mcp.ClientCapabilities `json:"clientCapabilities"`
	ServerCaps      mcp.ServerCapabilities `json:"serverCapabilities"`
	LogLevel        mcp.LoggingLevel       `json:"logLevel,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// Event is one entry of a session's outbound frame log.
type Event struct {
	ID   string
	Data []byte
}

// Store persists session records and their outbound frame logs.
//
// Event ids are opaque to callers but ordered: EventsAfter(id) returns exactly
// the events appended after the one carrying id. An empty afterID returns the
// whole log. A log exists independently of its record so transports may
// append before the handshake finishes.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Update applies fn to the stored record and saves it. If fn returns an
	// error nothing is written and the error is returned unchanged.
	Update(ctx context.Context, id string, fn func(*Record) error) error
	// Delete removes the record and its event log. Deleting an unknown
	// session is not an error.
	Delete(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, sessionID string, data []byte) (string, error)
	EventsAfter(ctx context.Context, sessionID, afterID string) ([]Event, error)
}
