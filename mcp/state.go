package mcp

import "fmt"

// SessionState is the position of a connection in the initialize handshake.
// Values are ordered; a session never moves to a lower state.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *SessionState) UnmarshalText(b []byte) error {
	for st := StateUninitialized; st <= StateClosed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Side identifies which end of a connection a session plays.
type Side string

const (
	SideClient Side = "client"
	SideServer Side = "server"
)

// Peer returns the opposite side.
func (s Side) Peer() Side {
	if s == SideClient {
		return SideServer
	}
	return SideClient
}
