// Package negotiation drives the initialize handshake for one side of a
// session and decides, per message, whether the current phase and the
// negotiated capabilities allow it.
package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/internal/registry"
	"github.com/ggoodman/mcp-core-go/mcp"
)

type protocolError struct {
	msg  string
	code jsonrpc.ErrorCode
}

func (e *protocolError) Error() string               { return e.msg }
func (e *protocolError) RPCCode() jsonrpc.ErrorCode { return e.code }

var (
	// ErrNotInitialized rejects application traffic before the handshake
	// finished.
	ErrNotInitialized error = &protocolError{"session not initialized", jsonrpc.ErrorCodeInvalidRequest}
	// ErrAlreadyInitialized rejects a second initialize request.
	ErrAlreadyInitialized error = &protocolError{"session already initialized", jsonrpc.ErrorCodeInvalidRequest}
	// ErrSessionClosed rejects everything once the session is closed.
	ErrSessionClosed error = &protocolError{"session closed", jsonrpc.ErrorCodeInvalidRequest}
	// ErrCapabilityNotSupported rejects methods whose capability was not
	// declared by the side that owns it.
	ErrCapabilityNotSupported error = &protocolError{"capability not supported", jsonrpc.ErrorCodeMethodNotFound}
	// ErrVersionMismatch is fatal: the session is closed when it is returned.
	ErrVersionMismatch error = &protocolError{"unsupported protocol version", jsonrpc.ErrorCodeInvalidParams}
)

// VersionMismatchData is attached to the error reply for a rejected
// initialize request.
type VersionMismatchData struct {
	Supported int `json:"supported"`
	Requested int `json:"requested"`
}

// CapabilitySet is a snapshot of what both sides declared during initialize.
type CapabilitySet struct {
	Client mcp.ClientCapabilities
	Server mcp.ServerCapabilities
}

// Has looks the capability up on the side that owns it.
func (s CapabilitySet) Has(c mcp.Capability) bool {
	if c.Owner() == mcp.SideClient {
		return s.Client.Has(c)
	}
	return s.Server.Has(c)
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithTransitionHook registers fn to be called after every state change.
// It runs outside the negotiator's lock.
func WithTransitionHook(fn func(from, to mcp.SessionState)) Option {
	return func(n *Negotiator) { n.onTransition = fn }
}

// Negotiator owns the SessionState of one side of a connection.
type Negotiator struct {
	side         mcp.Side
	onTransition func(from, to mcp.SessionState)

	mu         sync.Mutex
	state      mcp.SessionState
	caps       CapabilitySet
	peer       mcp.Implementation
	resultSeen bool
}

// New creates a negotiator in the Uninitialized state.
func New(side mcp.Side, opts ...Option) *Negotiator {
	n := &Negotiator{side: side}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Side returns the side this negotiator plays.
func (n *Negotiator) Side() mcp.Side { return n.side }

// State returns the current session state.
func (n *Negotiator) State() mcp.SessionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Capabilities returns the negotiated capability snapshot.
func (n *Negotiator) Capabilities() CapabilitySet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.caps
}

// PeerInfo returns the implementation the peer announced during initialize.
func (n *Negotiator) PeerInfo() mcp.Implementation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peer
}

// transitionLocked moves to state `to` if it is higher than the current one
// and returns a func that fires the hook. Call the returned func after
// releasing the lock.
func (n *Negotiator) transitionLocked(to mcp.SessionState) func() {
	from := n.state
	if to <= from {
		return func() {}
	}
	n.state = to
	hook := n.onTransition
	if hook == nil {
		return func() {}
	}
	return func() { hook(from, to) }
}

// BeginInbound records an initialize request received by a server. A
// version mismatch closes the session and returns ErrVersionMismatch.
func (n *Negotiator) BeginInbound(req *mcp.InitializeRequest) error {
	if n.side != mcp.SideServer {
		return fmt.Errorf("%w: only a server accepts initialize", ErrCapabilityNotSupported)
	}
	n.mu.Lock()
	if err := n.phaseErrLocked(mcp.InitializeMethod, registryPhase(mcp.InitializeMethod)); err != nil {
		n.mu.Unlock()
		return err
	}
	if req.ProtocolVersion != mcp.ProtocolVersion {
		fire := n.transitionLocked(mcp.StateClosed)
		n.mu.Unlock()
		fire()
		return fmt.Errorf("%w: requested %d, supported %d", ErrVersionMismatch, req.ProtocolVersion, mcp.ProtocolVersion)
	}
	n.caps.Client = req.Capabilities
	n.peer = req.ClientInfo
	fire := n.transitionLocked(mcp.StateInitializing)
	n.mu.Unlock()
	fire()
	return nil
}

// Complete records the server capabilities advertised in the initialize
// result the server is about to send.
func (n *Negotiator) Complete(caps mcp.ServerCapabilities) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.caps.Server = caps
	n.resultSeen = true
}

// BeginOutbound records the initialize request a client is about to send.
func (n *Negotiator) BeginOutbound(caps mcp.ClientCapabilities) error {
	if n.side != mcp.SideClient {
		return fmt.Errorf("%w: only a client sends initialize", ErrCapabilityNotSupported)
	}
	n.mu.Lock()
	if err := n.phaseErrLocked(mcp.InitializeMethod, registryPhase(mcp.InitializeMethod)); err != nil {
		n.mu.Unlock()
		return err
	}
	n.caps.Client = caps
	fire := n.transitionLocked(mcp.StateInitializing)
	n.mu.Unlock()
	fire()
	return nil
}

// Accept records the server's initialize result on the client side. A
// version mismatch closes the session and returns ErrVersionMismatch.
func (n *Negotiator) Accept(res *mcp.InitializeResult) error {
	n.mu.Lock()
	if n.state != mcp.StateInitializing {
		err := n.stateErrLocked()
		n.mu.Unlock()
		return err
	}
	if res.ProtocolVersion != mcp.ProtocolVersion {
		fire := n.transitionLocked(mcp.StateClosed)
		n.mu.Unlock()
		fire()
		return fmt.Errorf("%w: server chose %d, supported %d", ErrVersionMismatch, res.ProtocolVersion, mcp.ProtocolVersion)
	}
	n.caps.Server = res.Capabilities
	n.peer = res.ServerInfo
	n.resultSeen = true
	n.mu.Unlock()
	return nil
}

// Initialized moves an Initializing session whose initialize result has been
// exchanged to Ready.
func (n *Negotiator) Initialized() error {
	n.mu.Lock()
	if n.state != mcp.StateInitializing || !n.resultSeen {
		err := n.stateErrLocked()
		n.mu.Unlock()
		return err
	}
	fire := n.transitionLocked(mcp.StateReady)
	n.mu.Unlock()
	fire()
	return nil
}

// Close moves the session to Closed. It is idempotent.
func (n *Negotiator) Close() {
	n.mu.Lock()
	fire := n.transitionLocked(mcp.StateClosed)
	n.mu.Unlock()
	fire()
}

// CheckInbound reports whether a message described by d may be accepted
// from the peer in the current state.
func (n *Negotiator) CheckInbound(d *registry.Descriptor) error {
	return n.check(d)
}

// CheckOutbound reports whether a message described by d may be sent to the
// peer in the current state.
func (n *Negotiator) CheckOutbound(d *registry.Descriptor) error {
	return n.check(d)
}

func (n *Negotiator) check(d *registry.Descriptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.phaseErrLocked(d.Method, d.Phases); err != nil {
		return err
	}
	if d.Method == mcp.InitializedNotificationMethod && !n.resultSeen {
		return ErrNotInitialized
	}
	if d.Requires != "" && !n.caps.Has(d.Requires) {
		return fmt.Errorf("%w: %s requires %s", ErrCapabilityNotSupported, d.Method, d.Requires)
	}
	return nil
}

func (n *Negotiator) phaseErrLocked(method mcp.Method, allowed registry.PhaseSet) error {
	if n.state == mcp.StateClosed {
		return ErrSessionClosed
	}
	if allowed.Allows(n.state) {
		return nil
	}
	if method == mcp.InitializeMethod {
		return ErrAlreadyInitialized
	}
	return n.stateErrLocked()
}

func (n *Negotiator) stateErrLocked() error {
	switch n.state {
	case mcp.StateClosed:
		return ErrSessionClosed
	case mcp.StateReady:
		return ErrAlreadyInitialized
	default:
		return ErrNotInitialized
	}
}

func registryPhase(method mcp.Method) registry.PhaseSet {
	d, err := registry.Lookup(string(method))
	if err != nil {
		panic(err)
	}
	return d.Phases
}

// IsFatal reports whether err requires the session to close.
func IsFatal(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}
