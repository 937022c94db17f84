// Package registry holds the fixed table of MCP methods: their role, the
// direction they may travel, the handshake phases they are legal in, the
// capability that gates them and a structural validator for their params.
//
// The table is built once at package initialization and never mutated, so it
// is safe for concurrent use without synchronization.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/mcp"
)

// Role distinguishes methods that expect a reply from those that do not.
type Role int

const (
	RoleRequest Role = iota
	RoleNotification
)

func (r Role) String() string {
	if r == RoleNotification {
		return "notification"
	}
	return "request"
}

// Direction constrains which side may send a method.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
	Either
)

// Allows reports whether sender may originate a message in this direction.
func (d Direction) Allows(sender mcp.Side) bool {
	switch d {
	case ClientToServer:
		return sender == mcp.SideClient
	case ServerToClient:
		return sender == mcp.SideServer
	default:
		return true
	}
}

// PhaseSet is a set of session states.
type PhaseSet uint8

func phases(states ...mcp.SessionState) PhaseSet {
	var s PhaseSet
	for _, st := range states {
		s |= 1 << uint(st)
	}
	return s
}

// Allows reports whether state is a member of the set.
func (s PhaseSet) Allows(state mcp.SessionState) bool {
	return s&(1<<uint(state)) != 0
}

// Descriptor is a read-only registry entry.
type Descriptor struct {
	Method    mcp.Method
	Role      Role
	Direction Direction
	Phases    PhaseSet
	// Requires names the capability that must have been declared for the
	// method to be dispatched. Empty means ungated.
	Requires mcp.Capability

	params func(json.RawMessage) (any, error)
	result func(json.RawMessage) (any, error)
}

var (
	// ErrMethodNotFound is returned by Lookup for names outside the table.
	ErrMethodNotFound = errors.New("method not found")
)

// ValidationError describes params (or a result) that do not match the
// method's expected shape.
type ValidationError struct {
	Method mcp.Method
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid params for %s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("invalid params for %s: %s: %s", e.Method, e.Field, e.Reason)
}

// RPCCode maps validation failures onto INVALID_PARAMS.
func (e *ValidationError) RPCCode() jsonrpc.ErrorCode { return jsonrpc.ErrorCodeInvalidParams }

var (
	anyPhase   = phases(mcp.StateUninitialized, mcp.StateInitializing, mcp.StateReady)
	readyPhase = phases(mcp.StateReady)
)

var table = func() map[mcp.Method]*Descriptor {
	entries := []*Descriptor{
		{Method: mcp.InitializeMethod, Role: RoleRequest, Direction: ClientToServer, Phases: phases(mcp.StateUninitialized), params: validateInitialize, result: validateInitializeResult},
		{Method: mcp.PingMethod, Role: RoleRequest, Direction: Either, Phases: anyPhase, params: optionalObject(func(object) (any, error) { return &mcp.PingRequest{}, nil }), result: validateEmptyResult},
		{Method: mcp.InitializedNotificationMethod, Role: RoleNotification, Direction: ClientToServer, Phases: phases(mcp.StateInitializing), params: optionalObject(func(object) (any, error) { return &mcp.InitializedNotification{}, nil })},
		{Method: mcp.ProgressNotificationMethod, Role: RoleNotification, Direction: Either, Phases: readyPhase, params: validateProgress},

		{Method: mcp.ResourcesListMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityResources, params: optionalObject(func(object) (any, error) { return &mcp.ListResourcesRequest{}, nil })},
		{Method: mcp.ResourcesReadMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityResources, params: validateURI(func(uri string) any { return &mcp.ReadResourceRequest{URI: uri} })},
		{Method: mcp.ResourcesSubscribeMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityResourcesSubscribe, params: validateURI(func(uri string) any { return &mcp.SubscribeRequest{URI: uri} })},
		{Method: mcp.ResourcesUnsubscribeMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityResourcesSubscribe, params: validateURI(func(uri string) any { return &mcp.UnsubscribeRequest{URI: uri} })},
		{Method: mcp.ResourcesListChangedNotificationMethod, Role: RoleNotification, Direction: ServerToClient, Phases: readyPhase, Requires: mcp.CapabilityResources, params: optionalObject(func(object) (any, error) { return &mcp.ResourceListChangedNotification{}, nil })},
		{Method: mcp.ResourcesUpdatedNotificationMethod, Role: RoleNotification, Direction: ServerToClient, Phases: readyPhase, Requires: mcp.CapabilityResourcesSubscribe, params: validateURI(func(uri string) any { return &mcp.ResourceUpdatedNotification{URI: uri} })},

		{Method: mcp.PromptsListMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityPrompts, params: optionalObject(func(object) (any, error) { return &mcp.ListPromptsRequest{}, nil })},
		{Method: mcp.PromptsGetMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityPrompts, params: validateGetPrompt},

		{Method: mcp.ToolsListMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityTools, params: optionalObject(func(object) (any, error) { return &mcp.ListToolsRequest{}, nil })},
		{Method: mcp.ToolsCallMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityTools, params: validateCallTool},
		{Method: mcp.ToolsListChangedNotificationMethod, Role: RoleNotification, Direction: ServerToClient, Phases: readyPhase, Requires: mcp.CapabilityTools, params: optionalObject(func(object) (any, error) { return &mcp.ToolListChangedNotification{}, nil })},

		{Method: mcp.LoggingSetLevelMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, Requires: mcp.CapabilityLogging, params: validateSetLevel},
		{Method: mcp.LoggingMessageNotificationMethod, Role: RoleNotification, Direction: ServerToClient, Phases: readyPhase, Requires: mcp.CapabilityLogging, params: validateLogMessage},

		{Method: mcp.SamplingCreateMessageMethod, Role: RoleRequest, Direction: ServerToClient, Phases: readyPhase, Requires: mcp.CapabilitySampling, params: validateCreateMessage, result: validateCreateMessageResult},

		{Method: mcp.CompletionCompleteMethod, Role: RoleRequest, Direction: ClientToServer, Phases: readyPhase, params: validateComplete},
	}

	m := make(map[mcp.Method]*Descriptor, len(entries))
	for _, d := range entries {
		m[d.Method] = d
	}
	return m
}()

// Lookup returns the descriptor for method or an error wrapping
// ErrMethodNotFound.
func Lookup(method string) (*Descriptor, error) {
	d, ok := table[mcp.Method(method)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return d, nil
}

// ValidateParams checks raw params against the descriptor's rules and
// returns the decoded, typed params (a pointer to the matching mcp struct).
// Failures are *ValidationError.
func ValidateParams(d *Descriptor, raw json.RawMessage) (any, error) {
	v, err := d.params(raw)
	if err != nil {
		return nil, withMethod(d.Method, err)
	}
	return v, nil
}

// ValidateResult checks the result of a request this side issued. Methods
// without result rules accept any JSON object and return it as raw JSON.
func ValidateResult(d *Descriptor, raw json.RawMessage) (any, error) {
	if d.result == nil {
		if _, err := parseObject(raw, false); err != nil {
			return nil, withMethod(d.Method, err)
		}
		return raw, nil
	}
	v, err := d.result(raw)
	if err != nil {
		return nil, withMethod(d.Method, err)
	}
	return v, nil
}

// Methods returns every registered method name in sorted order.
func Methods() []mcp.Method {
	out := make([]mcp.Method, 0, len(table))
	for m := range table {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func withMethod(method mcp.Method, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Method = method
		return ve
	}
	return &ValidationError{Method: method, Reason: err.Error()}
}
