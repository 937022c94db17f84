// Package mcp contains protocol data types and constants shared by the
// message-layer core, the session API and transports. It mirrors the wire
// representation of Model Context Protocol version 1 while keeping the
// surface Go-friendly (exported structs with json tags, string constants for
// method names and enumerations, helper validation functions).
//
// The package is intentionally free of transport and dispatch logic. The
// envelope codec, method registry and negotiator import these types; the
// mcpsession package hands them to application code as typed event params.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod). Using the constants avoids typographical mistakes
// and keeps a single point of truth for the method table.
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities capture the optional features a
// peer declares during initialize. Known members are typed; capability keys
// this package does not know are preserved verbatim in Extra and re-emitted
// on encode, but never interpreted.
//
// # Session State
//
// SessionState enumerates the handshake phases a connection moves through:
// Uninitialized, Initializing, Ready and Closed. Transitions only ever move
// forward.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{ToolResult: map[string]any{"echo": "hello"}}
//
// Example (progress notification object):
//
//	prog := mcp.ProgressNotificationParams{ProgressToken: "op1", Progress: 42, Total: mcp.Float(100)}
//
// # Logging Levels
//
// LoggingLevel values are the four severities of protocol version 1. Use
// IsValidLoggingLevel to validate user-provided values and Severity to
// compare them.
package mcp
