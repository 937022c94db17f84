// Package sessions defines the persistence seam for MCP sessions. A Record
// captures what the handshake settled for one connection (side, state,
// protocol version, peer identity and both capability sets) and a Store keeps
// those records alongside an ordered per-session log of outbound frames.
//
// Layers & Roles
//
//	mcpsession     -> owns the live connection and writes its Record on every state change
//	streaminghttp  -> appends outbound frames to the event log and replays them on reconnect
//	Store          -> durability for both
//
// Implementations
//
//	memorystore : in-memory reference used for tests and single-process servers
//	redisstore  : Redis backed records (JSON with TTL) and Redis Streams event log
//
// storetest holds the conformance suite every Store must pass.
package sessions
