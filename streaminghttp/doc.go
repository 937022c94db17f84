// Package streaminghttp implements the HTTP + Server-Sent Events transport for
// MCP sessions. It mounts as a standard net/http handler on a single endpoint:
//
//	GET    <endpoint>                      open a session; the stream starts with an
//	                                       "endpoint" event naming the POST URL
//	GET    <endpoint>?sessionId=<id>       reattach to a session, replaying every
//	                                       message after Last-Event-ID
//	POST   <endpoint>?sessionId=<id>       deliver one JSON-RPC frame (202 Accepted)
//	DELETE <endpoint>?sessionId=<id>       close the session (204 No Content)
//
// Every frame the session sends is appended to the session's event log in a
// sessions.Store before it is written as an SSE "message" event whose id is
// the log entry id. A dropped stream therefore loses nothing: reconnecting
// with Last-Event-ID resumes exactly after the last message seen. Sessions
// left without an attached stream for the detach timeout are closed.
//
// Replies to POSTed frames, including JSON-RPC parse errors, always travel on
// the event stream; the POST response only acknowledges receipt.
//
// Example (mount in net/http):
//
//	h, err := streaminghttp.New("http://localhost:8080/mcp",
//	    streaminghttp.WithStore(store),
//	    streaminghttp.WithSessionOptions(mcpsession.WithHandler(app)),
//	)
//	mux := http.NewServeMux()
//	mux.Handle("/mcp", h)
//	http.ListenAndServe(":8080", mux)
package streaminghttp
