// Package mcpsession drives one MCP connection. A Session owns the dispatch
// core for a single peer: it reads frames from a Transport, answers what the
// protocol core answers itself (ping, initialize on servers, protocol errors),
// hands every other request and notification to a Handler, and correlates the
// requests it sends with the peer's responses.
//
// A Session plays either side. Servers wait for the peer's initialize;
// clients call Initialize once Serve is running.
//
//	sess := mcpsession.New(stdio.New(),
//	    mcpsession.WithServerInfo(mcp.Implementation{Name: "demo", Version: "0.1.0"}),
//	    mcpsession.WithServerCapabilities(mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}}),
//	    mcpsession.WithHandler(app),
//	)
//	if err := sess.Serve(ctx); err != nil { log.Fatal(err) }
//
// # Concurrency
//
// Requests are handed to the Handler on their own goroutine, so a handler may
// call back into the peer (for example sampling/createMessage) while the read
// loop keeps running. Notifications are handled inline and in order; their
// handlers must not wait on Call.
//
// # Persistence
//
// With WithStore the session keeps a sessions.Record current for every state
// change and removes it when the session closes.
package mcpsession
