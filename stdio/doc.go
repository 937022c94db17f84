// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping JSON
// is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 peer
//	Framing          : one JSON-RPC message per line, UTF-8, '\n' terminated
//	Sessions         : one mcpsession.Session per Transport
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	t := stdio.New()
//	err := t.Serve(ctx,
//	    mcpsession.WithServerInfo(mcp.Implementation{Name: "my-stdio-server", Version: "0.1.0"}),
//	    mcpsession.WithHandler(app),
//	)
//
// For network deployments prefer the streaminghttp transport.
package stdio
