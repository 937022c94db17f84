// Package sampling provides lightweight helpers for constructing
// sampling/createMessage requests and reading their results.
//
// The wire types live in package mcp (CreateMessageRequest,
// CreateMessageResult). This package layers a small builder over them:
//   - Convenience constructors for single-block user / assistant messages
//   - Functional options for system prompt, temperature, max tokens, stop
//     sequences, context inclusion and metadata
//   - A validation helper for preflight checks before sending
//
// Example:
//
//	req := sampling.NewCreateMessage(
//	    []mcp.SamplingMessage{sampling.UserText("Summarize this repository")},
//	    sampling.WithSystemPrompt("You are a terse summarizer."),
//	    sampling.WithTemperature(0.2),
//	    sampling.WithMaxTokens(256),
//	)
//	if err := sampling.ValidateCreateMessage(req); err != nil { return err }
//	res, err := session.CreateMessage(ctx, req)
package sampling
