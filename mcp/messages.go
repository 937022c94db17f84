package mcp

import (
	"encoding/json"
	"errors"
)

// ErrInvalidProgressToken reports a progress token that is neither a string
// nor an integer.
var ErrInvalidProgressToken = errors.New("progress token must be a string or integer")

// ProgressTokenOf extracts params._meta.progressToken. ok is false when no
// token is present.
func ProgressTokenOf(params json.RawMessage) (token ProgressToken, ok bool, err error) {
	if len(params) == 0 || params[0] != '{' {
		return nil, false, nil
	}
	var p struct {
		Meta *struct {
			ProgressToken json.RawMessage `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, false, err
	}
	if p.Meta == nil || len(p.Meta.ProgressToken) == 0 {
		return nil, false, nil
	}
	token, err = decodeProgressToken(p.Meta.ProgressToken)
	if err != nil {
		return nil, false, err
	}
	return token, true, nil
}

func decodeProgressToken(raw json.RawMessage) (ProgressToken, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	return nil, ErrInvalidProgressToken
}

// WithProgressToken returns params with _meta.progressToken set. Params must
// be nil or encode to a JSON object.
func WithProgressToken(params json.RawMessage, token ProgressToken) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &fields); err != nil {
			return nil, errors.New("params must be a JSON object to carry a progress token")
		}
	}
	meta := map[string]json.RawMessage{}
	if raw, ok := fields["_meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, errors.New("_meta must be a JSON object")
		}
	}
	tok, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	meta["progressToken"] = tok
	if fields["_meta"], err = json.Marshal(meta); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// PingRequest is a no-op request used to test connectivity.
type PingRequest struct{}

// InitializeRequest starts the MCP initialization handshake.
type InitializeRequest struct {
	ProtocolVersion int                `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult returns the server's protocol version, capabilities and
// identity.
type InitializeResult struct {
	ProtocolVersion int                `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	BaseMetadata
}

// InitializedNotification signals that initialization completed.
type InitializedNotification struct{}

// ProgressNotificationParams conveys progress of a long-running operation.
type ProgressNotificationParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
}

// Resources
// ListResourcesRequest requests the resources the server has.
type ListResourcesRequest struct{}

// ListResourcesResult returns resources and resource templates.
type ListResourcesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates,omitempty"`
	Resources         []Resource         `json:"resources,omitempty"`
	BaseMetadata
}

// ReadResourceRequest requests the contents of a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns resource contents.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
	BaseMetadata
}

// SubscribeRequest subscribes to updates for the given URI.
type SubscribeRequest struct {
	URI string `json:"uri"`
}

// UnsubscribeRequest ends a subscription for the given URI.
type UnsubscribeRequest struct {
	URI string `json:"uri"`
}

// ResourceListChangedNotification indicates the set of resources changed.
type ResourceListChangedNotification struct{}

// ResourceUpdatedNotification indicates a resource's content changed.
type ResourceUpdatedNotification struct {
	URI string `json:"uri"`
}

// Prompts
// ListPromptsRequest requests available prompts.
type ListPromptsRequest struct{}

// ListPromptsResult returns available prompts.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
	BaseMetadata
}

// GetPromptRequest requests a prompt by name with templating arguments.
type GetPromptRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult returns a prompt's messages.
type GetPromptResult struct {
	Description string            `json:"description,omitzero"`
	Messages    []SamplingMessage `json:"messages"`
	BaseMetadata
}

// Tools
// ListToolsRequest requests the set of available tools.
type ListToolsRequest struct{}

// ListToolsResult returns the available tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	BaseMetadata
}

// CallToolRequest invokes a tool by name.
type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult carries the tool's opaque result value.
type CallToolResult struct {
	ToolResult any `json:"toolResult"`
	BaseMetadata
}

// ToolListChangedNotification indicates the set of tools changed.
type ToolListChangedNotification struct{}

// Logging
// SetLevelRequest sets the server logging level.
type SetLevelRequest struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageNotification conveys a log message to the client.
type LoggingMessageNotification struct {
	Level  LoggingLevel    `json:"level"`
	Logger string          `json:"logger,omitzero"`
	Data   json.RawMessage `json:"data"`
}

// Sampling
// CreateMessageRequest asks the client to sample an LLM.
type CreateMessageRequest struct {
	Messages       []SamplingMessage `json:"messages"`
	SystemPrompt   string            `json:"systemPrompt,omitzero"`
	IncludeContext IncludeContext    `json:"includeContext,omitzero"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"maxTokens"`
	StopSequences  []string          `json:"stopSequences,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// CreateMessageResult is the client's sampled message.
type CreateMessageResult struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	Model      string     `json:"model"`
	StopReason StopReason `json:"stopReason"`
	BaseMetadata
}

// Completion
// CompleteRequest asks for completion options for a prompt or resource argument.
type CompleteRequest struct {
	Ref      Reference        `json:"ref"`
	Argument CompleteArgument `json:"argument"`
}

// CompleteResult contains completion suggestions.
type CompleteResult struct {
	Completion Completion `json:"completion"`
	BaseMetadata
}

// MarshalJSON truncates Values to MaxCompletionValues, flagging HasMore.
func (r CompleteResult) MarshalJSON() ([]byte, error) {
	type plain CompleteResult
	p := plain(r)
	if p.Completion.Values == nil {
		p.Completion.Values = []string{}
	}
	if n := len(p.Completion.Values); n > MaxCompletionValues {
		p.Completion.Values = p.Completion.Values[:MaxCompletionValues]
		p.Completion.HasMore = true
		if p.Completion.Total < n {
			p.Completion.Total = n
		}
	}
	return json.Marshal(p)
}

// EmptyResult is returned for operations that do not return data.
type EmptyResult struct {
	BaseMetadata
}
