package mcp

import "encoding/json"

// Basic types
// Role indicates the role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValidRole reports whether role is user or assistant.
func IsValidRole(role Role) bool {
	return role == RoleUser || role == RoleAssistant
}

// LoggingLevel represents structured log severity.
type LoggingLevel string

const (
	// Logging level constants, least to most severe.
	LoggingLevelDebug   LoggingLevel = "debug"
	LoggingLevelInfo    LoggingLevel = "info"
	LoggingLevelWarning LoggingLevel = "warning"
	LoggingLevelError   LoggingLevel = "error"
)

// IsValidLoggingLevel reports whether the provided level is one of the
// protocol-defined severities.
func IsValidLoggingLevel(level LoggingLevel) bool {
	return level.Severity() >= 0
}

// Severity orders levels from 0 (debug) to 3 (error); unknown levels are -1.
func (l LoggingLevel) Severity() int {
	switch l {
	case LoggingLevelDebug:
		return 0
	case LoggingLevelInfo:
		return 1
	case LoggingLevelWarning:
		return 2
	case LoggingLevelError:
		return 3
	default:
		return -1
	}
}

// IncludeContext selects which servers' context a sampling request wants.
type IncludeContext string

const (
	IncludeContextNone       IncludeContext = "none"
	IncludeContextThisServer IncludeContext = "thisServer"
	IncludeContextAllServers IncludeContext = "allServers"
)

// StopReason explains why sampling ended.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "endTurn"
	StopReasonStopSequence StopReason = "stopSequence"
	StopReasonMaxTokens    StopReason = "maxTokens"
)

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BaseMetadata carries optional metadata for results.
type BaseMetadata struct {
	Meta map[string]json.RawMessage `json:"_meta,omitempty"`
}

// ProgressToken is an identifier used to correlate progress updates.
// It is a string or an integer.
type ProgressToken any

// Content types
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Content is text or a base64 image exchanged with an LLM.
type Content struct {
	Type string `json:"type"`
	// For text content
	Text string `json:"text,omitzero"`
	// For image content
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
}

// TextContent returns a text content block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// Resources
// Resource represents an addressable resource.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitzero"`
}

// ResourceTemplate describes a template for resource URIs.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitzero"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
}

// ResourceContents is the value of a resource read. Exactly one of Text or
// Blob (base64) is set.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitzero"`
	// For TextResourceContents
	Text string `json:"text,omitzero"`
	// For BlobResourceContents
	Blob string `json:"blob,omitzero"`
}

// Prompts
// Prompt describes a named prompt the server can provide.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitzero"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a single prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	Required    bool   `json:"required,omitzero"`
}

// Tools
// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitzero"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty is a simplified schema node used in tool schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
}

// Sampling
// SamplingMessage is a message used as input to or output of model sampling.
type SamplingMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Completion
const (
	RefTypePrompt   = "ref/prompt"
	RefTypeResource = "ref/resource"
)

// Reference identifies the prompt (Name) or resource template (URI) an
// argument completion is requested for.
type Reference struct {
	Type string `json:"type"`
	Name string `json:"name,omitzero"`
	URI  string `json:"uri,omitzero"`
}

// CompleteArgument is the argument being completed.
type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MaxCompletionValues bounds Completion.Values on the wire.
const MaxCompletionValues = 100

// Completion contains completion results for a reference.
type Completion struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitzero"`
	HasMore bool     `json:"hasMore,omitzero"`
}

// Float returns a pointer to f, for optional numeric fields.
func Float(f float64) *float64 { return &f }
