package sampling

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"

	"github.com/ggoodman/mcp-core-go/mcp"
)

// ImageBlock constructs an image content block, base64-encoding data.
func ImageBlock(data []byte, mimeType string) mcp.Content {
	return mcp.Content{Type: mcp.ContentTypeImage, Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}
}

// UserText returns a SamplingMessage authored by the user with a single text block.
func UserText(text string) mcp.SamplingMessage {
	return mcp.SamplingMessage{Role: mcp.RoleUser, Content: mcp.TextContent(text)}
}

// AssistantText returns a SamplingMessage authored by the assistant with a single text block.
func AssistantText(text string) mcp.SamplingMessage {
	return mcp.SamplingMessage{Role: mcp.RoleAssistant, Content: mcp.TextContent(text)}
}

// CreateOption mutates a CreateMessageRequest during construction.
type CreateOption func(*mcp.CreateMessageRequest)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.SystemPrompt = prompt }
}

// WithMaxTokens sets the MaxTokens field.
func WithMaxTokens(n int) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.MaxTokens = n }
}

// WithTemperature sets the Temperature field.
func WithTemperature(t float64) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.Temperature = mcp.Float(t) }
}

// WithStopSequences sets stop sequences.
func WithStopSequences(stops ...string) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.StopSequences = append([]string(nil), stops...) }
}

// WithIncludeContext asks the client to include context from MCP servers.
func WithIncludeContext(ic mcp.IncludeContext) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.IncludeContext = ic }
}

// WithMetadata attaches provider-specific metadata (shallow copied).
func WithMetadata(meta map[string]any) CreateOption {
	cp := make(map[string]any, len(meta))
	maps.Copy(cp, meta)
	return func(r *mcp.CreateMessageRequest) { r.Metadata = cp }
}

// NewCreateMessage constructs a *CreateMessageRequest with the provided messages and options.
func NewCreateMessage(msgs []mcp.SamplingMessage, opts ...CreateOption) *mcp.CreateMessageRequest {
	r := &mcp.CreateMessageRequest{Messages: append([]mcp.SamplingMessage(nil), msgs...)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateCreateMessage performs sanity checks on a CreateMessageRequest.
func ValidateCreateMessage(r *mcp.CreateMessageRequest) error {
	if r == nil {
		return errors.New("nil request")
	}
	if len(r.Messages) == 0 {
		return errors.New("no messages provided")
	}
	if r.MaxTokens <= 0 {
		return errors.New("maxTokens must be positive")
	}
	for i, m := range r.Messages {
		if !mcp.IsValidRole(m.Role) {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		switch m.Content.Type {
		case mcp.ContentTypeText:
		case mcp.ContentTypeImage:
			if m.Content.MimeType == "" {
				return fmt.Errorf("message %d: image content requires a mime type", i)
			}
		default:
			return fmt.Errorf("message %d: unsupported content type %q", i, m.Content.Type)
		}
	}
	return nil
}

// ResultText returns the text of a sampled message, or false for image
// results.
func ResultText(res *mcp.CreateMessageResult) (string, bool) {
	if res == nil || res.Content.Type != mcp.ContentTypeText {
		return "", false
	}
	return res.Content.Text, true
}

// ResultImage decodes the image of a sampled message.
func ResultImage(res *mcp.CreateMessageResult) ([]byte, string, error) {
	if res == nil || res.Content.Type != mcp.ContentTypeImage {
		return nil, "", errors.New("result is not an image")
	}
	data, err := base64.StdEncoding.DecodeString(res.Content.Data)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return data, res.Content.MimeType, nil
}
